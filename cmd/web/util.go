package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/mxverify/mxverify/cmd/web/config"
)

func mapToHTTPHeaders(headers config.Headers) http.Header {
	result := http.Header{}
	for name, value := range headers {
		result.Add(name, value)
	}

	return result
}

func newLogger(conf config.Config) (*logrus.Logger, error) {
	var err error
	logger := logrus.New()

	switch conf.Server.Log.Format {
	case config.LFText:
		logger.Formatter = &logrus.TextFormatter{}
	default:
		logger.Formatter = &logrus.JSONFormatter{}
	}

	logger.Out = os.Stdout
	logger.Level, err = logrus.ParseLevel(conf.Server.Log.Level)

	return logger, err
}

func configureProfiler(mux *http.ServeMux, conf config.Config) {
	var prefix string
	if conf.Server.Profiler.Prefix != "" {
		prefix = conf.Server.Profiler.Prefix
	} else {
		prefix = "debug"
	}

	mux.HandleFunc(`/`+prefix+`/pprof/`, pprof.Index)
	mux.HandleFunc(`/`+prefix+`/pprof/cmdline`, pprof.Cmdline)
	mux.HandleFunc(`/`+prefix+`/pprof/profile`, pprof.Profile)
	mux.HandleFunc(`/`+prefix+`/pprof/symbol`, pprof.Symbol)
	mux.HandleFunc(`/`+prefix+`/pprof/trace`, pprof.Trace)
}

func deferClose(toClose io.Closer, log logrus.FieldLogger) {
	if toClose == nil {
		return
	}

	err := toClose.Close()
	if err != nil {
		if log == nil {
			fmt.Printf("error failed to close handle %s", err)
			return
		}

		log.WithError(err).Error("Failed to close handle")
	}
}
