package vhttp

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mxverify/mxverify/cmd/web/config"
	"github.com/mxverify/mxverify/runtimer"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

// NewServer builds the HTTP server with the middleware chain applied, the
// listener created and, when rt is given, a graceful shutdown hooked up to
// the process signals.
func NewServer(mux http.Handler, config config.Config, logger logrus.FieldLogger, logWriter io.Writer, rt *runtimer.SignalHandler, handlers ...func(h http.Handler) http.Handler) (*Server, error) {
	for _, h := range handlers {
		mux = h(mux)
	}

	wTTL := 10 * time.Second
	if config.Server.Profiler.Enable {

		// Profiles take a while to collect
		wTTL = 31 * time.Second
	}

	server := &http.Server{
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       wTTL,
		WriteTimeout:      wTTL,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 19, // 512 kb
		Handler:           mux,
		Addr:              config.Server.ListenOn,
		ErrorLog:          log.New(logWriter, "", 0),
	}

	listener, err := net.Listen("tcp", config.Server.ListenOn)
	if err != nil {
		return nil, fmt.Errorf("unable to listen on %q: %w", config.Server.ListenOn, err)
	}

	if config.Server.ConnectionLimit > 0 {
		listener = netutil.LimitListener(listener, int(config.Server.ConnectionLimit))
	}

	server.RegisterOnShutdown(func() {
		err := listener.Close()
		logger.WithError(err).Debug("Closing listener")
	})

	if rt != nil {
		rt.RegisterCallback(func(s os.Signal) {
			ctx, cancel := context.WithTimeout(context.Background(), wTTL)
			defer cancel()

			logger.WithField("signal", s).Info("Shutting down the HTTP server")
			if err := server.Shutdown(ctx); err != nil {
				logger.WithError(err).Error("Shutdown incomplete")
			}
		})
	}

	return &Server{
		server:   server,
		listener: listener,
	}, nil
}

type Server struct {
	server   *http.Server
	listener net.Listener
}

func (s *Server) Serve() error {
	return s.server.Serve(s.listener)
}
