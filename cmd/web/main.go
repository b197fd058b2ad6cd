package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/Dynom/TySug/finder"
	"github.com/juju/ratelimit"
	_ "github.com/lib/pq"
	"github.com/minio/highwayhash"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/mxverify/mxverify/cmd/web/config"
	"github.com/mxverify/mxverify/cmd/web/hitlist"
	"github.com/mxverify/mxverify/cmd/web/persist"
	"github.com/mxverify/mxverify/cmd/web/services"
	"github.com/mxverify/mxverify/cmd/web/vhttp"
	"github.com/mxverify/mxverify/cmd/web/vhttp/handlers"
	"github.com/mxverify/mxverify/runtimer"
	"github.com/mxverify/mxverify/verifier"
	"github.com/mxverify/mxverify/verifier/blacklist"
)

// Version contains the app version, the value is changed during compile time to the appropriate Git tag
var Version = "dev"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.toml", "Path to the configuration file")
	flag.Parse()

	conf, err := config.NewConfig(configPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(conf)
	if err != nil {
		panic(err)
	}

	logger.WithFields(logrus.Fields{
		"version": Version,
	}).Info("Starting up...")

	rt := runtimer.New(syscall.SIGINT, syscall.SIGTERM)

	h, err := highwayhash.New128([]byte(conf.Server.Hash.Key))
	if err != nil {
		logger.WithError(err).Error("Unable to create the hasher, the key needs to be exactly 32 bytes")
		os.Exit(1)
	}

	cache := hitlist.New(h, conf.Verifier.CacheTTL.AsDuration())

	persister, err := newPersister(conf, logger)
	if err != nil {
		logger.WithError(err).Error("Unable to create the persister")
		os.Exit(1)
	}

	defer deferClose(persister, logger)

	if err := preloadCache(cache, persister, logger); err != nil {
		logger.WithError(err).Error("Unable to preload the cache")
		os.Exit(1)
	}

	// Write-through, every cache mutation ends up in the backend
	cache.RegisterOnChange(func(r hitlist.Recipient, d hitlist.Domain, verdict verifier.Verdict, change hitlist.ChangeType) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := persister.Store(ctx, d, r, verdict); err != nil {
			logger.WithError(err).WithField("domain", d).Error("Unable to persist change")
		}
	})

	blacklistStore := blacklist.NewStore(conf.Blacklist.Whitelist...)
	setupBlacklistUpdates(blacklistStore, conf, logger)

	myFinder, err := finder.New(
		cache.GetValidAndUsageSortedDomains(),
		finder.WithLengthTolerance(conf.Finder.LengthTolerance),
		finder.WithAlgorithm(finder.NewJaroWinklerDefaults()),
		finder.WithPrefixBuckets(conf.Finder.UseBuckets),
	)

	if err != nil {
		logger.WithError(err).Error("Unable to create the finder")
		os.Exit(1)
	}

	v := newVerifier(conf, blacklistStore, logger)

	verifySvc := services.NewVerifyService(cache, myFinder, v.Verify, logger)
	autocompleteSvc := services.NewAutocompleteService(myFinder, cache, conf.Services.Autocomplete.RecipientThreshold, logger)

	maxBodySize := int64(conf.Client.InputLengthMax)
	if maxBodySize <= 0 {
		maxBodySize = 1 << 16
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", NewHealthHandler(logger))
	mux.HandleFunc("/health", NewHealthHandler(logger))
	mux.HandleFunc("/verify", NewVerifyHandler(logger, &verifySvc, maxBodySize))
	mux.HandleFunc("/autocomplete", NewAutoCompleteHandler(logger, autocompleteSvc, conf.Services.Autocomplete.MaxSuggestions, maxBodySize))

	if conf.Server.Profiler.Enable {
		configureProfiler(mux, conf)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: conf.Server.CORS.AllowedOrigins,
		AllowedHeaders: conf.Server.CORS.AllowedHeaders,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
	})

	lw := logger.WriterLevel(logger.Level)
	defer deferClose(lw, logger)

	middleware := make([]func(h http.Handler) http.Handler, 0, 6)
	if conf.Server.PathStrip != "" {
		middleware = append(middleware, handlers.WithPathStrip(logger, conf.Server.PathStrip))
	}

	middleware = append(middleware, c.Handler)

	if conf.Server.RateLimiter.Rate > 0 && conf.Server.RateLimiter.Capacity > 0 {
		bucket := ratelimit.NewBucketWithRate(float64(conf.Server.RateLimiter.Rate), conf.Server.RateLimiter.Capacity)
		middleware = append(middleware, handlers.WithRateLimiter(logger, bucket, conf.Server.RateLimiter.ParkedTTL.AsDuration()))
	}

	middleware = append(middleware,
		handlers.WithGzipHandler(),
		handlers.WithHeaders(mapToHTTPHeaders(conf.Server.Headers)),
		handlers.WithRequestLogger(logger),
	)

	s, err := vhttp.NewServer(mux, conf, logger, lw, rt, middleware...)
	if err != nil {
		logger.WithError(err).Error("Unable to create the HTTP server")
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"listen_on": conf.Server.ListenOn,
	}).Info("Done, serving requests")

	err = s.Serve()

	logger.Errorf("HTTP server stopped %s", err)
	rt.Wait()
}

func newPersister(conf config.Config, logger logrus.FieldLogger) (persist.Persister, error) {
	switch conf.Backend.Driver {
	case "postgres":
		db, err := sql.Open("postgres", conf.Backend.URL)
		if err != nil {
			return nil, err
		}

		return persist.New(db, logger), nil
	default:
		return persist.NewMemory(), nil
	}
}

func preloadCache(cache *hitlist.HitList, persister persist.Persister, logger logrus.FieldLogger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var loaded uint64
	err := persister.Range(ctx, func(d hitlist.Domain, r hitlist.Recipient, verdict verifier.Verdict) error {
		loaded++
		return cache.AddInternal(d, r, verdict)
	})

	logger.WithField("entries", loaded).Info("Cache preloaded")
	return err
}

func setupBlacklistUpdates(store *blacklist.Store, conf config.Config, logger logrus.FieldLogger) {
	options := []blacklist.UpdaterOption{
		blacklist.WithUpdaterLogger(logger),
	}

	if conf.Blacklist.Source != "" {
		options = append(options, blacklist.WithSourceURL(conf.Blacklist.Source))
	}

	if conf.Blacklist.SnapshotPath != "" {
		options = append(options, blacklist.WithSnapshotPath(conf.Blacklist.SnapshotPath))
	}

	updater := blacklist.NewUpdater(store, options...)

	fresh, err := updater.LoadSnapshot()
	if err != nil {
		logger.WithError(err).Warn("Unable to load the blacklist snapshot")
	}

	if !fresh {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := updater.Update(ctx, false); err != nil {
			logger.WithError(err).Warn("Initial blacklist update failed, continuing with what we have")
		}
	}

	if interval := conf.Blacklist.UpdateInterval.AsDuration(); interval > 0 {
		go updater.Run(context.Background(), interval)
	}
}

func newVerifier(conf config.Config, store *blacklist.Store, logger logrus.FieldLogger) *verifier.EmailVerifier {
	options := []verifier.Option{
		verifier.WithBlacklist(store),
		verifier.WithLogger(logger),
		verifier.WithTimeouts(conf.Verifier.DNSTimeout.AsDuration(), conf.Verifier.SMTPTimeout.AsDuration()),
	}

	if len(conf.Verifier.Nameservers) > 0 {
		options = append(options, verifier.WithNameservers(conf.Verifier.Nameservers))
	}

	if conf.Verifier.Hello != "" {
		options = append(options, verifier.WithHELO(conf.Verifier.Hello))
	}

	if conf.Verifier.From != "" {
		options = append(options, verifier.WithFrom(conf.Verifier.From))
	}

	if conf.Verifier.SkipTLS {
		options = append(options, verifier.WithTLSPolicy(verifier.TLSSkip))
	}

	return verifier.NewEmailVerifier(options...)
}
