package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-ingest/internal/catalog"
	"photo-ingest/internal/exiftool"
	"photo-ingest/internal/geocode"
	"photo-ingest/internal/handlers"
	"photo-ingest/internal/logging"
	"photo-ingest/internal/media"
	"photo-ingest/internal/middleware"
	"photo-ingest/internal/pipeline"
	"photo-ingest/internal/pool"
	"photo-ingest/internal/queue"
	"photo-ingest/internal/startup"
	"photo-ingest/internal/storage"
	"photo-ingest/internal/workers"
)

func main() {
	startTime := time.Now()
	ctx := context.Background()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize the image library before any pipeline work
	if err := media.InitVips(); err != nil {
		logging.Warn("libvips initialization failed: %v", err)
		logging.Warn("HEIC transcoding and previews will be degraded")
	}
	defer media.ShutdownVips()

	// Initialize queue and catalog databases
	dbStart := time.Now()
	store, err := queue.NewStore(ctx, config.QueueDBPath)
	if err != nil {
		startup.LogFatal("Failed to initialize queue: %v", err)
	}
	defer store.Close()

	cat, err := catalog.NewSQLiteCatalog(ctx, config.CatalogDBPath)
	if err != nil {
		startup.LogFatal("Failed to initialize catalog: %v", err)
	}
	defer cat.Close()
	startup.LogQueueInit(time.Since(dbStart))

	// Object storage
	objects, err := storage.NewLocalStore(config.StorageDir, config.PublicBaseURL)
	if err != nil {
		startup.LogFatal("Failed to initialize object storage: %v", err)
	}

	// Metadata extractor. The pipeline treats extraction as best-effort,
	// so a missing exiftool binary degrades photos instead of the service.
	extractor, err := exiftool.NewRunner(config.ExiftoolPath, config.ExifWorkDir)
	if err != nil {
		startup.LogFatal("Failed to initialize exiftool runner: %v", err)
	}

	// Reverse geocoder, rate-gated across all workers
	var geocoder geocode.Provider
	if config.GeocodingEnabled {
		geocoder = geocode.NewNominatim(config.GeocodeBaseURL, geocode.NewRateGate(config.GeocodeMinInterval))
	}

	pipe := pipeline.New(objects, cat, extractor, geocoder)

	// Worker pool
	numWorkers := workers.ForMixed(8)
	startup.LogPoolInit(numWorkers, config.PollInterval, config.EnableLoadBalancing)
	p := pool.New(pool.Config{
		Workers:             numWorkers,
		PollInterval:        config.PollInterval,
		EnableLoadBalancing: config.EnableLoadBalancing,
		RebalanceInterval:   config.RebalanceInterval,
		StatsReportInterval: config.StatsReportInterval,
	}, store, cat, pipe)
	if err := p.Start(ctx); err != nil {
		startup.LogFatal("Failed to start worker pool: %v", err)
	}
	startup.LogPoolStarted()

	// Administration HTTP surface
	h := handlers.New(store, p)
	router := h.Router()

	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	metricsHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(metricsHandler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, p)

	// Start server
	startup.LogServerStarted(config.Port, time.Since(startTime))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func handleShutdown(srv *http.Server, p *pool.Pool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping worker pool")
	p.Stop()
	startup.LogShutdownStepComplete("Worker pool drained")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
