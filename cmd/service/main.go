package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/surfwatch/marine-forecast-service/internal/cache"
	"github.com/surfwatch/marine-forecast-service/internal/calibration"
	"github.com/surfwatch/marine-forecast-service/internal/client"
	"github.com/surfwatch/marine-forecast-service/internal/clock"
	"github.com/surfwatch/marine-forecast-service/internal/config"
	"github.com/surfwatch/marine-forecast-service/internal/forecast"
	httphandler "github.com/surfwatch/marine-forecast-service/internal/http"
	"github.com/surfwatch/marine-forecast-service/internal/observability"
	"github.com/surfwatch/marine-forecast-service/internal/quota"
	"github.com/surfwatch/marine-forecast-service/internal/ratelimit"
	"github.com/surfwatch/marine-forecast-service/internal/scheduler"
	"github.com/surfwatch/marine-forecast-service/internal/synthetic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	forecastClient := client.NewPointForecastClient(cfg.ForecastAPIKey, cfg.ForecastAPIURL, cfg.ForecastAPITimeout, rnd)
	if !forecastClient.Configured() {
		logger.Warn("no forecast API key, running in synthetic-only mode")
	}

	var cacheSvc cache.Cache
	var boundedCloser *cache.BoundedCache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.CacheTTL, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		bc := cache.NewBoundedCache(cfg.CacheCapacity, cfg.CacheTTL, cfg.CacheSweep)
		boundedCloser = bc
		cacheSvc = bc
		logger.Info("cache backend: in_memory",
			zap.Int("capacity", cfg.CacheCapacity),
			zap.Duration("ttl", cfg.CacheTTL))
	}

	var overlay *calibration.Overlay
	if cfg.CalibrationRegionsPath != "" {
		source, err := calibration.LoadGeoJSONRegions(cfg.CalibrationRegionsPath)
		if err != nil {
			logger.Fatal("calibration regions", zap.Error(err), zap.String("path", cfg.CalibrationRegionsPath))
		}
		overlay = calibration.NewOverlay(source, logger)
		logger.Info("calibration regions loaded",
			zap.Int("regions", source.Len()),
			zap.String("path", cfg.CalibrationRegionsPath))
	}

	tracker := quota.NewTracker(cfg.DailyQuota, clock.Real{})
	limiter := ratelimit.NewSlidingWindow(cfg.OutboundRateLimit, cfg.OutboundRateWindow, clock.Real{})

	svcOpts := []forecast.Option{
		forecast.WithCacheBackend(cfg.CacheBackend),
		forecast.WithHorizonHours(cfg.HorizonHours),
	}
	if cfg.CoalesceMisses {
		svcOpts = append(svcOpts, forecast.WithCoalescing())
	}
	svc := forecast.NewService(
		forecastClient,
		cacheSvc,
		overlay,
		synthetic.NewGenerator(rnd),
		limiter,
		tracker,
		logger,
		svcOpts...,
	)
	observability.RegisterQuotaGauge(svc.QuotaRemaining)

	spots := cfg.SpotList()
	batch := forecast.NewBatch(svc, cfg.PriorityIDs(), cfg.BatchPacing, logger)

	var sched *scheduler.Scheduler
	if cfg.EnableBatch {
		sched = scheduler.New(batch, spots, cfg.BatchInterval, logger)
		if err := sched.Start(); err != nil {
			logger.Fatal("batch scheduler", zap.Error(err))
		}
	}

	healthConfig := &httphandler.HealthConfig{
		RemoteConfigured: forecastClient.Configured(),
		StartTime:        time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var httpLimiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		httpLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(svc, batch, spots, cacheSvc, healthConfig, logger, clock.Real{})

	inflight := &httphandler.InFlightTracker{}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.Use(inflight.Middleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/stats", handler.GetStats).Methods("GET")
	router.HandleFunc("/spots", handler.GetSpots).Methods("GET")

	forecastRouter := router.NewRoute().Subrouter()
	forecastRouter.Use(httphandler.RateLimitMiddleware(httpLimiter))
	forecastRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	forecastRouter.HandleFunc("/forecast", handler.GetForecast).Methods("GET")
	forecastRouter.HandleFunc("/spots/{id}/forecast", handler.GetSpotForecast).Methods("GET")
	forecastRouter.HandleFunc("/refresh", handler.PostRefresh).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inflight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := inflight.WaitForZero(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inflight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if boundedCloser != nil {
		boundedCloser.Close()
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
