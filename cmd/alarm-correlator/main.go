package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-alarmcorr/internal/api"
	"github.com/miradorstack/mirador-alarmcorr/internal/cache"
	"github.com/miradorstack/mirador-alarmcorr/internal/config"
	"github.com/miradorstack/mirador-alarmcorr/internal/engine"
	"github.com/miradorstack/mirador-alarmcorr/internal/ingest"
	"github.com/miradorstack/mirador-alarmcorr/internal/metrics"
	"github.com/miradorstack/mirador-alarmcorr/internal/repo"
	"github.com/miradorstack/mirador-alarmcorr/internal/services"
	"github.com/miradorstack/mirador-alarmcorr/internal/store"
	"github.com/miradorstack/mirador-alarmcorr/internal/topology"
	"github.com/miradorstack/mirador-alarmcorr/internal/utils"
	"github.com/miradorstack/mirador-alarmcorr/internal/window"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting alarm-correlator",
		slog.String("grpc_address", cfg.Server.Address),
		slog.String("http_address", cfg.Server.HTTPAddress),
		slog.Int("window_seconds", cfg.Correlation.WindowSeconds),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	topo, err := topology.Load(cfg.Topology.Path, logger)
	if err != nil {
		logger.Error("failed to load topology", slog.String("path", cfg.Topology.Path), slog.Any("error", err))
		os.Exit(1)
	}

	priority, err := cfg.DomainPriority()
	if err != nil {
		logger.Error("invalid root-cause priority", slog.Any("error", err))
		os.Exit(1)
	}
	localEstimator, err := engine.NewPriorityEstimator(priority)
	if err != nil {
		logger.Error("invalid root-cause priority", slog.Any("error", err))
		os.Exit(1)
	}
	localScorer := engine.NewHeuristicScorer(cfg.Scoring.Weights, cfg.Correlation.WindowSeconds)

	var scorer engine.Scorer = localScorer
	var estimator engine.Estimator = localEstimator
	var modelCache cache.Provider = cache.NoopProvider{}
	if cfg.Scoring.Model.BaseURL != "" {
		modelCache = cache.NewMemoryProvider(cfg.Scoring.Model.CacheEntries)
		model := repo.NewModelClient(repo.ModelClientOptions{
			BaseURL:       cfg.Scoring.Model.BaseURL,
			ScorePath:     cfg.Scoring.Model.ScorePath,
			RootCausePath: cfg.Scoring.Model.RootCausePath,
			Timeout:       cfg.Scoring.Model.Timeout,
			Cache:         modelCache,
			CacheTTL:      cfg.Scoring.Model.CacheTTL,
			Logger:        logger,
		})
		scorer = engine.FallbackScorer{Primary: model, Secondary: localScorer, Logger: logger}
		estimator = engine.FallbackEstimator{Primary: model, Secondary: localEstimator, Logger: logger}
		logger.Info("remote scoring model enabled", slog.String("base_url", cfg.Scoring.Model.BaseURL))
	}
	defer modelCache.Close()

	index := window.NewIndex(cfg.Correlation.WindowSeconds)
	incidents := store.New(store.Options{
		WindowSeconds: cfg.Correlation.WindowSeconds,
		MaxClosed:     cfg.Store.MaxClosed,
		Logger:        logger,
	})
	correlator := engine.NewCorrelator(
		logger,
		engine.Config{
			WindowSeconds:      cfg.Correlation.WindowSeconds,
			AttachPolicy:       engine.AttachPolicy(cfg.Correlation.AttachPolicy),
			FallbackConfidence: cfg.Correlation.FallbackConfidence,
		},
		index,
		window.NewClock(nil),
		incidents,
		topo,
		scorer,
		estimator,
	)

	ingestor := ingest.New(correlator, ingest.Options{
		QueueSize:   cfg.Ingest.QueueSize,
		VendorRate:  cfg.Ingest.VendorRate,
		VendorBurst: cfg.Ingest.VendorBurst,
		Logger:      logger,
	})
	service := services.NewCorrelationService(logger, ingestor, incidents, index, cfg.Ingest.SubmitTimeout)

	server, err := api.NewServer(cfg.Server, service)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestor.Start(ctx)
	go correlator.RunSweeper(ctx, cfg.Correlation.SweepInterval)

	var httpServer *http.Server
	if cfg.Server.HTTPAddress != "" {
		httpServer = &http.Server{
			Addr:         cfg.Server.HTTPAddress,
			Handler:      api.NewHTTPHandler(service, logger),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
	}
	server.Shutdown(shutdownCtx)
	ingestor.Stop()

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	st := incidents.Stats()
	logger.Info("alarm-correlator stopped",
		slog.Int("open_incidents", st.Open),
		slog.Int("closed_incidents", st.Closed),
		slog.Int("correlated_incidents", st.Correlated),
	)
}
