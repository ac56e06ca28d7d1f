package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whaletrends/whale-data/internal/archive"
	"github.com/whaletrends/whale-data/internal/config"
	"github.com/whaletrends/whale-data/internal/gateway"
	"github.com/whaletrends/whale-data/internal/ingest"
	"github.com/whaletrends/whale-data/internal/observer"
	"github.com/whaletrends/whale-data/internal/recovery"
	"github.com/whaletrends/whale-data/internal/sampler"
	"github.com/whaletrends/whale-data/internal/store"
	"github.com/whaletrends/whale-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/observer.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting observer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_url", cfg.Feed.WSURL,
		"min_value_usd", cfg.Feed.MinValueUSD,
		"window_hours", cfg.Observer.WindowHours,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to redis
	st, err := store.Connect(ctx, cfg.Redis.URL, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	logger.Info("redis connected")

	// Price gateway
	prices := gateway.NewClient(
		cfg.Binance.BaseURL,
		gateway.WithLogger(logger),
		gateway.WithTimeout(cfg.Binance.Timeout),
		gateway.WithRetries(cfg.Binance.MaxRetries, time.Second),
	)

	engine := observer.NewEngine(st, logger)

	// Recover windows that expired while the process was down before
	// accepting new work.
	logger.Info("running startup recovery")
	report, err := recovery.New(engine, prices, logger).Run(ctx)
	if err != nil {
		logger.Error("startup recovery failed", "error", err)
		os.Exit(1)
	}
	logger.Info("startup recovery finished",
		"checked", report.Checked,
		"recovered", report.Recovered,
		"skipped", report.Skipped,
		"errors", report.Errors,
	)

	// Start health server early so we can monitor the service
	healthPort := 8080
	if cfg.Health.Port > 0 {
		healthPort = cfg.Health.Port
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: createHealthHandler(st, engine, logger),
	}

	go func() {
		logger.Info("starting health server", "port", healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Price sampler
	samp := sampler.New(sampler.Config{
		Interval: cfg.Observer.SampleInterval,
		Timeout:  cfg.Binance.Timeout,
	}, engine, prices, logger)

	if err := samp.Start(ctx); err != nil {
		logger.Error("failed to start sampler", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		samp.Stop(shutdownCtx)
	}()

	// Optional postgres result archive
	if cfg.Archive.DSN != "" {
		arch, err := archive.Connect(ctx, cfg.Archive.DSN, archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, engine, logger)
		if err != nil {
			logger.Error("failed to start archive", "error", err)
			os.Exit(1)
		}
		arch.Start(ctx)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()
			arch.Stop(shutdownCtx)
		}()
	}

	// Alert feed
	feed := ingest.NewFeed(ingest.Config{
		WSURL:              cfg.Feed.WSURL,
		APIKey:             cfg.Feed.APIKey,
		MinValueUSD:        cfg.Feed.MinValueUSD,
		Symbols:            cfg.Feed.Symbols,
		Blockchains:        cfg.Feed.Blockchains,
		WindowHours:        cfg.Observer.WindowHours,
		ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
		SubscribeTimeout:   cfg.Feed.SubscribeTimeout,
	}, engine, prices, logger)

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		feed.Run(ctx)
	}()

	logger.Info("observer running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", healthPort),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	<-feedDone

	// Graceful shutdown of health server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("observer stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(st *store.Store, engine *observer.Engine, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check redis
		if err := st.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["redis"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["redis"] = "connected"
		}

		// Active observation windows
		ids, err := engine.ActiveIDs(ctx)
		if err != nil {
			health.Components["observer"] = map[string]string{
				"error": err.Error(),
			}
		} else {
			health.Components["observer"] = map[string]interface{}{
				"active_windows": len(ids),
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/windows", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		windows, err := engine.ActiveWindows(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// Limit to first 100 for debugging
		limit := 100
		total := len(windows)
		if total > limit {
			windows = windows[:limit]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":   total,
			"showing": len(windows),
			"windows": windows,
		})
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		stats, err := engine.Statistics(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	return mux
}
