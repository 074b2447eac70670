package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"composer/internal/gateway/adapter/authclient"
	"composer/internal/gateway/adapter/downstream"
	"composer/internal/gateway/adapter/inmem"
	"composer/internal/gateway/handler"
	"composer/internal/gateway/middleware"
	"composer/internal/gateway/uploader"
	"composer/internal/platform/config"
	"composer/internal/platform/server"
	"composer/internal/platform/telemetry"
)

// Routes reachable without a bearer token: login, register, and the
// Google OAuth callback, plus health checks and metrics.
var exemptPaths = []string{
	"/api/login",
	"/api/register",
	"/api/auth/google",
	"/healthz",
	"/readyz",
	"/metrics",
}

func main() {
	cfg := config.Load()

	// Logging
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.APIKey == "" {
		slog.Warn("API_KEY is empty; downstream calls will carry a blank X-API-Key header")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	shutdown, err := telemetry.Setup(context.Background(), "composer-gateway")
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	metrics, err := telemetry.NewGatewayMetrics()
	if err != nil {
		slog.Error("metrics initialization failed", "error", err)
		os.Exit(1)
	}

	// Downstream client shared by the auth interceptor, the route
	// forwarders, and the upload workers
	ds, err := downstream.New(cfg.AuthServiceURL, cfg.ConversationURL, cfg.UploadServiceURL,
		cfg.APIKey, cfg.DownstreamTimeout, metrics)
	if err != nil {
		slog.Error("downstream client initialization failed", "error", err)
		os.Exit(1)
	}
	validator := authclient.New(ds)

	// Upload tracker
	store := inmem.NewUploadStore(cfg.Upload.HistoryLimit, time.Now)
	tracker := uploader.New(store, ds, cfg.Upload.Workers, cfg.Upload.QueueDepth,
		cfg.Upload.JobTimeout, metrics)

	// Rate limiter
	rl := inmem.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, time.Now)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()

	// Routes and middleware chain
	routes := handler.New(ds, tracker).Routes()
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.Handle("/", middleware.Chain(
		routes,
		middleware.Metrics(metrics),
		middleware.CorrelationID,
		middleware.Logging(logger),
		middleware.Recovery,
		middleware.CORS,
		middleware.MaxBodySize(cfg.MaxBodyBytes),
		middleware.RateLimit(rl, metrics),
		middleware.Auth(validator, exemptPaths, metrics),
	))

	srv := server.New(cfg.GatewayAddr, mux)
	srv.OnShutdown(tracker.Close)

	slog.Info("composer gateway starting",
		"addr", cfg.GatewayAddr,
		"auth_url", cfg.AuthServiceURL,
		"conversation_url", cfg.ConversationURL,
		"upload_url", cfg.UploadServiceURL,
		"upload_workers", cfg.Upload.Workers,
		"upload_queue_depth", cfg.Upload.QueueDepth,
	)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}

	if err := shutdown(context.Background()); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}
}
