package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"safesaviour/config"
	"safesaviour/core/events"
	"safesaviour/observability"
	"safesaviour/observability/logging"
	telemetry "safesaviour/observability/otel"
	rescuedconfig "safesaviour/services/rescued/config"
	"safesaviour/services/rescued/node"
	"safesaviour/services/rescued/server"
	"safesaviour/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rescued: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath, bootstrapPath string
	flag.StringVar(&cfgPath, "config", "", "path to the rescued YAML config")
	flag.StringVar(&bootstrapPath, "bootstrap", "", "path to the TOML bootstrap file (overrides the config)")
	flag.Parse()

	cfg, err := rescuedconfig.Load(cfgPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(bootstrapPath) != "" {
		cfg.Bootstrap = bootstrapPath
	}

	logger, logCloser, err := logging.SetupWithFile(cfg.Observability.ServiceName, cfg.Observability.Environment, cfg.Log.Level, logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logCloser.Close()
	logger.Info("configuration loaded", slog.Any("config", cfg.Sanitized()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelCfg := telemetry.Config{
		ServiceName: cfg.Observability.ServiceName,
		Environment: cfg.Observability.Environment,
		Endpoint:    cfg.Observability.Endpoint,
		Insecure:    cfg.Observability.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Observability.Headers),
		Metrics:     cfg.Observability.Metrics && cfg.Observability.Endpoint != "",
		Traces:      cfg.Observability.Tracing,
		SampleRatio: cfg.Observability.SampleRatio,
	}
	shutdownTelemetry, err := telemetry.Init(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	if otelCfg.Enabled() {
		logger.Info("telemetry exporters enabled",
			slog.Bool("traces", otelCfg.Traces),
			slog.Bool("metrics", otelCfg.Metrics))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	bootstrap, err := config.Load(cfg.Bootstrap)
	if err != nil {
		return fmt.Errorf("load bootstrap %s: %w", cfg.Bootstrap, err)
	}
	db, err := storage.Open(bootstrap.StorageBackend, bootstrap.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := observability.Rescue()
	rescueNode, err := node.Build(ctx, bootstrap, db, node.Options{
		Logger:   logger,
		Recorder: events.NewRecorder(cfg.EventBuffer),
		Observer: metrics,
	})
	if err != nil {
		return err
	}
	logger.Info("rescue engine ready",
		slog.String("custody", rescueNode.Engine.Address().String()),
		slog.String("storage", bootstrap.StorageBackend))

	api := server.New(server.Config{
		Engine:  rescueNode.Engine,
		Catalog: rescueNode.State,
		Events:  rescueNode.Recorder,
		Pauses:  rescueNode.Pauses,
		Metrics: metrics,
		Auth: server.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Tracer: telemetry.Tracer(),
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(api.Routes(), cfg.Observability.ServiceName),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	useTLS := cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != ""
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("rescued listening", slog.String("addr", cfg.ListenAddress), slog.Bool("tls", useTLS))
		if !useTLS {
			serverErr <- httpServer.ListenAndServe()
			return
		}
		serverErr <- httpServer.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.String("error", err.Error()))
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}
