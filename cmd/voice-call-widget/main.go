package main

import (
	"context"
	"embed"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sjawhar/voice-call-widget/internal/callclient"
	"github.com/sjawhar/voice-call-widget/internal/config"
	"github.com/sjawhar/voice-call-widget/internal/gdrive"
	"github.com/sjawhar/voice-call-widget/internal/metrics"
	"github.com/sjawhar/voice-call-widget/internal/server"
	"github.com/sjawhar/voice-call-widget/internal/session"
	"github.com/sjawhar/voice-call-widget/internal/storage"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	cfg, warnings, err := config.Load(envOrDefault(config.EnvPrefix+"CONFIG", "config.yaml"))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})))
	slog.Info("voice-call-widget: starting", "listen_addr", cfg.ListenAddr, "backend_url", cfg.BackendURL)
	for _, w := range warnings {
		slog.Warn("config", "warning", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	modes, err := cfg.ModeTable()
	if err != nil {
		log.Fatalf("call modes init failed: %v", err)
	}

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("static assets init failed: %v", err)
	}

	hub := server.NewHub()
	archive := storage.NewWriter(cfg.TranscriptDir)
	client := callclient.New(cfg.BackendURL, cfg.PublicKey)

	ctrl := session.NewController(session.Deps{
		Client:       client,
		Modes:        modes,
		Store:        store,
		Archive:      archive,
		Hub:          hub,
		Metrics:      metrics.NewCallMetrics(nil),
		StartTimeout: cfg.ParsedStartTimeout(),
	})
	client.SetHandler(ctrl)
	ctrl.Init()

	handler, err := server.Handler(assets, hub, store, ctrl, server.Hooks{
		Warnings: func() []string { return warnings },
	})
	if err != nil {
		log.Fatalf("build http handler failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncDone := make(chan struct{})
	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			slog.Warn("gdrive sync disabled", "error", syncErr)
			close(syncDone)
		} else {
			go func() {
				defer close(syncDone)
				syncer.Run(ctx, cfg.ParsedSyncInterval(), archive)
			}()
		}
	} else {
		close(syncDone)
	}

	if err := server.Serve(ctx, cfg.ListenAddr, handler); err != nil {
		slog.Error("http server error", "error", err)
	}

	slog.Info("voice-call-widget: shutting down")
	stop()
	ctrl.Dispose()
	<-syncDone
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func logLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
