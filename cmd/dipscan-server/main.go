package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dipscan/dipscan/internal/api"
	"github.com/dipscan/dipscan/internal/archive"
	"github.com/dipscan/dipscan/internal/batch"
	"github.com/dipscan/dipscan/internal/config"
	"github.com/dipscan/dipscan/internal/metrics"
	"github.com/dipscan/dipscan/internal/notify"
	"github.com/dipscan/dipscan/internal/store"
	"github.com/dipscan/dipscan/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("dipscan-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"archive_endpoint", cfg.Archive.Endpoint,
		"auth_mode", cfg.Archive.Auth.Mode,
		"store_root", cfg.Store.Root,
		"download_timeout", cfg.Batch.DownloadTimeout,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(cfg.Store.Root)
	if err != nil {
		slog.Error("failed to open result store", "err", err)
		os.Exit(1)
	}

	// WebSocket hub — streams batch progress events to connected clients.
	hub := ws.New()
	go hub.Run(ctx)

	reg := metrics.New()
	reg.SetStoredTargetsFunc(func() float64 {
		ids, err := st.List()
		if err != nil {
			return 0
		}
		return float64(len(ids))
	})

	notifier := notify.New(cfg.Notify)

	client := archive.New(cfg.Archive)
	runner := batch.New(client, client, st, cfg.Store.ScratchRoot)
	runner.Events = func(ev batch.Event) {
		hub.Publish(ev)
		reg.ObserveEvent(ev)
	}

	handler := api.New(st, runner, batchOptions(cfg), func(res *batch.Result) {
		reg.ObserveResult(res)
		notifier.BatchDone(res)
	})

	// Watch config file for hot-reload: batch defaults and notification rules
	// can change without a restart; server and archive settings need one.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			handler.SetDefaults(batchOptions(updated))
			notifier.SetConfig(updated.Notify)
			slog.Info("config hot-reloaded",
				"download_timeout", updated.Batch.DownloadTimeout,
				"bin_size", updated.Batch.BinSize,
				"notify_rules", len(updated.Notify.Rules),
			)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", handler)
	httpMux.Handle("/ws/progress", hub)
	httpMux.Handle("/metrics", reg)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("dipscan-server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// batchOptions maps the config's batch section to runner options.
func batchOptions(cfg *config.Config) batch.Options {
	return batch.Options{
		Timeout:  cfg.Batch.DownloadTimeout,
		MaxFiles: cfg.Batch.MaxFiles,
		BinSize:  cfg.Batch.BinSize,
	}
}
