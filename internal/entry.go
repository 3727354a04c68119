// Package internal wires configuration, the scan and analysis pipeline and
// the HTTP, watcher and MCP surfaces into a runnable application.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vaultlens/internal/api"
	"github.com/starford/vaultlens/internal/watcher"
)

// Run starts the HTTP server and, when enabled, the watcher for every
// configured vault. Vaults are scanned and analysed once before serving.
func Run(ctx context.Context, opts ...Option) error {
	app, err := New(opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	logger := app.Logger

	if _, err := app.Bootstrap(ctx, false); err != nil {
		logger.Warn("initial scan incomplete", slog.String("error", err.Error()))
	}

	r := NewHTTPHandler(app)
	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			roots := watchRoots(gCtx, app)
			w := watcher.New(
				func(ctx context.Context, vaultID int64) error {
					_, err := app.Service.Refresh(ctx, vaultID)
					return err
				},
				watcher.WithDebounce(cfg.Watch.Debounce),
				watcher.WithOnChange(app.Broker.PublishVaultChange),
				watcher.WithStorageOptions(cfg.Scan.StorageOptions()...),
				watcher.WithLogger(logger))
			return w.Run(gCtx, roots)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// NewHTTPHandler builds the root router: health probes, Prometheus metrics
// and the authenticated API (including the SSE stream) under /api.
func NewHTTPHandler(app *App) http.Handler {
	cfg := app.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := app.DB.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/api", api.NewRouter(app.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, app.Broker))
	return r
}

// watchRoots maps the configured vaults to their registered ids. Vaults
// that were never scanned successfully are skipped.
func watchRoots(ctx context.Context, app *App) []watcher.Root {
	var roots []watcher.Root
	for _, v := range app.Config.Vaults {
		abs, err := filepath.Abs(v.Path)
		if err != nil {
			continue
		}
		vault, err := app.DB.GetVaultByPath(ctx, abs)
		if err != nil {
			app.Logger.Warn("watcher: vault not registered",
				slog.String("path", v.Path),
				slog.String("error", err.Error()))
			continue
		}
		roots = append(roots, watcher.Root{VaultID: vault.ID, Path: vault.RootPath})
	}
	return roots
}
