package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/svcdeck"
)

const shutdownTimeout = 10 * time.Second

// runServe starts the API server and, when enabled, the metrics listener
// and status refresher. It returns after SIGINT/SIGTERM.
func runServe(parent context.Context, path string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := svcdeck.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	logger, logCloser, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	if cfg.Metrics.Enabled {
		if err := svcdeck.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	deck, err := svcdeck.New(cfg, svcdeck.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = deck.Close() }()

	api, err := deck.NewHTTPServer()
	if err != nil {
		return err
	}
	servers := []*http.Server{api}
	if cfg.Metrics.Enabled {
		servers = append(servers, svcdeck.NewMetricsServer(cfg.Metrics.Listen))
		if err := deck.StartRefresher(); err != nil {
			return fmt.Errorf("failed to start refresher: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting svcdeck", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath,
		"services", len(cfg.Services), "self", cfg.Self, "metrics", cfg.Metrics.Enabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deck.Serve(api) })
	if len(servers) > 1 {
		ms := servers[1]
		g.Go(func() error {
			logger.Info("metrics listening", "addr", ms.Addr)
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range servers {
			errs = append(errs, s.Shutdown(sctx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
