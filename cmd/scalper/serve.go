package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/scalper/internal/api"
	"github.com/newthinker/scalper/internal/live"
	"github.com/newthinker/scalper/internal/logger"
	"github.com/newthinker/scalper/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var templatesDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server and the refresh loop",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&templatesDir, "templates", "", "load templates from this directory instead of the embedded set")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Initialize logger
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	c, err := build(cfg, log, true)
	if err != nil {
		return err
	}
	defer c.Close()

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		c.app.SetMetrics(reg)
	}

	hub := live.NewHub(log.Named("live"))
	if reg != nil {
		hub.SetMetrics(reg)
	}
	defer hub.Close()
	c.session.Subscribe(hub.Broadcast)

	server, err := api.NewServer(api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		APIKey:         cfg.Server.APIKey,
		TemplatesDir:   templatesDir,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	}, api.Dependencies{
		App:      c.app,
		Session:  c.session,
		Journal:  c.journal,
		Archiver: c.archiver,
		Live:     hub,
		Metrics:  reg,
		Replayer: c.replayer,
	}, log.Named("http"))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting scalper",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("pair", c.session.Pair().Label),
		zap.Duration("interval", cfg.Refresh.Interval),
	)

	if cfg.Router.Cooldown > 0 {
		c.app.Router().StartCleanupRoutine(ctx, cfg.Router.Cooldown)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := c.app.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down scalper")
	case err := <-errCh:
		log.Error("fatal error", zap.Error(err))
		stop()
		shutdown(server, log)
		return err
	}

	shutdown(server, log)
	c.app.WaitBriefings()
	return nil
}

func shutdown(server *api.Server, log *zap.Logger) {
	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
	}
}
