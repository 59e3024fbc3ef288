package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/wrauth/internal/catalog"
	"github.com/udisondev/wrauth/internal/config"
	"github.com/udisondev/wrauth/internal/gslistener"
	"github.com/udisondev/wrauth/internal/login"
	"github.com/udisondev/wrauth/internal/metrics"
	"github.com/udisondev/wrauth/internal/registry"
)

const version = "0.3.0"

const envFilePath = ".env"

func main() {
	root := &cobra.Command{
		Use:          "authserver",
		Short:        "Cluster authentication server",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(envFilePath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	slog.Info("authorization server starting",
		"date", time.Now().Format("02/01/2006"),
		"bind", cfg.ServerIP)

	cat, err := catalog.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer cat.Close()

	if err := cat.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating catalog schema: %w", err)
	}

	servers, err := cat.ListActiveServers(ctx)
	if err != nil {
		return fmt.Errorf("fetching active servers: %w", err)
	}
	slog.Info("active servers found in the catalog", "count", len(servers))

	reg := registry.New()
	clientSrv := login.NewServer(cfg, cat, reg)
	nodeSrv := gslistener.NewServer(cfg, cat, reg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return clientSrv.Run(gctx)
	})
	g.Go(func() error {
		return nodeSrv.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr)
		})
	}

	return g.Wait()
}

func logLevel(s string) slog.Level {
	switch s {
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
