package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/builder"
	"github.com/zulandar/roundhouse/internal/config"
	"github.com/zulandar/roundhouse/internal/db"
	"github.com/zulandar/roundhouse/internal/janitor"
	"github.com/zulandar/roundhouse/internal/keystore"
	"github.com/zulandar/roundhouse/internal/notify"
	"github.com/zulandar/roundhouse/internal/registry"
	"github.com/zulandar/roundhouse/internal/scheduler"
	"github.com/zulandar/roundhouse/internal/server"
	"github.com/zulandar/roundhouse/internal/sourcer"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the build server",
		Long: `Starts the webhook listener and build scheduler. Builds interrupted by a
previous shutdown are marked aborted on startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, host, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to Roundhouse config file")
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath, host string, port int) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	recovered, err := db.RecoverInterrupted(gormDB)
	if err != nil {
		return err
	}
	if recovered > 0 {
		fmt.Fprintf(out, "Marked %d interrupted build(s) as aborted\n", recovered)
	}

	keys, err := keystore.NewFileStore(cfg.Builds.KeysDir)
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	reg := registry.New(gormDB, keys)

	src := sourcer.New(cfg.Builds.PingTimeout.Std(), cfg.Builds.CloneTimeout.Std())
	run := builder.New(gormDB, cfg.Builds.Timeout.Std())

	sched := scheduler.New(gormDB, reg, src, run, scheduler.Options{
		BuildDir:      cfg.Builds.Dir,
		Scripts:       cfg.Builds.Scripts,
		MaxParallel:   cfg.Builds.MaxParallel,
		RetryAttempts: cfg.Builds.RetryAttempts,
		RetryBackoff:  cfg.Builds.RetryBackoff.Std(),
		LogGrace:      cfg.Builds.LogGrace.Std(),
	})

	fanout, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return fmt.Errorf("configure notifiers: %w", err)
	}
	sched.OnComplete(fanout.BuildFinished)

	jan := janitor.New(gormDB, cfg.Builds.Dir, cfg.Prune.Schedule, cfg.Prune.Retention.Std())
	if err := jan.Start(); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer jan.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return server.Start(ctx, server.StartOpts{
		Registry:  reg,
		Scheduler: sched,
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Out:       out,
	})
}
