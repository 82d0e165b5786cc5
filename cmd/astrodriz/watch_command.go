package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/notifications"
	"astrodriz/internal/pipeline"
	"astrodriz/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the intake directory and process arriving datasets",
		Long: `Run the watch service in the foreground: an fsnotify watcher enqueues
datasets dropped into the intake directory and a claim loop processes pending
runs one at a time. Stop with SIGINT or SIGTERM; an interrupted run stays
pending and is reclaimed on the next start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchProcess(cmd, ctx)
		},
	}
}

func runWatchProcess(cmd *cobra.Command, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open run ledger", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	svc, err := watch.New(cfg, store, logger, notifier, pipeline.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("create watch service: %w", err)
	}

	if err := svc.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("watch service shutting down")
	svc.Stop()
	return nil
}
