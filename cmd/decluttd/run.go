package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/queuejanitor/decluttd/internal/client"
	"github.com/queuejanitor/decluttd/internal/config"
	"github.com/queuejanitor/decluttd/internal/eventbus"
	"github.com/queuejanitor/decluttd/internal/httpx"
	"github.com/queuejanitor/decluttd/internal/ledger"
	"github.com/queuejanitor/decluttd/internal/metrics"
	"github.com/queuejanitor/decluttd/internal/runner"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the polling loop until signalled to stop",
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := ledger.Load(cfg.General.StrikeFilePath)
	if err != nil {
		return err
	}

	pool := buildClientPool(cfg, logger)

	notifyClient := httpx.New(httpx.Config{
		Timeout:       cfg.General.RequestTimeout,
		RetryAttempts: cfg.General.RetryAttempts,
		RetryBackoff:  cfg.General.RetryBackoff,
	}, logger.WithField("collaborator", "notifications"))
	bus := eventbus.New(logger, notifyClient, cfg.General.StructuredLogs, cfg.Destinations)

	collector := metrics.NewCollector()
	r := runner.New(cfg, store, bus, pool, collector, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("decluttd starting")
	r.Run(ctx)
	return store.Save()
}

// buildClientPool wires one adapter per configured clients.* block, in the
// fixed qbittorrent/transmission/deluge order, per spec §6 "multiple
// adapters may be configured; the first one returning non-nil per call is
// used".
func buildClientPool(cfg *config.Config, logger *logrus.Entry) *client.Pool {
	var adapters []client.Adapter

	if c, ok := cfg.Clients["qbittorrent"]; ok && c.URL != "" {
		transport := httpx.New(httpx.Config{
			Timeout:       cfg.General.RequestTimeout,
			RetryAttempts: cfg.General.RetryAttempts,
			RetryBackoff:  cfg.General.RetryBackoff,
		}, logger.WithField("client", "qbittorrent"))
		adapters = append(adapters, client.NewQBittorrent(c.URL, c.Username, c.Password, transport))
	}
	if c, ok := cfg.Clients["transmission"]; ok && c.URL != "" {
		transport := httpx.New(httpx.Config{
			Timeout:       cfg.General.RequestTimeout,
			RetryAttempts: cfg.General.RetryAttempts,
			RetryBackoff:  cfg.General.RetryBackoff,
		}, logger.WithField("client", "transmission"))
		adapters = append(adapters, client.NewTransmission(c.URL, c.Username, c.Password, transport))
	}
	if c, ok := cfg.Clients["deluge"]; ok && c.URL != "" {
		transport := httpx.New(httpx.Config{
			Timeout:       cfg.General.RequestTimeout,
			RetryAttempts: cfg.General.RetryAttempts,
			RetryBackoff:  cfg.General.RetryBackoff,
		}, logger.WithField("client", "deluge"))
		adapters = append(adapters, client.NewDeluge(c.URL, c.Password, transport))
	}

	return client.NewPool(adapters...)
}
