// Command decluttd is the thin CLI wrapper around the decision engine and
// runner (spec §6 "CLI (external, thin)"), built with github.com/spf13/cobra
// the way the rest of the pack's command-line tools are — Use/Short/RunE per
// subcommand, persistent flags for shared inputs.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/queuejanitor/decluttd/internal/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "decluttd",
		Short: "Media download queue janitor",
		Long:  "decluttd periodically inspects Sonarr/Radarr/Lidarr-style download queues, strikes or removes stuck items, and optionally nudges the underlying torrent client.",
		RunE:  runRun,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: ./config.yaml or /app/config.yaml)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newClearCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newSimulateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logrus.Entry {
	l := logrus.New()
	if cfg.General.StructuredLogs {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	if cfg.General.DebugLogging {
		l.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(l)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
