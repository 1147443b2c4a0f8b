package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/queuejanitor/decluttd/internal/item"
	"github.com/queuejanitor/decluttd/internal/ledger"
	"github.com/queuejanitor/decluttd/internal/rules"
)

func newSimulateCmd() *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "simulate <item.json>",
		Short: "Synthesize a fresh ledger entry from an item snapshot and evaluate it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(args[0], service)
		},
	}
	cmd.Flags().StringVar(&service, "service", "Sonarr", "manager name the item belongs to")
	return cmd
}

// runSimulate mirrors the reference CLI's simulate command exactly: build a
// fresh entry whose last_dl is downloaded-so-far (0 when size/sizeleft
// aren't both known), first_seen_ts an hour in the past, no last_progress_ts,
// then run the rule evaluator once against it.
func runSimulate(path string, service string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	snap, err := item.ParseSnapshot(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	now := time.Now()
	lastDL := int64(0)
	if downloaded, ok := snap.DownloadedBytes(); ok {
		lastDL = downloaded
	}
	entry := ledger.Entry{
		Count:          0,
		LastDownloaded: &lastDL,
		FirstSeenTS:    now.Unix() - 3600,
	}

	resolver := cfg.Resolver()
	globals := rules.Globals{IndexerThresholds: cfg.IndexerThresholds()}
	reason := rules.Evaluate(service, snap, entry, false, resolver, globals, now)

	out, err := json.MarshalIndent(map[string]string{"reason": string(reason)}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
