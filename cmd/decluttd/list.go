package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/queuejanitor/decluttd/internal/ledger"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every ledger entry",
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Load(cfg.General.StrikeFilePath)
	if err != nil {
		return err
	}
	for key, entry := range store.Snapshot() {
		fmt.Printf("%s\tcount=%d\tlast_reason=%s\tfirst_seen_ts=%d\n", key, entry.Count, entry.LastReason, entry.FirstSeenTS)
	}
	return nil
}
