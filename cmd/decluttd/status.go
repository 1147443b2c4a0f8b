package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/queuejanitor/decluttd/internal/ledger"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a summary of the current ledger",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Load(cfg.General.StrikeFilePath)
	if err != nil {
		return err
	}

	snapshot := store.Snapshot()
	withStrikes := 0
	for key, entry := range snapshot {
		if ledger.IsIndexerKey(key) {
			continue
		}
		if entry.Count > 0 {
			withStrikes++
		}
	}

	fmt.Printf("strike_file: %s\n", cfg.General.StrikeFilePath)
	fmt.Printf("managers: %d\n", len(cfg.Managers))
	fmt.Printf("ledger_entries: %d\n", store.Len())
	fmt.Printf("items_with_strikes: %d\n", withStrikes)
	fmt.Printf("dry_run: %v\n", cfg.General.DryRun)
	return nil
}
