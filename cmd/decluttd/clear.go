package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/queuejanitor/decluttd/internal/ledger"
)

func newClearCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the ledger, or a single entry with --key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(key)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "clear only this ledger key (manager:id)")
	return cmd
}

func runClear(key string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Load(cfg.General.StrikeFilePath)
	if err != nil {
		return err
	}
	store.Clear(key)
	if err := store.Save(); err != nil {
		return err
	}
	if key == "" {
		fmt.Println("cleared entire ledger")
	} else {
		fmt.Printf("cleared %s\n", key)
	}
	return nil
}
