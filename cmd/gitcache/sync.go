package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh every cached mirror from its origin",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCache()
		if err != nil {
			return err
		}

		report, err := c.Sync(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("synced: %d, failed: %d\n", report.Repaired, report.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
