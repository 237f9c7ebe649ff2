package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var listFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every cached mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCache()
		if err != nil {
			return err
		}

		entries, err := c.List(context.Background())
		if err != nil {
			return err
		}

		switch listFormat {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		default:
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Identity", "Strategy", "Size", "Refs", "Last Sync")
			for _, e := range entries {
				lastSync := "-"
				if e.Metadata.LastSyncTime > 0 {
					lastSync = time.Unix(e.Metadata.LastSyncTime, 0).Format(time.RFC3339)
				}
				if err := table.Append(
					e.Identity.String(),
					e.Metadata.Strategy,
					fmt.Sprintf("%d", e.Metadata.CacheSizeBytes),
					fmt.Sprintf("%d", e.Metadata.RefCount),
					lastSync,
				); err != nil {
					return err
				}
			}
			return table.Render()
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listFormat, "format", "table", "output format (table|json)")
}
