package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the resolved configuration and aggregate cache state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCache()
		if err != nil {
			return err
		}

		st, err := c.Status(context.Background())
		if err != nil {
			return err
		}

		switch statusFormat {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		default:
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Setting", "Value")
			rows := [][2]string{
				{"cache_root", st.CacheRoot},
				{"checkout_root", st.CheckoutRoot},
				{"default_strategy", st.DefaultStrategy},
				{"depth", fmt.Sprintf("%d", st.Depth)},
				{"auto_sync", fmt.Sprintf("%t", st.AutoSync)},
				{"sync_interval", st.SyncInterval.String()},
				{"preferred_mirror", st.PreferredMirror},
				{"fork_enabled", fmt.Sprintf("%t", st.ForkEnabled)},
				{"mirror_count", fmt.Sprintf("%d", st.MirrorCount)},
				{"total_size_bytes", fmt.Sprintf("%d", st.TotalSizeBytes)},
			}
			for _, row := range rows {
				if err := table.Append(row[0], row[1]); err != nil {
					return err
				}
			}
			return table.Render()
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "output format (table|json)")
}
