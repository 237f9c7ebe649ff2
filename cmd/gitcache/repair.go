package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var repairFormat string

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair outdated or corrupted checkouts against their mirrors",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCache()
		if err != nil {
			return err
		}

		report, err := c.Repair(context.Background())
		if err != nil {
			return err
		}

		switch repairFormat {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		default:
			fmt.Printf("repaired: %d, failed: %d\n", report.Repaired, report.Failed)
		}

		if report.Failed > 0 {
			os.Exit(6)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(repairCmd)
	repairCmd.Flags().StringVar(&repairFormat, "format", "table", "output format (table|json)")
}
