package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var verifyFormat string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate every cached mirror and checkout against the five-layer contract",
	Long: `verify walks every persisted mirror and its checkouts, applying the
structural, command-level, reference-level, HEAD-resolution, and alternates
validation layers, and reports which paths failed.

Exit status:
  0 - every mirror and checkout validated
  6 - at least one failed validation (run 'gitcache repair' to fix)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCache()
		if err != nil {
			return err
		}

		report, err := c.Verify(context.Background())
		if err != nil {
			return err
		}

		switch verifyFormat {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		default:
			fmt.Printf("valid: %d, invalid: %d\n\n", report.Valid, len(report.Invalid))
			if len(report.Invalid) > 0 {
				table := tablewriter.NewWriter(os.Stdout)
				table.Header("Path")
				for _, p := range report.Invalid {
					if err := table.Append(p); err != nil {
						return err
					}
				}
				if err := table.Render(); err != nil {
					return err
				}
			}
		}

		if len(report.Invalid) > 0 {
			os.Exit(6)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyFormat, "format", "table", "output format (table|json)")
}
