package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove checkouts whose backing mirror no longer exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCache()
		if err != nil {
			return err
		}

		removed, err := c.Clean(context.Background())
		if err != nil {
			return err
		}

		if len(removed) == 0 {
			fmt.Println("nothing to clean")
			return nil
		}
		for _, path := range removed {
			fmt.Printf("removed orphan: %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
