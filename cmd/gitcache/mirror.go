package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitcachehq/git-cache/internal/mirrorlist"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Manage alternate remotes (e.g. a fork) registered against a cached repository",
}

var mirrorAddCmd = &cobra.Command{
	Use:   "add <url> <name> <alternate-url>",
	Short: "Register an alternate remote for a cached repository",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCache()
		if err != nil {
			return err
		}
		entry := mirrorlist.Entry{Name: args[1], URL: args[2], Type: "alternate"}
		return c.AddMirror(context.Background(), args[0], entry)
	},
}

var mirrorListCmd = &cobra.Command{
	Use:   "list <mirror-path>",
	Short: "List alternate remotes registered for a mirror path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := mirrorlist.List(args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\tpriority=%d\n", e.Name, e.URL, e.Type, e.Priority)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mirrorCmd)
	mirrorCmd.AddCommand(mirrorAddCmd)
	mirrorCmd.AddCommand(mirrorListCmd)
}
