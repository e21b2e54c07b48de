package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Commit is set at build time via -ldflags "-X main.Commit=...".
var Commit = "dev"

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version of this tool",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Commit)
		},
		Args: cobra.NoArgs,
	}
	rootCmd.AddCommand(cmd)
}
