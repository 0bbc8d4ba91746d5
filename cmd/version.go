package main

import (
	"fmt"

	"homelink/pkg/plugin"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and compiled-in integrations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "homelink %s\n", version)
		for _, info := range plugin.List() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-14s %s\n", info.Domain, info.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
