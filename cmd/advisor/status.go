package main

import (
	"os"

	"github.com/aretw0/advisor/internal/cli"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the scoring service and print the market board",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return cli.RunStatus(cmd.Context(), configPath, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
