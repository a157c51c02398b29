package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/advisor"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of advisor",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("advisor version %s\n", strings.TrimSpace(advisor.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
