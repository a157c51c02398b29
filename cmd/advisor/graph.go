package main

import (
	"fmt"

	"github.com/aretw0/advisor"
	"github.com/aretw0/advisor/internal/cli"
	"github.com/aretw0/advisor/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the analysis plan visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the guided steps and of the
concurrent categories. With --session, the categories are coloured by the
status stored for that analysis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		planFile, _ := cmd.Flags().GetString("plan")
		sessionID, _ := cmd.Flags().GetString("session")

		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if planFile != "" {
			cfg.Analysis.PlanFile = planFile
		}
		app, err := advisor.New(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		plan, err := app.Plan()
		if err != nil {
			return fmt.Errorf("failed to load plan: %w", err)
		}

		var overlay *graph.GraphOverlay
		if sessionID != "" {
			rs, err := app.Store.Load(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", sessionID, err)
			}
			overlay = graph.OverlayFromSnapshot(rs)
		}

		fmt.Print(graph.GenerateMermaid(plan, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("plan", "", "YAML file describing the guided steps")
	graphCmd.Flags().StringP("session", "s", "", "Overlay the stored statuses of this session")
}
