package main

import (
	"fmt"

	"github.com/aretw0/advisor"
	"github.com/aretw0/advisor/internal/cli"
	"github.com/aretw0/advisor/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and the analysis plan",
	Long: `Loads the configuration (file and ADVISOR_* environment) and the guided plan,
reporting structural errors and the steps that would degrade at run time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		planFile, _ := cmd.Flags().GetString("plan")

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
		fmt.Println("✅ Configuration is valid.")

		plan, err := app.Plan()
		if err != nil {
			return fmt.Errorf("❌ plan: %w", err)
		}
		findings, err := validator.ValidatePlan(plan)
		if err != nil {
			return fmt.Errorf("❌ plan: %w", err)
		}
		for _, f := range findings {
			fmt.Printf("⚠️  %s\n", f)
		}
		fmt.Printf("✅ Plan is valid: %d steps, at least %s.\n", len(plan.Steps), plan.TotalMinDuration()+plan.SettleDelay)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("plan", "", "YAML file describing the guided steps")
}
