package main

import (
	"github.com/aretw0/advisor/internal/cli"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a guided portfolio analysis",
	Long: `Runs the guided analysis for an investment and prints the result.
Failed categories can be retried one by one from the prompt afterwards.

Examples:
  advisor analyze --amount 1000000 --risk moderate --period 3years
  advisor analyze --amount 50000 --risk 8 --mode accurate --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.AnalyzeOptions{}
		opts.ConfigPath, _ = cmd.Flags().GetString("config")
		opts.PlanFile, _ = cmd.Flags().GetString("plan")
		opts.Amount, _ = cmd.Flags().GetFloat64("amount")
		opts.Risk, _ = cmd.Flags().GetString("risk")
		opts.Horizon, _ = cmd.Flags().GetInt("horizon")
		opts.Period, _ = cmd.Flags().GetString("period")
		opts.Mode, _ = cmd.Flags().GetString("mode")
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Headless, _ = cmd.Flags().GetBool("headless")
		opts.Debug, _ = cmd.Flags().GetBool("debug")
		return cli.RunAnalyze(opts)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().Float64("amount", 0, "Amount to invest")
	analyzeCmd.Flags().String("risk", "moderate", "Risk tolerance: conservative, moderate, aggressive or a 1-10 score")
	analyzeCmd.Flags().Int("horizon", 0, "Investment horizon in months (overrides --period)")
	analyzeCmd.Flags().String("period", "1year", "Investment period: 1year, 3years, 5years or 10years")
	analyzeCmd.Flags().String("mode", "fast", "Explanation mode: fast or accurate")
	analyzeCmd.Flags().String("plan", "", "YAML file describing the guided steps")
	analyzeCmd.Flags().StringP("session", "s", "", "Persist the result under this session ID")
	analyzeCmd.Flags().Bool("json", false, "Emit NDJSON events instead of text")
	analyzeCmd.Flags().Bool("headless", false, "Do not offer to retry failed categories")
	analyzeCmd.Flags().Bool("debug", false, "Log engine events to stderr")
	_ = analyzeCmd.MarkFlagRequired("amount")
}
