package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aretw0/advisor"
	"github.com/aretw0/advisor/internal/runtime"
)

// RunStatus probes the scoring service and prints the market board.
func RunStatus(ctx context.Context, configPath string, w io.Writer) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	app, err := advisor.New(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.API.Timeout)
	defer cancel()

	start := time.Now()
	if err := app.Gateway.Health(ctx); err != nil {
		return fmt.Errorf("scoring service at %s is unavailable: %w", cfg.API.BaseURL, err)
	}
	fmt.Fprintf(w, "Scoring service %s is up (%s)\n", cfg.API.BaseURL, time.Since(start).Round(time.Millisecond))

	ms, err := app.Gateway.MarketStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch market status: %w", err)
	}
	if len(ms.MarketData) == 0 {
		fmt.Fprintln(w, "No market data.")
		return nil
	}

	fmt.Fprintf(w, "\nMarket as of %s\n", ms.LastUpdated)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Symbol\tName\tPrice\tChange\t")
	for _, q := range ms.MarketData {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t\n", q.Symbol, q.Name, q.Price, runtime.FormatReturn(q.ChangePercent))
	}
	return tw.Flush()
}
