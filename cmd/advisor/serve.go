package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/advisor"
	"github.com/aretw0/advisor/internal/cli"
	httpAdapter "github.com/aretw0/advisor/pkg/adapters/http"
	"github.com/aretw0/advisor/pkg/observability"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the analysis API over HTTP. Analyses run in the background and are
persisted to the configured store, so they survive a restart. Progress is
streamed over Server-Sent Events and Prometheus metrics are exposed on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		logger := cli.CreateLogger(false, cfg.LogLevel)
		metrics := observability.NewMetrics(nil)

		app, err := advisor.New(cfg,
			advisor.WithLogger(logger),
			advisor.WithLifecycleHooks(metrics.Hooks()),
		)
		if err != nil {
			return err
		}
		defer app.Close()

		sessions := app.Sessions()
		handler, err := httpAdapter.NewHandler(sessions,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithVersion(advisor.Version),
			httpAdapter.WithMetrics(metrics.Handler()),
		)
		if err != nil {
			return fmt.Errorf("failed to build API: %w", err)
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting Advisor Server on %s\n", srv.Addr)
			fmt.Printf("Scoring service: %s (store: %s)\n", cfg.API.BaseURL, cfg.Store.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// Asking listener to shut down and shed load.
			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			// Persist the last snapshot of every live analysis.
			if err := sessions.Close(ctx); err != nil {
				fmt.Printf("Sessions did not settle: %v\n", err)
			}
			fmt.Println("Advisor Server stopped gracefully")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides server.addr)")
}
