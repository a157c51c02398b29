/*
Package advisor orchestrates the analyses of a remote AI portfolio scoring
service.

One analysis turns an investment context (amount, risk tolerance, horizon and
explanation mode) into five concurrently computed results: the allocation,
its explanation, the historical performance, the asset correlations and the
risk/return profile. The last three depend on the allocation. Every result is
tracked as a task that can fail and be retried on its own while the others
stay visible, and a whole analysis can be restarted under a new generation
without stale answers ever overwriting newer ones.

# Concept

The engine (internal/runtime) owns the tasks of one session. Callers only
read snapshots of the result set and ask for retries, which lets the same
engine sit behind the CLI, the HTTP API and the MCP server. The App in this
package wires a configuration into the gateway, the snapshot store and the
engines.

# Usage

	cfg, err := config.Load("advisor.yaml")
	if err != nil {
		log.Fatal(err)
	}
	app, err := advisor.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	engine := app.NewEngine("session-1")
	if _, err := engine.Start(ctx, domain.AnalysisContext{
		Amount:          1_000_000,
		RiskTolerance:   domain.RiskModerate,
		HorizonMonths:   12,
		ExplanationMode: domain.ModeFast,
	}); err != nil {
		log.Fatal(err)
	}
	_ = engine.Wait(ctx)
	rs := engine.Snapshot()

For many concurrent sessions use App.Sessions, which persists every snapshot
and revives sessions from the store after a restart.
*/
package advisor
