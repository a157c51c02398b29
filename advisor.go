package advisor

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/aretw0/advisor/internal/adapters/file"
	redisStore "github.com/aretw0/advisor/internal/adapters/redis"
	"github.com/aretw0/advisor/internal/config"
	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/adapters/memory"
	"github.com/aretw0/advisor/pkg/adapters/process"
	redisLock "github.com/aretw0/advisor/pkg/adapters/redis"
	"github.com/aretw0/advisor/pkg/clock"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/dsl"
	"github.com/aretw0/advisor/pkg/gateway"
	"github.com/aretw0/advisor/pkg/persistence/middleware"
	"github.com/aretw0/advisor/pkg/ports"
	"github.com/aretw0/advisor/pkg/session"
)

// Version is the release of this module.
//
//go:embed VERSION
var Version string

// Config is the configuration accepted by New.
type Config = config.Config

// App wires a configuration into the gateway, the snapshot store and the
// engines. One App serves any number of sessions.
type App struct {
	Config  Config
	Gateway *gateway.Gateway
	Store   ports.SnapshotStore

	caller gateway.Caller
	locker ports.DistributedLocker
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	clock  clock.Clock
	agg    *runtime.Aggregator
	closer io.Closer
}

// Option defines a functional option for configuring the App.
type Option func(*App)

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks on the gateway and on
// every engine.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *App) {
		a.hooks = a.hooks.Chain(hooks)
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(a *App) {
		a.clock = c
	}
}

// WithStore bypasses the store described by the configuration.
func WithStore(store ports.SnapshotStore) Option {
	return func(a *App) {
		a.Store = store
	}
}

// New validates cfg and builds the App.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a := &App{Config: cfg, clock: clock.Real{}}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cash := cashSet(cfg.Analysis.CashSymbols)
	a.agg = &runtime.Aggregator{Cash: func(symbol string) bool {
		_, ok := cash[strings.ToUpper(strings.TrimSpace(symbol))]
		return ok
	}}

	policy := gateway.Policy{
		MaxRetries:        cfg.API.MaxRetries,
		PerAttemptTimeout: cfg.API.Timeout,
		BaseDelay:         cfg.API.BaseDelay,
		MaxDelay:          cfg.API.MaxDelay,
	}
	gwOpts := []gateway.Option{
		gateway.WithPolicy(policy),
		gateway.WithClock(a.clock),
		gateway.WithLifecycleHooks(a.hooks),
		gateway.WithLogger(a.logger),
	}
	if cfg.API.Token != "" {
		gwOpts = append(gwOpts, gateway.WithTokenSource(gateway.StaticToken(cfg.API.Token)))
	}
	a.Gateway = gateway.New(cfg.API.BaseURL, gwOpts...)
	a.caller = a.Gateway

	if cfg.API.Process.Enabled() {
		r, err := process.NewRunner(cfg.API.Process,
			process.WithPolicy(policy),
			process.WithClock(a.clock),
			process.WithLifecycleHooks(a.hooks),
			process.WithLogger(a.logger),
		)
		if err != nil {
			return nil, err
		}
		a.caller = r
	}

	if a.Store == nil {
		if err := a.openStore(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func cashSet(symbols []string) map[string]struct{} {
	if len(symbols) == 0 {
		symbols = []string{domain.CashSymbol, "CASH"}
	}
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return set
}

func (a *App) openStore() error {
	sc := a.Config.Store
	var base ports.SnapshotStore
	switch sc.Driver {
	case "file":
		base = file.New(sc.Path)
	case "redis":
		rs := redisStore.New(sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB,
			redisStore.WithPrefix(sc.Redis.Prefix),
			redisStore.WithTTL(sc.Redis.TTL),
			redisStore.WithClock(a.clock),
		)
		if sc.Redis.Lock {
			a.locker = redisLock.NewLocker(rs.Client(), sc.Redis.Prefix+"lock:")
		}
		a.closer = rs
		base = rs
	default:
		base = memory.NewStore()
	}

	var mws []middleware.Middleware
	if sc.Redact {
		mws = append(mws, middleware.NewRedactionMiddleware())
	}
	if sc.EncryptionKey != "" {
		active, fallback, err := sc.Keys()
		if err != nil {
			return err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	a.Store = middleware.Chain(base, mws...)
	a.logger.Debug("snapshot store ready", "driver", sc.Driver, "encrypted", sc.EncryptionKey != "", "redacted", sc.Redact)
	return nil
}

// Logger returns the logger given to New.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// NewEngine builds an engine for sessionID calling the configured service,
// or the local scoring program when one is configured.
func (a *App) NewEngine(sessionID string) *runtime.Engine {
	return runtime.NewEngine(a.caller,
		runtime.WithSessionID(sessionID),
		runtime.WithLogger(a.logger),
		runtime.WithLifecycleHooks(a.hooks),
		runtime.WithClock(a.clock),
		runtime.WithPeriod(a.Config.Analysis.Period),
		runtime.WithAggregator(a.agg),
	)
}

// Plan returns the guided plan: the plan file when one is configured,
// otherwise the default plan with the configured durations.
func (a *App) Plan() (runtime.Plan, error) {
	if path := a.Config.Analysis.PlanFile; path != "" {
		return dsl.LoadFile(path)
	}
	return runtime.DefaultPlanWith(a.Config.Analysis.StepMinDuration, a.Config.Analysis.SettleDelay), nil
}

// Sessions returns a manager serving many analyses over the App store.
func (a *App) Sessions(opts ...session.Option) *session.Manager {
	base := []session.Option{session.WithLogger(a.logger)}
	if a.locker != nil {
		base = append(base, session.WithLocker(a.locker))
	}
	return session.NewManager(a.NewEngine, a.Store, slices.Concat(base, opts)...)
}

// Close releases the connections held by the store.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
