// Package psoptions configures a Runtime with functional options, after
// GoMC's own config package: one Option interface, one constructor function
// per concern, each returning a closure that Prepare applies to a shared
// Config. Grounded directly on erthbison-GoMC's config.go/configSimulator.go
// pair, generalized from "configure a distributed-systems simulation" to
// "configure a bug-finding run of hierarchical state machines".
package psoptions

import (
	"time"

	"github.com/psharp-go/psharp/network"
	"github.com/psharp-go/psharp/reliable"
	"github.com/psharp-go/psharp/scheduler"
)

// Option is implemented by every value Prepare accepts.
type Option interface {
	apply(*Config)
}

// Config is the fully-resolved set of knobs a Runtime is built from.
// Exported so callers that build their own Runtime wiring (e.g. cmd/pstest)
// can read back what was configured.
type Config struct {
	StrategyKind  string
	Seed          int64
	MaxIterations int
	MaxSteps      int
	Timeout       time.Duration
	IgnorePanics  bool
	Logger        scheduler.Logger
	PriorityOf    scheduler.PriorityFunc
	ReplayTrace   []byte
	Store         reliable.StateStore
	Network       network.Provider
	FailureInject scheduler.FailureInjector
}

// Default returns the Config Prepare starts from before applying opts: the
// "random" strategy, an unseeded-but-reproducible seed of 0, 1000
// iterations, no step bound, no timeout, panics in user handler code caught
// and reported as UnhandledException bugs rather than propagated.
func Default() Config {
	return Config{
		StrategyKind:  "random",
		Seed:          0,
		MaxIterations: 1000,
		MaxSteps:      0,
		IgnorePanics:  false,
	}
}

// Prepare applies opts over Default() and returns the resolved Config.
func Prepare(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return cfg
}

type optFunc func(*Config)

func (f optFunc) apply(c *Config) { f(c) }

// WithStrategy selects the exploration strategy by name: "random", "dfs",
// "pct", or "replay". "replay" requires WithReplayTrace to also be given.
func WithStrategy(kind string) Option {
	return optFunc(func(c *Config) { c.StrategyKind = kind })
}

// WithSeed fixes the seed consumed by the random and pct strategies.
func WithSeed(seed int64) Option {
	return optFunc(func(c *Config) { c.Seed = seed })
}

// WithMaxIterations bounds how many times PrepareNextIteration may restart
// the exploration strategy before the runtime gives up and reports
// quiescence across the whole campaign.
func WithMaxIterations(n int) Option {
	return optFunc(func(c *Config) { c.MaxIterations = n })
}

// WithMaxSteps bounds the number of scheduling decisions within a single
// iteration; 0 means unbounded.
func WithMaxSteps(n int) Option {
	return optFunc(func(c *Config) { c.MaxSteps = n })
}

// WithTimeout bounds wall-clock time for a single iteration.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(c *Config) { c.Timeout = d })
}

// IgnorePanics makes a panic raised by user handler code (entry, exit, or
// an action) propagate out of Run uncaught instead of being recovered and
// reported as an UnhandledException bug, the same trade GoMC's own
// IgnorePanicOption offers: a real stack trace for debugging at the cost of
// a crashed run instead of a clean bug report. Off by default.
func IgnorePanics() Option {
	return optFunc(func(c *Config) { c.IgnorePanics = true })
}

// WithLogger attaches a scheduler.Logger (pslog.Logger satisfies this) for
// the runtime's own diagnostics.
func WithLogger(l scheduler.Logger) Option {
	return optFunc(func(c *Config) { c.Logger = l })
}

// WithPriority supplies the PriorityFunc the "pct" strategy uses to rank
// machines; only meaningful together with WithStrategy("pct").
func WithPriority(f scheduler.PriorityFunc) Option {
	return optFunc(func(c *Config) { c.PriorityOf = f })
}

// WithReplayTrace supplies a previously-recorded schedule trace (the text
// format trace.ScheduleTrace.WriteTo produces) for WithStrategy("replay").
func WithReplayTrace(b []byte) Option {
	return optFunc(func(c *Config) { c.ReplayTrace = b })
}

// WithStateStore enables the reliable-state-machine overlay, backing every
// machine's step with durable, transactional storage.
func WithStateStore(s reliable.StateStore) Option {
	return optFunc(func(c *Config) { c.Store = s })
}

// WithNetworkProvider installs the boundary used for any send/create whose
// target partition differs from the runtime's own.
func WithNetworkProvider(p network.Provider) Option {
	return optFunc(func(c *Config) { c.Network = p })
}

// WithFailureInjector installs a hook the scheduler consults before
// granting each step, letting a test simulate a participant crashing
// between steps without it running any exit handler. Off by default;
// folds GoMC's failureManager concept into the exploration boundary.
func WithFailureInjector(f scheduler.FailureInjector) Option {
	return optFunc(func(c *Config) { c.FailureInject = f })
}
