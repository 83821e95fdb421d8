package queryflow

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/queryflow/pkg/queryflow/checkpoint"
	"github.com/randalmurphal/queryflow/pkg/queryflow/observability"
)

const (
	// DefaultMaxRetries is the retry budget when none is configured.
	DefaultMaxRetries = 3

	// DefaultInterpretRowLimit is how many rows interpretation receives.
	DefaultInterpretRowLimit = 40
)

type runConfig struct {
	maxRetries        int
	policy            RetryPolicy
	interpretRowLimit int
	maxSteps          int
	clock             func() time.Time

	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool

	checkpointStore        checkpoint.Store
	runID                  string
	checkpointFailureFatal bool
	sequence               int
}

func defaultRunConfig() runConfig {
	return runConfig{
		maxRetries:        DefaultMaxRetries,
		policy:            CountEveryAttempt,
		interpretRowLimit: DefaultInterpretRowLimit,
		clock:             time.Now,
		metrics:           observability.NoopMetrics{},
		spans:             observability.NoopSpanManager{},
	}
}

func newRunConfig(opts []RunOption) runConfig {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxSteps <= 0 {
		cfg.maxSteps = stepBudget(cfg.maxRetries)
	}
	return cfg
}

// stepBudget bounds the steps a run can take: START, up to four steps per
// attempt (generate, execute, route, analyze), a terminal step and slack.
func stepBudget(maxRetries int) int {
	return 4*(maxRetries+1) + 4
}

func (c *runConfig) now() time.Time {
	return c.clock().UTC()
}

// RunOption configures a run.
type RunOption func(*runConfig)

// WithMaxRetries sets the retry budget. Values below 1 are ignored.
// Default: 3.
func WithMaxRetries(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryPolicy chooses which routing decisions consume a retry slot.
// Default: CountEveryAttempt.
func WithRetryPolicy(p RetryPolicy) RunOption {
	return func(c *runConfig) {
		c.policy = p
	}
}

// WithInterpretRowLimit sets how many leading rows interpretation receives.
// Values below 1 are ignored. Default: 40.
func WithInterpretRowLimit(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.interpretRowLimit = n
		}
	}
}

// WithMaxSteps sets a hard limit on step executions. The default is derived
// from the retry budget and is never reached by a correct run.
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithClock sets the time source used for trace timestamps and the current
// date given to the model services.
func WithClock(clock func() time.Time) RunOption {
	return func(c *runConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithObservabilityLogger enables run and step lifecycle logging.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables metrics through recorder. Pass
// observability.DefaultMetrics() to use the global meter provider.
func WithMetrics(recorder observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithTracing enables run and step spans through spans.
func WithTracing(spans observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if spans != nil {
			c.spans = spans
			c.tracingEnabled = true
		}
	}
}

// WithCheckpointing saves a checkpoint after every step. Requires WithRunID.
func WithCheckpointing(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithRunID sets the run identifier used as the checkpoint key.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithCheckpointFailureFatal makes a failed checkpoint save stop the run.
// By default failures are logged and the run continues.
func WithCheckpointFailureFatal(fatal bool) RunOption {
	return func(c *runConfig) {
		c.checkpointFailureFatal = fatal
	}
}
