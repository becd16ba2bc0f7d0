package reactor

import (
	"time"

	"github.com/goclaw/reactor/pkg/logger"
)

// Option is a functional option for configuring the Executor.
type Option func(*Executor)

// WithMaxConcurrency bounds how many steps run at once. Zero or less means
// no bound beyond the number of steps in the run.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		e.maxConcurrency = n
	}
}

// WithTimeout sets the default run deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.timeout = d
		}
	}
}

// WithDefaultStepTimeout applies to steps that declare no timeout.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.defaultStepTimeout = d
		}
	}
}

// WithDefaultBackoff applies to steps that declare no backoff policy.
func WithDefaultBackoff(policy BackoffPolicy) Option {
	return func(e *Executor) {
		e.defaultBackoff = policy
	}
}

// WithLogger sets the executor logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.logger = log
		}
	}
}

// WithMiddleware registers observers.
func WithMiddleware(observers ...Observer) Option {
	return func(e *Executor) {
		e.pending = append(e.pending, observers...)
	}
}

// WithRunIDGenerator overrides how run identifiers are created.
func WithRunIDGenerator(fn func() string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.newRunID = fn
		}
	}
}

// RunOption overrides executor defaults for a single run.
type RunOption func(*runConfig)

type runConfig struct {
	maxConcurrency int
	timeout        time.Duration
	stepTimeout    time.Duration
	runID          string
}

// MaxConcurrency bounds parallel steps for this run.
func MaxConcurrency(n int) RunOption {
	return func(c *runConfig) {
		c.maxConcurrency = n
	}
}

// RunTimeout sets the deadline for this run. Zero disables it.
func RunTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// StepTimeout replaces the default step timeout for this run. Steps with
// their own timeout keep it.
func StepTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		c.stepTimeout = d
	}
}

// RunID fixes the identifier of this run.
func RunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}
