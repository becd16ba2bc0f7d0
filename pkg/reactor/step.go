// Package reactor runs dependency-graph workflows with saga-style compensation.
package reactor

import (
	"fmt"
	"math"
	"time"

	"github.com/goclaw/reactor/pkg/dag"
)

// Args holds the resolved argument values of one step invocation, keyed by
// parameter name.
type Args map[string]any

// RunFunc executes a step's forward operation.
type RunFunc func(sc *StepContext, args Args) (any, error)

// CompensateFunc chooses how the run proceeds after a step failure.
// Returning a non-nil error escalates to abort.
type CompensateFunc func(sc *StepContext, failure error, args Args) (Decision, error)

// UndoFunc reverses a step that previously succeeded with value.
type UndoFunc func(sc *StepContext, value any, args Args) error

// Binding maps a run function parameter to the input or step output that
// supplies it.
type Binding struct {
	Param  string
	Source dag.Source
}

// BackoffPolicy controls the delay between retries of a failed step.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// Delay returns the wait before the given retry (1 for the first retry).
// A zero Initial means retry immediately.
func (p BackoffPolicy) Delay(retry int) time.Duration {
	if p.Initial <= 0 || retry < 1 {
		return 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	backoff := float64(p.Initial) * math.Pow(factor, float64(retry-1))
	if p.Max > 0 && backoff > float64(p.Max) {
		return p.Max
	}
	return time.Duration(backoff)
}

// Step defines one unit of work in a workflow. Steps are immutable once
// the workflow is built.
type Step struct {
	Name             string
	Bindings         []Binding
	Deps             []string
	Run              RunFunc
	Compensate       CompensateFunc
	Undo             UndoFunc
	Timeout          time.Duration
	MaxRetries       int
	Backoff          BackoffPolicy
	SkipOnExhaustion bool
	Fallback         any
}

// StepOption configures a step definition.
type StepOption func(step *Step) error

// Bind maps param to a source written as "input:<name>" or "step:<name>".
func Bind(param, source string) StepOption {
	return func(step *Step) error {
		src, err := dag.ParseSource(source)
		if err != nil {
			return err
		}
		return bind(step, param, src)
	}
}

// FromInput maps param to the named run-time input.
func FromInput(param, input string) StepOption {
	return func(step *Step) error {
		return bind(step, param, dag.InputSource(input))
	}
}

// FromStep maps param to the output of the named step.
func FromStep(param, from string) StepOption {
	return func(step *Step) error {
		return bind(step, param, dag.StepSource(from))
	}
}

func bind(step *Step, param string, src dag.Source) error {
	if param == "" {
		return fmt.Errorf("binding parameter cannot be empty")
	}
	for _, b := range step.Bindings {
		if b.Param == param {
			return fmt.Errorf("parameter %q bound twice", param)
		}
	}
	step.Bindings = append(step.Bindings, Binding{Param: param, Source: src})
	return nil
}

// DependsOn adds ordering dependencies that do not feed an argument.
func DependsOn(steps ...string) StepOption {
	return func(step *Step) error {
		step.Deps = append(step.Deps, steps...)
		return nil
	}
}

// Run sets the forward operation.
func Run(fn RunFunc) StepOption {
	return func(step *Step) error {
		step.Run = fn
		return nil
	}
}

// Compensate sets the failure decision function.
func Compensate(fn CompensateFunc) StepOption {
	return func(step *Step) error {
		step.Compensate = fn
		return nil
	}
}

// Undo sets the rollback operation.
func Undo(fn UndoFunc) StepOption {
	return func(step *Step) error {
		step.Undo = fn
		return nil
	}
}

// Timeout bounds each attempt of the step.
func Timeout(d time.Duration) StepOption {
	return func(step *Step) error {
		if d < 0 {
			return fmt.Errorf("timeout cannot be negative")
		}
		step.Timeout = d
		return nil
	}
}

// Retries sets how many times a failed step may be re-run.
func Retries(n int) StepOption {
	return func(step *Step) error {
		if n < 0 {
			return fmt.Errorf("max retries cannot be negative")
		}
		step.MaxRetries = n
		return nil
	}
}

// WithBackoff sets the delay policy between retries.
func WithBackoff(policy BackoffPolicy) StepOption {
	return func(step *Step) error {
		step.Backoff = policy
		return nil
	}
}

// SkipOnExhaustion skips the step instead of aborting the run once its
// retries are used up.
func SkipOnExhaustion() StepOption {
	return func(step *Step) error {
		step.SkipOnExhaustion = true
		return nil
	}
}

// Fallback sets the value dependents receive when the step is skipped.
func Fallback(value any) StepOption {
	return func(step *Step) error {
		step.Fallback = value
		return nil
	}
}

// Validate checks the step definition on its own.
func (s *Step) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("step name cannot be empty")
	}
	if s.Run == nil {
		return fmt.Errorf("step %q missing run function", s.Name)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("step %q timeout cannot be negative", s.Name)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("step %q max retries cannot be negative", s.Name)
	}
	return nil
}

func (s *Step) node() *dag.Node {
	n := &dag.Node{Name: s.Name, Deps: s.Deps}
	for _, b := range s.Bindings {
		n.Sources = append(n.Sources, b.Source)
	}
	return n
}

func (s *Step) clone() *Step {
	clone := *s
	clone.Bindings = append([]Binding(nil), s.Bindings...)
	clone.Deps = append([]string(nil), s.Deps...)
	return &clone
}
