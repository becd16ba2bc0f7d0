package workflow

import (
	"fmt"
	"sort"

	"github.com/goclaw/reactor/pkg/reactor"
)

func (b *BackoffDef) policy() (reactor.BackoffPolicy, error) {
	initial, err := parseDuration(b.Initial)
	if err != nil {
		return reactor.BackoffPolicy{}, err
	}
	limit, err := parseDuration(b.Max)
	if err != nil {
		return reactor.BackoffPolicy{}, err
	}
	if limit > 0 && limit < initial {
		return reactor.BackoffPolicy{}, fmt.Errorf("max %s is below initial %s", b.Max, b.Initial)
	}
	return reactor.BackoffPolicy{Initial: initial, Max: limit, Factor: b.Factor}, nil
}

// Build validates d and turns it into an executable workflow using the
// handlers in reg.
func Build(d *Definition, reg *Registry) (*reactor.Workflow, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	b := reactor.New(d.Name).Input(d.Inputs...)
	for i := range d.Steps {
		opts, err := stepOptions(&d.Steps[i], reg)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: step %q: %w", d.Name, d.Steps[i].Name, err)
		}
		b.Step(d.Steps[i].Name, opts...)
	}

	wf, err := b.Return(d.Return).Build()
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", d.Name, err)
	}
	return wf, nil
}

func stepOptions(s *StepDef, reg *Registry) ([]reactor.StepOption, error) {
	factory, err := reg.Lookup(s.Type)
	if err != nil {
		return nil, err
	}
	run, err := factory(s.Config)
	if err != nil {
		return nil, fmt.Errorf("%s handler: %w", s.Type, err)
	}
	opts := []reactor.StepOption{reactor.Run(run)}

	// Sorted so binding errors are reported deterministically.
	params := make([]string, 0, len(s.Args))
	for p := range s.Args {
		params = append(params, p)
	}
	sort.Strings(params)
	for _, p := range params {
		opts = append(opts, reactor.Bind(p, s.Args[p]))
	}

	if len(s.DependsOn) > 0 {
		opts = append(opts, reactor.DependsOn(s.DependsOn...))
	}
	if timeout, _ := parseDuration(s.Timeout); timeout > 0 {
		opts = append(opts, reactor.Timeout(timeout))
	}
	if s.Retries > 0 {
		opts = append(opts, reactor.Retries(s.Retries))
	}
	if s.Backoff != nil {
		policy, err := s.Backoff.policy()
		if err != nil {
			return nil, err
		}
		opts = append(opts, reactor.WithBackoff(policy))
	}
	if s.Fallback != nil {
		opts = append(opts, reactor.Fallback(s.Fallback))
	}
	opts = append(opts, errorPolicy(s)...)

	if s.Undo != nil {
		undoFactory, err := reg.Lookup(s.Undo.Type)
		if err != nil {
			return nil, fmt.Errorf("undo: %w", err)
		}
		undoRun, err := undoFactory(s.Undo.Config)
		if err != nil {
			return nil, fmt.Errorf("undo %s handler: %w", s.Undo.Type, err)
		}
		opts = append(opts, reactor.Undo(undoWith(undoRun)))
	}
	return opts, nil
}

// errorPolicy maps on_error onto compensation. An empty policy and
// "retry" keep the executor default: retry within budget, then abort.
func errorPolicy(s *StepDef) []reactor.StepOption {
	switch s.OnError {
	case OnErrorSkip:
		return []reactor.StepOption{reactor.SkipOnExhaustion()}
	case OnErrorContinue:
		retries, fallback := s.Retries, s.Fallback
		return []reactor.StepOption{reactor.Compensate(
			func(sc *reactor.StepContext, _ error, _ reactor.Args) (reactor.Decision, error) {
				if sc.Attempt() <= retries {
					return reactor.Retry(), nil
				}
				return reactor.Continue(fallback), nil
			},
		)}
	case OnErrorAbort:
		return []reactor.StepOption{reactor.Compensate(
			func(*reactor.StepContext, error, reactor.Args) (reactor.Decision, error) {
				return reactor.Abort(), nil
			},
		)}
	default:
		return nil
	}
}

func undoWith(run reactor.RunFunc) reactor.UndoFunc {
	return func(sc *reactor.StepContext, value any, args reactor.Args) error {
		undoArgs := make(reactor.Args, len(args)+1)
		for k, v := range args {
			undoArgs[k] = v
		}
		undoArgs[UndoValueArg] = value
		_, err := run(sc, undoArgs)
		return err
	}
}
