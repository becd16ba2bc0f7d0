package reactor

import (
	"errors"
	"fmt"

	"github.com/goclaw/reactor/pkg/dag"
)

// Workflow is a built, immutable workflow. One Workflow may be executed
// many times, concurrently.
type Workflow struct {
	name  string
	steps []*Step // aligned with plan indices
	plan  *dag.Plan
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Plan returns the compiled dependency plan.
func (w *Workflow) Plan() *dag.Plan { return w.plan }

// Inputs returns the declared input names.
func (w *Workflow) Inputs() []string { return w.plan.Inputs() }

// Return returns the name of the return step.
func (w *Workflow) Return() string { return w.plan.ReturnName() }

// Step returns a copy of the named step definition.
func (w *Workflow) Step(name string) (Step, bool) {
	i, ok := w.plan.Index(name)
	if !ok {
		return Step{}, false
	}
	return *w.steps[i].clone(), true
}

// Builder incrementally constructs a Workflow.
type Builder struct {
	name   string
	inputs []string
	steps  []*Step
	seen   map[string]bool
	ret    string
	errs   []error
}

// New creates a workflow builder.
func New(name string) *Builder {
	return &Builder{
		name: name,
		seen: make(map[string]bool),
	}
}

// Input declares named run-time inputs.
func (b *Builder) Input(names ...string) *Builder {
	b.inputs = append(b.inputs, names...)
	return b
}

// Step declares a step.
func (b *Builder) Step(name string, opts ...StepOption) *Builder {
	step := &Step{Name: name}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(step); err != nil {
			b.errs = append(b.errs, fmt.Errorf("step %q: %w", name, err))
		}
	}

	if b.seen[name] {
		b.errs = append(b.errs, &dag.DuplicateStepError{Name: name})
		return b
	}
	b.seen[name] = true
	b.steps = append(b.steps, step)
	return b
}

// Add declares a step built elsewhere, such as from a workflow file.
func (b *Builder) Add(step *Step) *Builder {
	if step == nil {
		b.errs = append(b.errs, fmt.Errorf("step cannot be nil"))
		return b
	}
	if b.seen[step.Name] {
		b.errs = append(b.errs, &dag.DuplicateStepError{Name: step.Name})
		return b
	}
	b.seen[step.Name] = true
	b.steps = append(b.steps, step.clone())
	return b
}

// Return selects the step whose value the run returns.
func (b *Builder) Return(name string) *Builder {
	b.ret = name
	return b
}

// Build validates the declaration and compiles its plan.
func (b *Builder) Build() (*Workflow, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if b.name == "" {
		return nil, fmt.Errorf("workflow name cannot be empty")
	}

	nodes := make([]*dag.Node, len(b.steps))
	for i, step := range b.steps {
		if err := step.Validate(); err != nil {
			return nil, err
		}
		nodes[i] = step.node()
	}

	plan, err := dag.Compile(b.inputs, nodes, b.ret)
	if err != nil {
		return nil, err
	}

	// Step definitions are stored by plan index.
	steps := make([]*Step, len(b.steps))
	for _, step := range b.steps {
		i, ok := plan.Index(step.Name)
		if !ok {
			return nil, fmt.Errorf("step %q missing from compiled plan", step.Name)
		}
		steps[i] = step.clone()
	}

	return &Workflow{name: b.name, steps: steps, plan: plan}, nil
}
