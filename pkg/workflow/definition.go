// Package workflow loads workflow definitions from YAML and builds them
// into executable reactor workflows.
package workflow

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Error handling policies for on_error.
const (
	OnErrorRetry    = "retry"
	OnErrorSkip     = "skip"
	OnErrorContinue = "continue"
	OnErrorAbort    = "abort"
)

// Definition is a workflow as written in a YAML file.
type Definition struct {
	Name        string    `yaml:"name" validate:"required"`
	Description string    `yaml:"description"`
	Inputs      []string  `yaml:"inputs" validate:"dive,required"`
	Steps       []StepDef `yaml:"steps" validate:"required,min=1,dive"`
	Return      string    `yaml:"return" validate:"required"`

	// Source is the file the definition was read from, if any.
	Source string `yaml:"-"`
}

// StepDef declares one step. Args maps a parameter name to "input:<name>"
// or "step:<name>"; Config is passed to the handler factory.
type StepDef struct {
	Name      string            `yaml:"name" validate:"required"`
	Type      string            `yaml:"type" validate:"required"`
	Args      map[string]string `yaml:"args"`
	Config    map[string]any    `yaml:"config"`
	DependsOn []string          `yaml:"depends_on"`
	Timeout   string            `yaml:"timeout"`
	Retries   int               `yaml:"retries" validate:"min=0"`
	Backoff   *BackoffDef       `yaml:"backoff"`
	OnError   string            `yaml:"on_error" validate:"omitempty,oneof=retry skip continue abort"`
	Fallback  any               `yaml:"fallback"`
	Undo      *UndoDef          `yaml:"undo"`
}

// BackoffDef overrides the executor's retry backoff for one step.
type BackoffDef struct {
	Initial string  `yaml:"initial"`
	Max     string  `yaml:"max"`
	Factor  float64 `yaml:"factor" validate:"omitempty,gte=1"`
}

// UndoDef names the handler that reverses a step. The handler receives the
// step's args plus "value", the value the step produced.
type UndoDef struct {
	Type   string         `yaml:"type" validate:"required"`
	Config map[string]any `yaml:"config"`
}

// UndoValueArg is the argument through which an undo handler receives the
// value its step produced.
const UndoValueArg = "value"

var validate = validator.New()

// Validate checks the definition's structure. Graph errors such as cycles
// are reported by Build.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("workflow %q: %w", d.Name, err)
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if seen[s.Name] {
			return fmt.Errorf("workflow %q: duplicate step %q", d.Name, s.Name)
		}
		seen[s.Name] = true

		if _, err := parseDuration(s.Timeout); err != nil {
			return fmt.Errorf("workflow %q: step %q timeout: %w", d.Name, s.Name, err)
		}
		if _, clash := s.Args[UndoValueArg]; clash && s.Undo != nil {
			return fmt.Errorf("workflow %q: step %q: argument %q is reserved for the undo handler's prior value", d.Name, s.Name, UndoValueArg)
		}
		if s.Backoff != nil {
			if _, err := s.Backoff.policy(); err != nil {
				return fmt.Errorf("workflow %q: step %q backoff: %w", d.Name, s.Name, err)
			}
		}
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q cannot be negative", s)
	}
	return d, nil
}
