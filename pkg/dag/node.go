// Package dag compiles declared inputs and steps into an immutable execution plan.
package dag

import (
	"fmt"
	"strings"
)

// SourceKind tells where a binding takes its value from.
type SourceKind int

const (
	// SourceInput reads a run-time input value.
	SourceInput SourceKind = iota
	// SourceStep reads the output of another step.
	SourceStep
)

// String returns the prefix used in the textual form of a source.
func (k SourceKind) String() string {
	switch k {
	case SourceInput:
		return "input"
	case SourceStep:
		return "step"
	default:
		return "unknown"
	}
}

// Source is the origin of a step argument.
type Source struct {
	Kind SourceKind
	Name string
}

// InputSource returns a source that reads the named input.
func InputSource(name string) Source {
	return Source{Kind: SourceInput, Name: name}
}

// StepSource returns a source that reads the output of the named step.
func StepSource(name string) Source {
	return Source{Kind: SourceStep, Name: name}
}

// ParseSource parses "input:<name>" or "step:<name>".
func ParseSource(raw string) (Source, error) {
	prefix, name, ok := strings.Cut(raw, ":")
	if !ok || name == "" {
		return Source{}, &InvalidSourceError{Raw: raw}
	}
	switch prefix {
	case "input":
		return InputSource(name), nil
	case "step":
		return StepSource(name), nil
	default:
		return Source{}, &InvalidSourceError{Raw: raw}
	}
}

func (s Source) String() string {
	return s.Kind.String() + ":" + s.Name
}

// Node is the graph view of a step: its name, where its arguments come
// from, and any extra ordering dependencies.
type Node struct {
	Name    string
	Sources []Source
	Deps    []string
}

// Validate checks the node is well formed on its own.
func (n *Node) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("step name cannot be empty")
	}
	for _, dep := range n.Deps {
		if dep == "" {
			return fmt.Errorf("step %s: dependency name cannot be empty", n.Name)
		}
	}
	return nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	clone := &Node{Name: n.Name}
	if n.Sources != nil {
		clone.Sources = make([]Source, len(n.Sources))
		copy(clone.Sources, n.Sources)
	}
	if n.Deps != nil {
		clone.Deps = make([]string, len(n.Deps))
		copy(clone.Deps, n.Deps)
	}
	return clone
}

// Dependencies returns the union of step binding sources and explicit
// dependencies, in declaration order and without duplicates.
func (n *Node) Dependencies() []string {
	seen := make(map[string]bool, len(n.Sources)+len(n.Deps))
	deps := make([]string, 0, len(n.Sources)+len(n.Deps))
	for _, src := range n.Sources {
		if src.Kind != SourceStep || seen[src.Name] {
			continue
		}
		seen[src.Name] = true
		deps = append(deps, src.Name)
	}
	for _, dep := range n.Deps {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	return deps
}
