package dag

import (
	"fmt"
)

// Graph holds declared inputs and steps while a plan is being assembled.
// Steps live in an arena indexed by declaration order; edges are indices.
type Graph struct {
	inputs     map[string]bool
	inputOrder []string
	nodes      []*Node
	index      map[string]int // step name -> arena index

	deps       [][]int // node -> nodes it depends on
	dependents [][]int // node -> nodes that depend on it
	inDegree   []int

	linked bool
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		inputs: make(map[string]bool),
		index:  make(map[string]int),
	}
}

// AddInput declares a named run-time input.
func (g *Graph) AddInput(name string) error {
	if name == "" {
		return fmt.Errorf("input name cannot be empty")
	}
	if g.inputs[name] {
		return &DuplicateStepError{Name: name}
	}
	if _, exists := g.index[name]; exists {
		return &DuplicateStepError{Name: name}
	}
	g.inputs[name] = true
	g.inputOrder = append(g.inputOrder, name)
	g.linked = false
	return nil
}

// AddNode adds a step node to the graph.
// Dependencies are resolved later so nodes can be added in any order.
func (g *Graph) AddNode(node *Node) error {
	if node == nil {
		return fmt.Errorf("node cannot be nil")
	}
	if err := node.Validate(); err != nil {
		return err
	}
	if _, exists := g.index[node.Name]; exists {
		return &DuplicateStepError{Name: node.Name}
	}
	if g.inputs[node.Name] {
		return &DuplicateStepError{Name: node.Name}
	}

	g.index[node.Name] = len(g.nodes)
	g.nodes = append(g.nodes, node.Clone())
	g.linked = false
	return nil
}

// Len returns the number of step nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// HasInput reports whether name is a declared input.
func (g *Graph) HasInput(name string) bool {
	return g.inputs[name]
}

// HasNode reports whether name is a declared step.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.index[name]
	return ok
}

// link resolves every binding source and explicit dependency into index
// edges. It fails on the first source that names nothing declared.
func (g *Graph) link() error {
	if g.linked {
		return nil
	}

	n := len(g.nodes)
	g.deps = make([][]int, n)
	g.dependents = make([][]int, n)
	g.inDegree = make([]int, n)

	for i, node := range g.nodes {
		for _, src := range node.Sources {
			switch src.Kind {
			case SourceInput:
				if !g.inputs[src.Name] {
					return &UnresolvedArgumentError{Step: node.Name, Source: src}
				}
			case SourceStep:
				if _, ok := g.index[src.Name]; !ok {
					return &UnresolvedArgumentError{Step: node.Name, Source: src}
				}
			default:
				return &UnresolvedArgumentError{Step: node.Name, Source: src}
			}
		}

		for _, dep := range node.Dependencies() {
			j, ok := g.index[dep]
			if !ok {
				return &UnresolvedArgumentError{Step: node.Name, Source: StepSource(dep)}
			}
			g.deps[i] = append(g.deps[i], j)
			g.dependents[j] = append(g.dependents[j], i)
			g.inDegree[i]++
		}
	}

	g.linked = true
	return nil
}
