package dag

import (
	"fmt"
	"strings"
)

// Plan is a validated, immutable DAG. It is safe to share across
// concurrent runs; every accessor returns copies.
type Plan struct {
	inputs     []string
	names      []string
	index      map[string]int
	deps       [][]int
	dependents [][]int
	order      []int
	layers     [][]int
	required   []bool // ancestors of the return step, inclusive
	ret        int
}

// Compile validates the declared inputs and nodes and builds a plan that
// resolves to ret.
func Compile(inputs []string, nodes []*Node, ret string) (*Plan, error) {
	g := NewGraph()
	for _, in := range inputs {
		if err := g.AddInput(in); err != nil {
			return nil, err
		}
	}
	for _, node := range nodes {
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}
	return g.Compile(ret)
}

// Compile builds the plan. Checks run in a fixed order: argument
// resolution, acyclicity, then return reachability.
func (g *Graph) Compile(ret string) (*Plan, error) {
	if err := g.link(); err != nil {
		return nil, err
	}

	order, err := g.topologicalOrder()
	if err != nil {
		return nil, err
	}

	if ret == "" {
		return nil, &UnreachableReturnError{Reason: "no return step declared"}
	}
	if g.inputs[ret] {
		return nil, &UnreachableReturnError{Return: ret, Reason: "names an input, not a step"}
	}
	retIdx, ok := g.index[ret]
	if !ok {
		return nil, &UnreachableReturnError{Return: ret, Reason: "not a declared step"}
	}

	// A step is reachable once every step it depends on is reachable;
	// root steps only read inputs, which link has already resolved.
	reached := make([]bool, len(g.nodes))
	for _, node := range order {
		reached[node] = true
		for _, dep := range g.deps[node] {
			if !reached[dep] {
				reached[node] = false
				break
			}
		}
	}
	if !reached[retIdx] {
		return nil, &UnreachableReturnError{Return: ret, Reason: "no path from the inputs"}
	}

	plan := &Plan{
		inputs:     append([]string(nil), g.inputOrder...),
		names:      make([]string, len(g.nodes)),
		index:      make(map[string]int, len(g.nodes)),
		deps:       make([][]int, len(g.nodes)),
		dependents: make([][]int, len(g.nodes)),
		order:      order,
		layers:     g.levels(order),
		required:   make([]bool, len(g.nodes)),
		ret:        retIdx,
	}
	for i, node := range g.nodes {
		plan.names[i] = node.Name
		plan.index[node.Name] = i
		plan.deps[i] = append([]int(nil), g.deps[i]...)
		plan.dependents[i] = append([]int(nil), g.dependents[i]...)
	}

	stack := []int{retIdx}
	plan.required[retIdx] = true
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range plan.deps[node] {
			if !plan.required[dep] {
				plan.required[dep] = true
				stack = append(stack, dep)
			}
		}
	}

	return plan, nil
}

// Inputs returns the declared input names.
func (p *Plan) Inputs() []string {
	return append([]string(nil), p.inputs...)
}

// Len returns the number of steps in the plan.
func (p *Plan) Len() int {
	return len(p.names)
}

// Name returns the name of the step at index i.
func (p *Plan) Name(i int) string {
	return p.names[i]
}

// Index returns the arena index of the named step.
func (p *Plan) Index(name string) (int, bool) {
	i, ok := p.index[name]
	return i, ok
}

// Deps returns the indices of the steps that step i depends on.
func (p *Plan) Deps(i int) []int {
	return append([]int(nil), p.deps[i]...)
}

// Dependents returns the indices of the steps that depend on step i.
func (p *Plan) Dependents(i int) []int {
	return append([]int(nil), p.dependents[i]...)
}

// Order returns every step index in topological order.
func (p *Plan) Order() []int {
	return append([]int(nil), p.order...)
}

// ReverseOrder returns every step index in reverse topological order.
func (p *Plan) ReverseOrder() []int {
	rev := make([]int, len(p.order))
	for i, node := range p.order {
		rev[len(p.order)-1-i] = node
	}
	return rev
}

// Return returns the arena index of the return step.
func (p *Plan) Return() int {
	return p.ret
}

// ReturnName returns the name of the return step.
func (p *Plan) ReturnName() string {
	return p.names[p.ret]
}

// Required reports whether step i is needed to produce the return value.
func (p *Plan) Required(i int) bool {
	return p.required[i]
}

// RequiredNames returns the steps needed to produce the return value, in
// topological order.
func (p *Plan) RequiredNames() []string {
	names := make([]string, 0, len(p.names))
	for _, node := range p.order {
		if p.required[node] {
			names = append(names, p.names[node])
		}
	}
	return names
}

// Layers returns step names grouped by depth.
func (p *Plan) Layers() [][]string {
	layers := make([][]string, len(p.layers))
	for i, layer := range p.layers {
		layers[i] = make([]string, len(layer))
		for j, node := range layer {
			layers[i][j] = p.names[node]
		}
	}
	return layers
}

// MaxParallel returns the width of the widest layer.
func (p *Plan) MaxParallel() int {
	widest := 0
	for _, layer := range p.layers {
		if len(layer) > widest {
			widest = len(layer)
		}
	}
	return widest
}

// CriticalPath returns the longest dependency chain ending at the return
// step.
func (p *Plan) CriticalPath() []string {
	dist := make([]int, len(p.names))
	prev := make([]int, len(p.names))
	for _, node := range p.order {
		dist[node] = 1
		prev[node] = -1
		for _, dep := range p.deps[node] {
			if dist[dep]+1 > dist[node] {
				dist[node] = dist[dep] + 1
				prev[node] = dep
			}
		}
	}

	path := make([]string, dist[p.ret])
	for node, i := p.ret, len(path)-1; node >= 0; node, i = prev[node], i-1 {
		path[i] = p.names[node]
	}
	return path
}

// String returns a human-readable summary of the plan.
func (p *Plan) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Plan (%d steps, %d layers, return %s)\n", len(p.names), len(p.layers), p.ReturnName()))
	for i, layer := range p.Layers() {
		sb.WriteString(fmt.Sprintf("  Layer %d: %s\n", i, strings.Join(layer, ", ")))
	}
	sb.WriteString(fmt.Sprintf("  Critical path: %s\n", strings.Join(p.CriticalPath(), " → ")))
	return sb.String()
}
