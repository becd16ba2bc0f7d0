package dag

const (
	white = iota // not visited
	gray         // on the current DFS path
	black        // finished
)

// DetectCycle uses DFS with three-colour marking to find one cycle.
// Returns (nil, false) when the graph is acyclic.
// Time complexity: O(V+E)
func (g *Graph) DetectCycle() (*CycleDetectedError, bool) {
	if len(g.nodes) == 0 {
		return nil, false
	}
	if err := g.link(); err != nil {
		return nil, false
	}

	color := make([]int, len(g.nodes))
	for i := range g.nodes {
		if color[i] != white {
			continue
		}
		if cycle := g.dfsCycle(i, color, nil); cycle != nil {
			return &CycleDetectedError{Cycle: cycle}, true
		}
	}
	return nil, false
}

// dfsCycle walks from node to the steps that depend on it and returns the
// closed cycle path when a back edge is found.
func (g *Graph) dfsCycle(node int, color []int, path []int) []string {
	color[node] = gray
	path = append(path, node)

	for _, next := range g.dependents[node] {
		switch color[next] {
		case white:
			if cycle := g.dfsCycle(next, color, path); cycle != nil {
				return cycle
			}
		case gray:
			return g.cyclePath(path, next)
		}
	}

	color[node] = black
	return nil
}

// cyclePath cuts the DFS path at start and closes the loop.
func (g *Graph) cyclePath(path []int, start int) []string {
	from := 0
	for i, node := range path {
		if node == start {
			from = i
			break
		}
	}

	cycle := make([]string, 0, len(path)-from+1)
	for _, node := range path[from:] {
		cycle = append(cycle, g.nodes[node].Name)
	}
	return append(cycle, g.nodes[start].Name)
}

// HasCycle reports whether the graph contains a cycle.
func (g *Graph) HasCycle() bool {
	_, hasCycle := g.DetectCycle()
	return hasCycle
}
