package dag

import (
	"container/list"
)

// topologicalOrder returns node indices in dependency order using Kahn's
// algorithm. Ties keep declaration order so plans are deterministic.
// Time complexity: O(V+E)
func (g *Graph) topologicalOrder() ([]int, error) {
	if err := g.link(); err != nil {
		return nil, err
	}

	inDegree := make([]int, len(g.inDegree))
	copy(inDegree, g.inDegree)

	queue := list.New()
	for i, degree := range inDegree {
		if degree == 0 {
			queue.PushBack(i)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for queue.Len() > 0 {
		elem := queue.Front()
		queue.Remove(elem)
		node := elem.Value.(int)

		order = append(order, node)

		for _, next := range g.dependents[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue.PushBack(next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		if cycle, ok := g.DetectCycle(); ok {
			return nil, cycle
		}
		return nil, &CycleDetectedError{}
	}
	return order, nil
}

// levels groups node indices by depth. Layer 0 holds steps with no step
// dependencies; steps in one layer never depend on each other.
func (g *Graph) levels(order []int) [][]int {
	depth := make([]int, len(g.nodes))
	maxDepth := 0
	for _, node := range order {
		for _, dep := range g.deps[node] {
			if depth[dep]+1 > depth[node] {
				depth[node] = depth[dep] + 1
			}
		}
		if depth[node] > maxDepth {
			maxDepth = depth[node]
		}
	}

	if len(order) == 0 {
		return [][]int{}
	}
	layers := make([][]int, maxDepth+1)
	for _, node := range order {
		layers[depth[node]] = append(layers[depth[node]], node)
	}
	return layers
}
