package statemachine

// FindPath returns a sequence of states leading from start to goal, excluding
// start and including goal. The second value is false when goal is
// unreachable. When start equals goal the path is empty and found is true.
//
// The search is depth-first over the reachability graph and tracks visited
// states, so it terminates on cyclic graphs. The path is not guaranteed to be
// the shortest one.
func (g *Graph[E, S]) FindPath(start, goal S) ([]S, bool) {
	if start == goal {
		return []S{}, true
	}

	visited := map[S]struct{}{start: {}}

	var walk func(from S) []S
	walk = func(from S) []S {
		for _, next := range g.adjacency[from] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			if next == goal {
				return []S{next}
			}
			if rest := walk(next); rest != nil {
				return append([]S{next}, rest...)
			}
		}
		return nil
	}

	path := walk(start)
	if path == nil {
		return nil, false
	}
	return path, true
}
