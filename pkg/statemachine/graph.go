package statemachine

import (
	"fmt"
	"slices"
)

// Graph is the immutable set of transitions declared by a machine definition.
// It is safe for concurrent use.
type Graph[E any, S comparable] struct {
	transitions []Transition[E, S]
	states      []S
	// adjacency in declaration order, neighbours deduplicated
	adjacency map[S][]S
	edges     map[string]struct{}
}

// NewGraph validates the transitions and builds the reachability index.
func NewGraph[E any, S comparable](transitions ...Transition[E, S]) (*Graph[E, S], error) {
	if len(transitions) == 0 {
		return nil, ErrNoTransitions
	}

	g := &Graph[E, S]{
		transitions: slices.Clone(transitions),
		adjacency:   make(map[S][]S),
		edges:       make(map[string]struct{}),
	}

	type edgeKey struct {
		from S
		name string
	}
	seen := make(map[edgeKey]struct{})
	known := make(map[S]struct{})

	for i, t := range g.transitions {
		if t.SideEffect != nil && t.Name == "" {
			return nil, fmt.Errorf("transition[%d] %s: %w", i, t, ErrUnnamedSideEffect)
		}
		if t.Name != "" {
			k := edgeKey{from: t.From, name: t.Name}
			if _, dup := seen[k]; dup {
				return nil, fmt.Errorf("transition[%d] %s: %w", i, t, ErrDuplicateEdge)
			}
			seen[k] = struct{}{}
			g.edges[t.Name] = struct{}{}
		}

		for _, s := range []S{t.From, t.To} {
			if _, ok := known[s]; !ok {
				known[s] = struct{}{}
				g.states = append(g.states, s)
			}
		}

		if !slices.Contains(g.adjacency[t.From], t.To) {
			g.adjacency[t.From] = append(g.adjacency[t.From], t.To)
		}
	}

	return g, nil
}

// Transitions returns all transitions in declaration order.
func (g *Graph[E, S]) Transitions() []Transition[E, S] {
	return slices.Clone(g.transitions)
}

// TransitionsFrom returns the transitions starting at state, in declaration order.
func (g *Graph[E, S]) TransitionsFrom(state S) []Transition[E, S] {
	var out []Transition[E, S]
	for _, t := range g.transitions {
		if t.From == state {
			out = append(out, t)
		}
	}
	return out
}

// TransitionsInto returns the transitions ending at state, in declaration order.
func (g *Graph[E, S]) TransitionsInto(state S) []Transition[E, S] {
	var out []Transition[E, S]
	for _, t := range g.transitions {
		if t.To == state {
			out = append(out, t)
		}
	}
	return out
}

// States returns every state mentioned by the graph in first-seen order.
func (g *Graph[E, S]) States() []S {
	return slices.Clone(g.states)
}

// HasState reports whether state appears in any transition.
func (g *Graph[E, S]) HasState(state S) bool {
	return slices.Contains(g.states, state)
}

// EdgeNames returns the sorted set of edge names declared in the graph.
func (g *Graph[E, S]) EdgeNames() []string {
	names := make([]string, 0, len(g.edges))
	for name := range g.edges {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HasEdge reports whether any transition is named edge.
func (g *Graph[E, S]) HasEdge(edge string) bool {
	_, ok := g.edges[edge]
	return ok
}
