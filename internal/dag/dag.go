// Package dag orders pipeline stages that depend on each other. It detects
// cycles, sorts topologically and groups stages into execution levels whose
// members may run concurrently. Ties are broken by insertion order so the
// declared stage order survives wherever dependencies allow it.
package dag

import (
	"fmt"
	"strings"
)

// CycleError is returned when the graph is not acyclic.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

// Graph is a directed acyclic graph of values keyed by id.
type Graph[T any] struct {
	order    []string
	values   map[string]T
	children map[string][]string // node -> dependents
	parents  map[string][]string // node -> dependencies
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{
		values:   make(map[string]T),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// Add inserts a node, or replaces the value of an existing one without
// moving it.
func (g *Graph[T]) Add(id string, v T) {
	if _, ok := g.values[id]; !ok {
		g.order = append(g.order, id)
	}
	g.values[id] = v
}

// Get returns the value of a node.
func (g *Graph[T]) Get(id string) (T, bool) {
	v, ok := g.values[id]
	return v, ok
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int {
	return len(g.order)
}

// IDs returns the node ids in insertion order.
func (g *Graph[T]) IDs() []string {
	return append([]string(nil), g.order...)
}

// AddEdge records that to depends on from.
func (g *Graph[T]) AddEdge(from, to string) error {
	if _, ok := g.values[from]; !ok {
		return fmt.Errorf("node %q does not exist", from)
	}
	if _, ok := g.values[to]; !ok {
		return fmt.Errorf("node %q does not exist", to)
	}
	if from == to {
		return fmt.Errorf("self-loop detected: %s", from)
	}
	if !contains(g.children[from], to) {
		g.children[from] = append(g.children[from], to)
		g.parents[to] = append(g.parents[to], from)
	}
	return nil
}

// Parents returns the dependencies of a node.
func (g *Graph[T]) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the dependents of a node.
func (g *Graph[T]) Children(id string) []string {
	return g.children[id]
}

// Cycle returns a cycle as a closed path, or nil when the graph is acyclic.
func (g *Graph[T]) Cycle() []string {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(g.order))
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = active
		stack = append(stack, id)
		for _, child := range g.children[id] {
			switch state[child] {
			case active:
				for i, s := range stack {
					if s == child {
						cycle = append(append([]string(nil), stack[i:]...), child)
						return true
					}
				}
			case unvisited:
				if dfs(child) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.order {
		if state[id] == unvisited && dfs(id) {
			return cycle
		}
	}
	return nil
}

// Sort returns the node ids with every node after its dependencies.
func (g *Graph[T]) Sort() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(g.order))
	for _, l := range levels {
		out = append(out, l...)
	}
	return out, nil
}

// Levels groups nodes by the length of their longest dependency chain.
// Level 0 has no dependencies; nodes in level N depend only on nodes in
// earlier levels.
func (g *Graph[T]) Levels() ([][]string, error) {
	if c := g.Cycle(); c != nil {
		return nil, &CycleError{Path: c}
	}

	level := make(map[string]int, len(g.order))
	var depth func(id string) int
	depth = func(id string) int {
		if l, ok := level[id]; ok {
			return l
		}
		l := 0
		for _, p := range g.parents[id] {
			if d := depth(p) + 1; d > l {
				l = d
			}
		}
		level[id] = l
		return l
	}

	var levels [][]string
	for _, id := range g.order {
		l := depth(id)
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], id)
	}
	return levels, nil
}

// Subgraph returns the graph restricted to ids. Edges between kept nodes
// survive; dependencies through dropped nodes are not bridged.
func (g *Graph[T]) Subgraph(ids []string) *Graph[T] {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	sub := New[T]()
	for _, id := range g.order {
		if keep[id] {
			sub.Add(id, g.values[id])
		}
	}
	for _, id := range sub.order {
		for _, child := range g.children[id] {
			if keep[child] {
				_ = sub.AddEdge(id, child)
			}
		}
	}
	return sub
}

func contains(slice []string, s string) bool {
	for _, x := range slice {
		if x == s {
			return true
		}
	}
	return false
}
