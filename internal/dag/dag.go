// Package dag provides the task graph a pipeline runs over: cycle
// detection, execution levels and selection of up/downstream tasks.
package dag

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Graph is a directed acyclic graph of named nodes carrying data of type T.
// An edge from parent to child means child consumes what parent produces.
type Graph[T any] struct {
	data     map[string]T
	children map[string][]string
	parents  map[string][]string
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{
		data:     make(map[string]T),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a node, replacing the data of an existing one.
func (g *Graph[T]) AddNode(id string, data T) {
	if _, ok := g.data[id]; !ok {
		g.children[id] = nil
		g.parents[id] = nil
	}
	g.data[id] = data
}

// AddEdge adds a directed edge from parent to child.
func (g *Graph[T]) AddEdge(parent, child string) error {
	if _, ok := g.data[parent]; !ok {
		return fmt.Errorf("parent node %q does not exist", parent)
	}
	if _, ok := g.data[child]; !ok {
		return fmt.Errorf("child node %q does not exist", child)
	}
	if parent == child {
		return fmt.Errorf("self-loop detected: %s", parent)
	}
	if !slices.Contains(g.children[parent], child) {
		g.children[parent] = append(g.children[parent], child)
	}
	if !slices.Contains(g.parents[child], parent) {
		g.parents[child] = append(g.parents[child], parent)
	}
	return nil
}

// Node returns the data stored for id.
func (g *Graph[T]) Node(id string) (T, bool) {
	d, ok := g.data[id]
	return d, ok
}

// Parents returns the direct dependencies of id.
func (g *Graph[T]) Parents(id string) []string {
	return slices.Clone(g.parents[id])
}

// Children returns the direct dependents of id.
func (g *Graph[T]) Children(id string) []string {
	return slices.Clone(g.children[id])
}

// IDs returns every node id, sorted.
func (g *Graph[T]) IDs() []string {
	return slices.Sorted(maps.Keys(g.data))
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int { return len(g.data) }

// EdgeCount returns the number of edges.
func (g *Graph[T]) EdgeCount() int {
	n := 0
	for _, c := range g.children {
		n += len(c)
	}
	return n
}

// FindCycle returns the nodes of a cycle, first node repeated at the end,
// or nil when the graph is acyclic.
func (g *Graph[T]) FindCycle() []string {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.data))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inProgress
		stack = append(stack, id)
		for _, child := range g.children[id] {
			switch state[child] {
			case inProgress:
				start := slices.Index(stack, child)
				cycle = append(slices.Clone(stack[start:]), child)
				return true
			case unvisited:
				if visit(child) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.IDs() {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

// CycleError is returned when an operation needs an acyclic graph.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

// Levels groups nodes into execution levels. Every node in level N depends
// only on nodes in earlier levels, so a level may run concurrently once
// the previous one has finished. Each level is sorted.
func (g *Graph[T]) Levels() ([][]string, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	indegree := make(map[string]int, len(g.data))
	for id := range g.data {
		indegree[id] = len(g.parents[id])
	}

	var current []string
	for id, d := range indegree {
		if d == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	for len(current) > 0 {
		slices.Sort(current)
		levels = append(levels, current)
		var next []string
		for _, id := range current {
			for _, child := range g.children[id] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		current = next
	}
	return levels, nil
}

// TopologicalSort returns node ids with dependencies before dependents.
func (g *Graph[T]) TopologicalSort() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	var order []string
	for _, l := range levels {
		order = append(order, l...)
	}
	return order, nil
}

// Downstream returns ids together with everything that depends on them,
// sorted. Unknown ids are ignored.
func (g *Graph[T]) Downstream(ids ...string) []string {
	return g.walk(ids, g.children, true)
}

// Upstream returns everything ids depend on, excluding ids themselves
// unless they are reachable from another selected node.
func (g *Graph[T]) Upstream(ids ...string) []string {
	return g.walk(ids, g.parents, false)
}

func (g *Graph[T]) walk(ids []string, next map[string][]string, includeSelf bool) []string {
	seen := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		for _, n := range next[id] {
			if !seen[n] {
				seen[n] = true
				visit(n)
			}
		}
	}
	for _, id := range ids {
		if _, ok := g.data[id]; !ok {
			continue
		}
		if includeSelf {
			seen[id] = true
		}
		visit(id)
	}
	return slices.Sorted(maps.Keys(seen))
}

// Roots returns nodes without dependencies.
func (g *Graph[T]) Roots() []string {
	var roots []string
	for _, id := range g.IDs() {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Leaves returns nodes without dependents.
func (g *Graph[T]) Leaves() []string {
	var leaves []string
	for _, id := range g.IDs() {
		if len(g.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// Subgraph returns a graph restricted to ids and the edges among them.
func (g *Graph[T]) Subgraph(ids []string) *Graph[T] {
	sub := New[T]()
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		if d, ok := g.data[id]; ok {
			keep[id] = true
			sub.AddNode(id, d)
		}
	}
	for id := range keep {
		for _, child := range g.children[id] {
			if keep[child] {
				_ = sub.AddEdge(id, child)
			}
		}
	}
	return sub
}
