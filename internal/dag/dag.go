// Package dag orders canonical table definitions by their dependencies.
// It supports cycle detection, stable topological sorting and downstream
// propagation so a skipped table can take its dependents with it.
package dag

import (
	"fmt"
	"slices"
)

// Graph is a directed acyclic graph keyed by string IDs.
// Insertion order is remembered and used to break ties, so a graph built from
// an ordered list sorts back into that order wherever dependencies allow.
type Graph[T any] struct {
	order   []string
	nodes   map[string]T
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph[T any]() *Graph[T] {
	return &Graph[T]{
		nodes:   make(map[string]T),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph, replacing the data of an existing node.
func (g *Graph[T]) AddNode(id string, data T) {
	if _, exists := g.nodes[id]; !exists {
		g.order = append(g.order, id)
	}
	g.nodes[id] = data
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph[T]) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Get returns the data stored for a node.
func (g *Graph[T]) Get(id string) (T, bool) {
	data, ok := g.nodes[id]
	return data, ok
}

// Parents returns the direct dependencies of a node.
func (g *Graph[T]) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the direct dependents of a node.
func (g *Graph[T]) Children(id string) []string {
	return g.edges[id]
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int {
	return len(g.nodes)
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph[T]) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, child := range g.edges[id] {
			if !visited[child] {
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				start := slices.Index(stack, child)
				cycle = append(slices.Clone(stack[start:]), child)
				return true
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return true, cycle
		}
	}
	return false, nil
}

// TopologicalSort returns node IDs with dependencies before dependents.
// Returns an error if the graph contains a cycle.
func (g *Graph[T]) TopologicalSort() ([]string, error) {
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", path)
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parent := range g.parents[id] {
			visit(parent)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Downstream returns every node reachable from the given nodes, excluding
// the nodes themselves, in insertion order.
func (g *Graph[T]) Downstream(ids ...string) []string {
	reached := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		for _, child := range g.edges[id] {
			if !reached[child] {
				reached[child] = true
				mark(child)
			}
		}
	}
	for _, id := range ids {
		mark(id)
	}
	for _, id := range ids {
		delete(reached, id)
	}

	result := make([]string, 0, len(reached))
	for _, id := range g.order {
		if reached[id] {
			result = append(result, id)
		}
	}
	return result
}

// Roots returns nodes with no dependencies, in insertion order.
func (g *Graph[T]) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}
