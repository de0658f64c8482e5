package dag

import (
	"fmt"
	"slices"
)

// StageSpec is one node of a resolved graph.
type StageSpec struct {
	// Op is the operation name. It is also the stage id, so it is unique
	// within a graph.
	Op string
	// Source tells the stage where its work items come from.
	Source SourceSpec
	// MinBatch and MaxBatch shape batches of unthrottled operations.
	// Throttled operations take both from their limits instead.
	MinBatch int
	MaxBatch int
}

// Edge represents a dependency: To depends on From.
type Edge struct {
	From string
	To   string
}

// Graph is a resolved pipeline.
type Graph struct {
	Name  string
	Nodes map[string]StageSpec
	Edges []Edge
}

// NewGraph returns an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{Name: name, Nodes: make(map[string]StageSpec)}
}

// AddStage adds a node. A second stage for the same operation is rejected.
func (g *Graph) AddStage(spec StageSpec) error {
	if spec.Op == "" {
		return fmt.Errorf("dag: stage without operation")
	}
	if _, exists := g.Nodes[spec.Op]; exists {
		return fmt.Errorf("dag: duplicate stage %q", spec.Op)
	}
	g.Nodes[spec.Op] = spec
	return nil
}

// AddEdge records that to depends on from.
func (g *Graph) AddEdge(from, to string) {
	g.Edges = append(g.Edges, Edge{From: from, To: to})
}

// Upstream returns the stages op depends on, sorted.
func (g *Graph) Upstream(op string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.To == op && !slices.Contains(out, e.From) {
			out = append(out, e.From)
		}
	}
	slices.Sort(out)
	return out
}

// Downstream returns the stages that depend on op, sorted.
func (g *Graph) Downstream(op string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.From == op && !slices.Contains(out, e.To) {
			out = append(out, e.To)
		}
	}
	slices.Sort(out)
	return out
}

// Ops returns every stage name, sorted.
func (g *Graph) Ops() []string {
	out := make([]string, 0, len(g.Nodes))
	for op := range g.Nodes {
		out = append(out, op)
	}
	slices.Sort(out)
	return out
}

// BuildLevels uses Kahn's algorithm to group nodes by dependency level.
// Level 0 holds the stages without upstream. Names within a level are
// sorted. Returns an error for self loops, dangling edges and cycles.
func BuildLevels(g *Graph) ([][]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	dependents := make(map[string][]string)
	for name := range g.Nodes {
		inDegree[name] = 0
	}

	seen := make(map[Edge]bool, len(g.Edges))
	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			return nil, fmt.Errorf("dag: edge references unknown node %q", e.From)
		}
		if _, ok := g.Nodes[e.To]; !ok {
			return nil, fmt.Errorf("dag: edge references unknown node %q", e.To)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("dag: node %q depends on itself", e.From)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		inDegree[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	var current []string
	for name, deg := range inDegree {
		if deg == 0 {
			current = append(current, name)
		}
	}

	var levels [][]string
	visited := 0
	for len(current) > 0 {
		slices.Sort(current)
		levels = append(levels, current)
		visited += len(current)

		var next []string
		for _, name := range current {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if visited != len(g.Nodes) {
		return nil, fmt.Errorf("dag: cycle detected, processed %d of %d nodes", visited, len(g.Nodes))
	}
	return levels, nil
}
