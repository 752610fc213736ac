package schema

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyGraph orders models so that inheritance bases and many-to-one
// targets load before the models that depend on them
type DependencyGraph struct {
	nodes map[string]*Model
	edges map[string][]string // model -> dependencies
}

// NewDependencyGraph creates the graph of the given models
func NewDependencyGraph(models map[string]*Model) *DependencyGraph {
	graph := &DependencyGraph{
		nodes: models,
		edges: make(map[string][]string),
	}

	for name, m := range models {
		seen := make(map[string]bool)
		add := func(dep string) {
			// Self references and unknown targets do not order anything
			if dep == name || seen[dep] {
				return
			}
			if _, ok := models[dep]; !ok {
				return
			}
			seen[dep] = true
			graph.edges[name] = append(graph.edges[name], dep)
		}

		for _, inh := range m.inheritances {
			add(inh.BaseModel)
		}
		for _, f := range m.Fields() {
			if f.Type() == TypeManyToOne && !f.IsInherited() {
				add(f.Relation())
			}
		}
		sort.Strings(graph.edges[name])
	}

	return graph
}

// DetectCycles returns the dependency cycles of the graph
func (g *DependencyGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				dfs(neighbor, path)
			} else if recursionStack[neighbor] {
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		recursionStack[node] = false
	}

	for _, node := range g.sortedNodes() {
		if !visited[node] {
			dfs(node, nil)
		}
	}

	return cycles
}

// TopologicalSort returns model names with dependencies first. Ties are
// broken by name so the load order is deterministic.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int)
	for node := range g.nodes {
		outDegree[node] = len(g.edges[node])
	}

	reverseEdges := make(map[string][]string)
	for source, targets := range g.edges {
		for _, target := range targets {
			reverseEdges[target] = append(reverseEdges[target], source)
		}
	}

	var ready []string
	for _, node := range g.sortedNodes() {
		if outDegree[node] == 0 {
			ready = append(ready, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		result = append(result, node)

		dependents := reverseEdges[node]
		sort.Strings(dependents)
		for _, dependent := range dependents {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("circular dependency detected: %s", formatCycles(g.DetectCycles()))
	}

	return result, nil
}

// Dependencies returns the direct dependencies of a model
func (g *DependencyGraph) Dependencies(model string) []string {
	return g.edges[model]
}

func (g *DependencyGraph) sortedNodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatCycles(cycles [][]string) string {
	parts := make([]string, 0, len(cycles))
	for _, cycle := range cycles {
		parts = append(parts, strings.Join(append(cycle, cycle[0]), " -> "))
	}
	return strings.Join(parts, "; ")
}
