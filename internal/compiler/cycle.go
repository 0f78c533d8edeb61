package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// FieldCycle is a set of dataset fields that reference each other.
type FieldCycle struct {
	Path    []string `json:"path"` // e.g. ["a", "b", "a"]
	Message string   `json:"message"`
}

// AnalyzeCycles finds reference cycles between dataset fields.
//
// Every strongly connected component of the field reference graph with
// more than one field is a cycle, as is a field referencing itself.
// Components are reported in dataset order; a DAG yields none.
func AnalyzeCycles(fields []Field) []FieldCycle {
	graph, order := buildDependencyGraph(fields)

	var cycles []FieldCycle
	for _, scc := range tarjanSCC(graph, order) {
		head := scc[0]
		switch {
		case len(scc) == 1 && slices.Contains(graph[head], head):
			cycles = append(cycles, FieldCycle{
				Path:    []string{head, head},
				Message: fmt.Sprintf("field %s references itself", head),
			})
		case len(scc) > 1:
			path := reconstructCyclePath(scc, graph)
			cycles = append(cycles, FieldCycle{
				Path:    path,
				Message: "field reference cycle: " + strings.Join(path, " → "),
			})
		}
	}
	return cycles
}

// dependencyGraph maps a field id to the ids of the fields it references.
type dependencyGraph map[string][]string

func buildDependencyGraph(fields []Field) (dependencyGraph, []string) {
	graph := make(dependencyGraph, len(fields))
	order := make([]string, len(fields))
	for i, f := range fields {
		order[i] = f.ID
		graph[f.ID] = fieldRefs(f.Expr)
	}
	return graph, order
}

// sccFinder holds the state of one run of Tarjan's algorithm.
type sccFinder struct {
	graph dependencyGraph
	next  int
	index map[string]int
	low   map[string]int
	stack []string
	open  map[string]bool
	out   [][]string
}

// tarjanSCC returns the strongly connected components of graph, starting
// a search from each node of order not reached yet. Members of a component
// are listed in discovery order. References to nodes missing from graph
// are skipped; validation reports them.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	f := &sccFinder{
		graph: graph,
		index: make(map[string]int, len(graph)),
		low:   make(map[string]int, len(graph)),
		open:  make(map[string]bool),
	}
	for _, node := range order {
		if _, seen := f.index[node]; !seen {
			f.visit(node)
		}
	}
	return f.out
}

func (f *sccFinder) visit(v string) {
	f.index[v], f.low[v] = f.next, f.next
	f.next++
	f.stack = append(f.stack, v)
	f.open[v] = true

	for _, w := range f.graph[v] {
		if _, ok := f.graph[w]; !ok {
			continue
		}
		if _, seen := f.index[w]; !seen {
			f.visit(w)
			f.low[v] = min(f.low[v], f.low[w])
		} else if f.open[w] {
			f.low[v] = min(f.low[v], f.index[w])
		}
	}
	if f.low[v] != f.index[v] {
		return
	}

	i := slices.Index(f.stack, v)
	scc := slices.Clone(f.stack[i:])
	for _, w := range scc {
		f.open[w] = false
	}
	f.stack = f.stack[:i]
	f.out = append(f.out, scc)
}

// reconstructCyclePath returns the shortest reference path inside scc that
// leaves its first member and comes back to it.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}
	start := scc[0]
	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	parent := map[string]string{}
	queue := []string{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range graph[v] {
			if !inSCC[w] {
				continue
			}
			if w == start {
				path := []string{start}
				for n := v; n != start; n = parent[n] {
					path = append(path, n)
				}
				slices.Reverse(path[1:])
				return append(path, start)
			}
			if _, seen := parent[w]; !seen {
				parent[w] = v
				queue = append(queue, w)
			}
		}
	}
	return []string{start}
}
