// Package streams implements the derived stream grouping:
// aggregation, conflict detection, and dependency-DAG validation
// over task metadata. Streams have no backing table; every function
// here operates on tasks already loaded from internal/store.
package streams

import "github.com/taskflow-dev/taskflowmcp/internal/apperr"

// CheckAcyclic runs DFS with a visited + recursion-stack set over the
// dependency graph, including the candidate edge, and returns a
// CycleError the moment a back-edge reaches an ancestor.
//
// deps is the full map of existing {stream-id -> [dependencies]}; the
// candidate stream and its dependencies are merged in before the walk
// so a new task's edges are checked exactly like existing ones.
func CheckAcyclic(deps map[string][]string, candidateStreamID string, candidateDeps []string) error {
	graph := make(map[string][]string, len(deps)+1)
	for k, v := range deps {
		graph[k] = v
	}
	if candidateStreamID != "" {
		graph[candidateStreamID] = mergeUnique(graph[candidateStreamID], candidateDeps)
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(node string) error
	visit = func(node string) error {
		if onStack[node] {
			return apperr.NewCycleError(node)
		}
		if visited[node] {
			return nil
		}
		visited[node] = true
		onStack[node] = true
		for _, dep := range graph[node] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		onStack[node] = false
		return nil
	}

	for node := range graph {
		if !visited[node] {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
