// Package depgraph orders a workflow's jobs by their declared
// dependencies and rejects dependency cycles.
package depgraph

import (
	"github.com/petrijr/conveyor/pkg/api"
)

// Graph is the resolved dependency structure of one workflow's jobs.
type Graph struct {
	// Order lists all job names in a valid topological order: every job
	// appears after all of its dependencies.
	Order []string

	// Dependents maps a job name to the jobs that declare it in Needs.
	// Used by the scheduler for failure propagation.
	Dependents map[string][]string

	needs map[string][]string
}

// Needs returns the declared dependencies of a job.
func (g *Graph) Needs(job string) []string { return g.needs[job] }

const (
	unvisited = iota
	inProgress
	done
)

// Resolve builds the dependency graph for the workflow's jobs. Jobs with
// no mutual dependency are unordered relative to each other; the returned
// order only promises that dependencies come first. A dependency cycle
// yields *api.CyclicDependencyError naming the jobs along the cycle.
//
// Unknown dependency names are a validation concern and assumed to have
// been rejected already; Resolve ignores edges to jobs it does not know.
func Resolve(jobs []api.Job) (*Graph, error) {
	g := &Graph{
		Dependents: make(map[string][]string, len(jobs)),
		needs:      make(map[string][]string, len(jobs)),
	}

	known := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		known[job.Name] = true
	}
	for _, job := range jobs {
		for _, dep := range job.Needs {
			if !known[dep] {
				continue
			}
			g.needs[job.Name] = append(g.needs[job.Name], dep)
			g.Dependents[dep] = append(g.Dependents[dep], job.Name)
		}
	}

	// Depth-first topological sort with three-color marking. Visiting
	// jobs in declaration order keeps the output stable for a given
	// definition.
	color := make(map[string]int, len(jobs))
	var stack []string

	var visit func(name string) *api.CyclicDependencyError
	visit = func(name string) *api.CyclicDependencyError {
		switch color[name] {
		case done:
			return nil
		case inProgress:
			// Found a back edge; the cycle is the stack suffix from
			// the first occurrence of name, closed with name itself.
			cycle := []string{name}
			for i := len(stack) - 1; i >= 0; i-- {
				cycle = append(cycle, stack[i])
				if stack[i] == name {
					break
				}
			}
			// Reverse into declaration direction.
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			return &api.CyclicDependencyError{Cycle: cycle}
		}

		color[name] = inProgress
		stack = append(stack, name)
		for _, dep := range g.needs[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = done
		g.Order = append(g.Order, name)
		return nil
	}

	for _, job := range jobs {
		if err := visit(job.Name); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Roots returns the jobs with no dependencies, in topological (and hence
// declaration) order. These are immediately eligible for scheduling.
func (g *Graph) Roots() []string {
	var roots []string
	for _, name := range g.Order {
		if len(g.needs[name]) == 0 {
			roots = append(roots, name)
		}
	}
	return roots
}
