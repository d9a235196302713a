package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/timmy/councilgen/internal/domain"
)

// ValidationError lists every problem found in a catalog.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog has %d problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks required fields, dependency references and image requirements.
// Dependency cycles are reported as well, although the scheduler also tolerates them.
func Validate(specs []domain.ContentSpecification) error {
	var problems []string
	if len(specs) == 0 {
		return &ValidationError{Problems: []string{"no templates loaded"}}
	}

	ids := make(map[string]int, len(specs))
	for _, s := range specs {
		if s.ID != "" {
			ids[s.ID]++
		}
	}

	for i, s := range specs {
		name := s.ID
		if name == "" {
			problems = append(problems, fmt.Sprintf("template #%d: missing id", i+1))
			name = fmt.Sprintf("#%d", i+1)
		} else if ids[s.ID] > 1 {
			problems = append(problems, fmt.Sprintf("template %s: duplicate id", name))
			ids[s.ID] = 1
		}
		if strings.TrimSpace(s.Prompt) == "" {
			problems = append(problems, fmt.Sprintf("template %s: missing prompt", name))
		}
		if strings.TrimSpace(s.TitleTemplate) == "" {
			problems = append(problems, fmt.Sprintf("template %s: missing title_template", name))
		}
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				problems = append(problems, fmt.Sprintf("template %s: self-referencing dependency", name))
				continue
			}
			if _, ok := ids[dep]; !ok {
				problems = append(problems, fmt.Sprintf("template %s: dependency %q not found", name, dep))
			}
		}
		for j, img := range s.Images {
			if strings.TrimSpace(img.Prompt) == "" {
				problems = append(problems, fmt.Sprintf("template %s: image %d missing prompt", name, j+1))
			}
			if img.Type != "" && !img.Type.IsValid() {
				problems = append(problems, fmt.Sprintf("template %s: invalid image type %q", name, img.Type))
			}
			if img.Dimensions != "" {
				if _, _, err := img.Dimensions.Parse(); err != nil {
					problems = append(problems, fmt.Sprintf("template %s: %v", name, err))
				}
			}
		}
	}

	for _, cycle := range FindCycles(specs) {
		problems = append(problems, fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// FindCycles returns each group of specifications that depend on each other
// in a loop, with the first member repeated at the end. Self-dependencies are
// reported by Validate and skipped here.
func FindCycles(specs []domain.ContentSpecification) [][]string {
	graph := make(map[string][]string, len(specs))
	var nodes []string
	for _, s := range specs {
		if _, seen := graph[s.ID]; !seen {
			nodes = append(nodes, s.ID)
		}
		for _, dep := range s.Dependencies {
			if dep != s.ID {
				graph[s.ID] = append(graph[s.ID], dep)
			}
		}
		if graph[s.ID] == nil {
			graph[s.ID] = []string{}
		}
	}

	var cycles [][]string
	for _, scc := range tarjanSCC(nodes, graph) {
		if len(scc) < 2 {
			continue
		}
		sort.Strings(scc)
		cycles = append(cycles, append(scc, scc[0]))
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// tarjanSCC finds strongly connected components. Edges to unknown nodes are ignored.
func tarjanSCC(nodes []string, graph map[string][]string) [][]string {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var sccs [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, known := graph[w]; !known {
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range nodes {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}
