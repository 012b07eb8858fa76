package phase

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrCycle indicates the dependency declaration contains a cycle
var ErrCycle = errors.New("phase graph contains a cycle")

// Def declares one phase and its prerequisites
type Def struct {
	ID            string   `yaml:"id"`
	Prerequisites []string `yaml:"prerequisites,omitempty"`
	Skip          bool     `yaml:"skip,omitempty"`
}

// Graph is a validated, acyclic phase dependency declaration
type Graph struct {
	Phases []Def

	// dependents is the reverse adjacency of Prerequisites
	dependents map[string][]string
	// order is a topological ordering of phase IDs
	order []string
}

// NewGraph validates a set of phase definitions: IDs must be unique,
// prerequisites must reference declared phases, and the dependency
// relation must be acyclic.
func NewGraph(defs []Def) (*Graph, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("at least one phase is required")
	}

	byID := make(map[string]Def, len(defs))
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("phase id is required")
		}
		if _, dup := byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate phase id %q", def.ID)
		}
		byID[def.ID] = def
	}

	dependents := make(map[string][]string)
	for _, def := range defs {
		for _, pre := range def.Prerequisites {
			if _, ok := byID[pre]; !ok {
				return nil, fmt.Errorf("phase %q requires undeclared phase %q", def.ID, pre)
			}
			dependents[pre] = append(dependents[pre], def.ID)
		}
	}
	for id := range dependents {
		sort.Strings(dependents[id])
	}

	order, err := topoSort(defs)
	if err != nil {
		return nil, err
	}

	return &Graph{Phases: defs, dependents: dependents, order: order}, nil
}

// Order returns a topological ordering of the phase IDs
func (g *Graph) Order() []string {
	return append([]string{}, g.order...)
}

// topoSort orders phases so every prerequisite precedes its dependents.
// Kahn's algorithm with sorted tie-breaks keeps the order deterministic.
func topoSort(defs []Def) ([]string, error) {
	indegree := make(map[string]int, len(defs))
	dependents := make(map[string][]string)
	for _, def := range defs {
		indegree[def.ID] = len(def.Prerequisites)
		for _, pre := range def.Prerequisites {
			dependents[pre] = append(dependents[pre], def.ID)
		}
	}

	var frontier []string
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	var order []string
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		var unlocked []string
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		sort.Strings(unlocked)
		frontier = append(frontier, unlocked...)
	}

	if len(order) != len(defs) {
		var stuck []string
		for id, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: involving %v", ErrCycle, stuck)
	}
	return order, nil
}

// graphFile is the on-disk YAML shape of a phase declaration
type graphFile struct {
	Phases []Def `yaml:"phases"`
}

// LoadGraph reads a phase graph declaration from a YAML file
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phase graph: %w", err)
	}

	var file graphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse phase graph: %w", err)
	}
	return NewGraph(file.Phases)
}

// DefaultGraph is the built-in pipeline used when no declaration file
// is given: analyze, then consensus, then reconcile.
func DefaultGraph() *Graph {
	g, err := NewGraph([]Def{
		{ID: "analyze"},
		{ID: "consensus", Prerequisites: []string{"analyze"}},
		{ID: "reconcile", Prerequisites: []string{"consensus"}},
	})
	if err != nil {
		panic(err)
	}
	return g
}
