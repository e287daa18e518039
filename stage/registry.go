package stage

import (
	"fmt"
	"sort"
	"strings"

	saga "github.com/HACKMANV8/saga"
)

// Registry maps stage names to definitions and resolves the execution
// wave order. Register all stages, then call Validate once; after that
// the registry is read-only and safe for concurrent use without locks.
type Registry struct {
	defs  map[string]Definition
	order []string // registration order

	// waves is the cached topological layering, computed by Validate.
	waves [][]Definition
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a stage definition. The stage's ordinal is its
// registration position. Registering after Validate is a programming
// error and invalidates the cached waves.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("stage: empty stage name")
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("%w: %q", saga.ErrDuplicateStage, def.Name)
	}
	if def.Merge != MergeReplace && def.Merge != MergeAppendUnique {
		return fmt.Errorf("stage %q: unknown merge kind %q", def.Name, def.Merge)
	}

	def.Ordinal = len(r.order)
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	r.waves = nil
	return nil
}

// Get returns the definition for the given stage name.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names returns all stage names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered stages.
func (r *Registry) Len() int { return len(r.order) }

// Validate checks every declared prerequisite exists and the dependency
// graph is acyclic, then computes and caches the wave layering. It must
// be called once at startup, before the registry is shared.
func (r *Registry) Validate() error {
	for _, name := range r.order {
		for _, req := range r.defs[name].Requires {
			if _, ok := r.defs[req]; !ok {
				return fmt.Errorf("%w: stage %q requires unknown stage %q",
					saga.ErrStageNotFound, name, req)
			}
			if req == name {
				return fmt.Errorf("%w: stage %q requires itself", saga.ErrCyclicDependency, name)
			}
		}
	}

	waves, err := r.layer()
	if err != nil {
		return err
	}
	r.waves = waves
	return nil
}

// Waves returns the topological layering: each wave is the set of
// stages whose prerequisites are all satisfied by earlier waves. Stages
// within a wave are ordered by ordinal so merges are deterministic.
// A wave with more than one stage is eligible for parallel execution.
func (r *Registry) Waves() ([][]Definition, error) {
	if r.waves == nil {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return r.waves, nil
}

// layer runs Kahn's algorithm, emitting whole in-degree-zero layers at
// a time rather than single nodes.
func (r *Registry) layer() ([][]Definition, error) {
	indegree := make(map[string]int, len(r.defs))
	dependents := make(map[string][]string, len(r.defs))
	for _, name := range r.order {
		indegree[name] = len(r.defs[name].Requires)
		for _, req := range r.defs[name].Requires {
			dependents[req] = append(dependents[req], name)
		}
	}

	var waves [][]Definition
	placed := 0
	for placed < len(r.order) {
		var wave []Definition
		for _, name := range r.order {
			if indegree[name] == 0 {
				wave = append(wave, r.defs[name])
				indegree[name] = -1 // consumed
			}
		}
		if len(wave) == 0 {
			return nil, fmt.Errorf("%w: remaining stages [%s]",
				saga.ErrCyclicDependency, strings.Join(r.remaining(indegree), ", "))
		}

		sort.Slice(wave, func(i, j int) bool { return wave[i].Ordinal < wave[j].Ordinal })
		for _, def := range wave {
			for _, dep := range dependents[def.Name] {
				indegree[dep]--
			}
		}
		placed += len(wave)
		waves = append(waves, wave)
	}
	return waves, nil
}

// remaining lists stages not yet placed into a wave, for cycle errors.
func (r *Registry) remaining(indegree map[string]int) []string {
	var names []string
	for _, name := range r.order {
		if indegree[name] >= 0 {
			names = append(names, name)
		}
	}
	return names
}

// WaveLabel names a batch for session bookkeeping: the single stage
// name, or the ordinal-ordered stage names joined with "+".
func WaveLabel(wave []Definition) string {
	names := make([]string, len(wave))
	for i, def := range wave {
		names[i] = def.Name
	}
	return strings.Join(names, "+")
}
