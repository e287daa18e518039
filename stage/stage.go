// Package stage defines the pipeline's stage registry: the ordered set
// of stages, their data dependencies, and the topological wave layering
// that drives sequential and parallel execution.
package stage

import "github.com/HACKMANV8/saga/artifact"

// MergeKind declares how a stage's output merges into workflow state.
type MergeKind string

const (
	// MergeReplace overwrites the stage's single document slot.
	MergeReplace MergeKind = "replace"
	// MergeAppendUnique appends provenance-tagged list items;
	// regeneration replaces the items of the same invocation tag.
	MergeAppendUnique MergeKind = "append_unique"
)

// Definition describes one pipeline stage. Definitions are registered
// once at startup and read-only afterward.
type Definition struct {
	// Name uniquely identifies the stage within a registry.
	Name string

	// Ordinal fixes the stage's position for deterministic merge
	// ordering within a wave. Assigned at registration time.
	Ordinal int

	// Requires lists prerequisite stage names. A stage only ever sees
	// the outputs of stages it declares here. Empty means the stage can
	// run in the first wave.
	Requires []string

	// Merge declares the state merge rule for this stage's output.
	Merge MergeKind

	// Output names the artifact shape the stage's generator must emit.
	// MergeReplace stages emit a single document of this kind;
	// MergeAppendUnique stages emit a JSON array of them.
	Output artifact.Kind
}

// Canonical stage names of the default narrative pipeline.
const (
	Concept    = "concept"
	WorldLore  = "world_lore"
	Factions   = "factions"
	Characters = "characters"
	PlotArcs   = "plot_arcs"
	Questlines = "questlines"
)

// DefaultRegistry builds the registry for the narrative pipeline:
// concept first, then world lore, factions, and characters as one
// parallel wave, then plot arcs, then questlines.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()

	defs := []Definition{
		{Name: Concept, Merge: MergeReplace, Output: artifact.KindConcept},
		{Name: WorldLore, Requires: []string{Concept}, Merge: MergeReplace, Output: artifact.KindWorldLore},
		{Name: Factions, Requires: []string{Concept}, Merge: MergeAppendUnique, Output: artifact.KindFaction},
		{Name: Characters, Requires: []string{Concept}, Merge: MergeAppendUnique, Output: artifact.KindCharacter},
		{Name: PlotArcs, Requires: []string{Concept, WorldLore, Factions}, Merge: MergeAppendUnique, Output: artifact.KindPlotArc},
		{Name: Questlines, Requires: []string{PlotArcs, Characters}, Merge: MergeAppendUnique, Output: artifact.KindQuestline},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
