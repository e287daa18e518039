// Package state holds the accumulating workflow state for one session
// and the field-level merge rules applied after each stage invocation.
//
// Replace-kind stages own a single document slot that each invocation
// overwrites. Append-kind stages own a list of items, each tagged with
// the provenance of the invocation that produced it; regenerating a
// stage removes exactly the items carrying the stage's current tag
// before appending the new ones under the same tag, making
// regeneration idempotent.
package state

import (
	"encoding/json"
	"fmt"

	"github.com/HACKMANV8/saga/stage"
)

// Item is one provenance-tagged entry in an append-unique slot.
type Item struct {
	// Provenance is the invocation tag that produced this item.
	Provenance string `json:"provenance"`
	// Data is the normalized artifact payload.
	Data json.RawMessage `json:"data"`
}

// State is the full workflow state for one session. Workers treat a
// State as an immutable snapshot; only the scheduler's single-threaded
// merge mutates it, via Apply.
type State struct {
	// Topic is the user's original topic.
	Topic string `json:"topic"`

	// Research is optional grounding text supplied at session start.
	Research string `json:"research,omitempty"`

	// Docs maps replace-kind stage names to their current document.
	Docs map[string]json.RawMessage `json:"docs,omitempty"`

	// Items maps append-kind stage names to their tagged item lists.
	Items map[string][]Item `json:"items,omitempty"`

	// Invocations maps each stage to the provenance tag of its most
	// recent invocation. A feedback regeneration reuses this tag so its
	// merge replaces rather than accumulates.
	Invocations map[string]string `json:"invocations,omitempty"`
}

// New creates an empty State for the given topic.
func New(topic, research string) *State {
	return &State{
		Topic:       topic,
		Research:    research,
		Docs:        make(map[string]json.RawMessage),
		Items:       make(map[string][]Item),
		Invocations: make(map[string]string),
	}
}

// Update is the normalized output of one stage invocation, produced by
// the executor and applied by the scheduler or engine.
type Update struct {
	// Stage names the stage that produced this update.
	Stage string

	// Invocation is the provenance tag of the producing invocation.
	Invocation string

	// Doc is the single document for replace-kind stages.
	Doc json.RawMessage

	// Items are the list entries for append-kind stages.
	Items []json.RawMessage
}

// Apply merges one stage update into the state according to the
// stage's declared merge kind.
func (s *State) Apply(def stage.Definition, upd Update) error {
	if upd.Stage != def.Name {
		return fmt.Errorf("state: update for %q applied with definition %q", upd.Stage, def.Name)
	}

	switch def.Merge {
	case stage.MergeReplace:
		if len(upd.Doc) == 0 {
			return fmt.Errorf("state: replace update for %q has no document", def.Name)
		}
		s.Docs[def.Name] = upd.Doc

	case stage.MergeAppendUnique:
		if len(upd.Items) == 0 {
			return fmt.Errorf("state: append update for %q has no items", def.Name)
		}
		// Drop items from the same invocation before appending, so a
		// regeneration replaces its own prior contribution exactly.
		kept := s.Items[def.Name][:0:0]
		for _, item := range s.Items[def.Name] {
			if item.Provenance != upd.Invocation {
				kept = append(kept, item)
			}
		}
		for _, data := range upd.Items {
			kept = append(kept, Item{Provenance: upd.Invocation, Data: data})
		}
		s.Items[def.Name] = kept

	default:
		return fmt.Errorf("state: stage %q has unknown merge kind %q", def.Name, def.Merge)
	}

	s.Invocations[def.Name] = upd.Invocation
	return nil
}

// Output returns the stage's current contribution: the document for
// replace-kind stages, or the item payloads as a JSON array for
// append-kind stages. ok is false if the stage has produced nothing.
func (s *State) Output(def stage.Definition) (json.RawMessage, bool) {
	switch def.Merge {
	case stage.MergeReplace:
		doc, ok := s.Docs[def.Name]
		return doc, ok
	case stage.MergeAppendUnique:
		items, ok := s.Items[def.Name]
		if !ok || len(items) == 0 {
			return nil, false
		}
		payloads := make([]json.RawMessage, len(items))
		for i, item := range items {
			payloads[i] = item.Data
		}
		// Marshal of []json.RawMessage cannot fail.
		out, _ := json.Marshal(payloads) //nolint:errcheck
		return out, true
	default:
		return nil, false
	}
}

// Invocation returns the provenance tag of the stage's most recent
// invocation, or "" if the stage has not run.
func (s *State) Invocation(name string) string {
	return s.Invocations[name]
}

// Clone returns a deep copy. Batches run against a clone so a failed
// merge never corrupts the last checkpointed state.
func (s *State) Clone() *State {
	c := &State{
		Topic:       s.Topic,
		Research:    s.Research,
		Docs:        make(map[string]json.RawMessage, len(s.Docs)),
		Items:       make(map[string][]Item, len(s.Items)),
		Invocations: make(map[string]string, len(s.Invocations)),
	}
	for name, doc := range s.Docs {
		c.Docs[name] = append(json.RawMessage(nil), doc...)
	}
	for name, items := range s.Items {
		cp := make([]Item, len(items))
		for i, item := range items {
			cp[i] = Item{
				Provenance: item.Provenance,
				Data:       append(json.RawMessage(nil), item.Data...),
			}
		}
		c.Items[name] = cp
	}
	for name, tag := range s.Invocations {
		c.Invocations[name] = tag
	}
	return c
}

// Marshal serializes the state for checkpoint storage.
func (s *State) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("state: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes a checkpointed state.
func Unmarshal(data []byte) (*State, error) {
	s := New("", "")
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("state: unmarshal: %w", err)
	}
	if s.Docs == nil {
		s.Docs = make(map[string]json.RawMessage)
	}
	if s.Items == nil {
		s.Items = make(map[string][]Item)
	}
	if s.Invocations == nil {
		s.Invocations = make(map[string]string)
	}
	return s, nil
}
