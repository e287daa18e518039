package state_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/HACKMANV8/saga/artifact"
	"github.com/HACKMANV8/saga/stage"
	"github.com/HACKMANV8/saga/state"
)

var (
	conceptDef = stage.Definition{Name: "concept", Merge: stage.MergeReplace, Output: artifact.KindConcept}
	factionDef = stage.Definition{Name: "factions", Merge: stage.MergeAppendUnique, Output: artifact.KindFaction}
)

func TestApplyReplace(t *testing.T) {
	st := state.New("topic", "")

	first := state.Update{Stage: "concept", Invocation: "inv_1", Doc: json.RawMessage(`{"title":"v1"}`)}
	if err := st.Apply(conceptDef, first); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	second := state.Update{Stage: "concept", Invocation: "inv_2", Doc: json.RawMessage(`{"title":"v2"}`)}
	if err := st.Apply(conceptDef, second); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	out, ok := st.Output(conceptDef)
	if !ok {
		t.Fatal("Output: no concept")
	}
	if string(out) != `{"title":"v2"}` {
		t.Errorf("concept = %s, want replaced v2", out)
	}
	if st.Invocation("concept") != "inv_2" {
		t.Errorf("invocation = %q, want inv_2", st.Invocation("concept"))
	}
}

func TestApplyAppendAccumulatesAcrossInvocations(t *testing.T) {
	st := state.New("topic", "")

	a := state.Update{Stage: "factions", Invocation: "inv_a",
		Items: []json.RawMessage{json.RawMessage(`{"faction_name":"A"}`)}}
	b := state.Update{Stage: "factions", Invocation: "inv_b",
		Items: []json.RawMessage{json.RawMessage(`{"faction_name":"B"}`)}}
	if err := st.Apply(factionDef, a); err != nil {
		t.Fatalf("Apply a: %v", err)
	}
	if err := st.Apply(factionDef, b); err != nil {
		t.Fatalf("Apply b: %v", err)
	}

	if n := len(st.Items["factions"]); n != 2 {
		t.Errorf("len(items) = %d, want 2", n)
	}
}

func TestApplyRegenerationIsIdempotent(t *testing.T) {
	st := state.New("topic", "")

	initial := state.Update{Stage: "factions", Invocation: "inv_1",
		Items: []json.RawMessage{
			json.RawMessage(`{"faction_name":"Old A"}`),
			json.RawMessage(`{"faction_name":"Old B"}`),
		}}
	if err := st.Apply(factionDef, initial); err != nil {
		t.Fatalf("Apply initial: %v", err)
	}

	regen := state.Update{Stage: "factions", Invocation: "inv_1",
		Items: []json.RawMessage{
			json.RawMessage(`{"faction_name":"New A"}`),
			json.RawMessage(`{"faction_name":"New B"}`),
		}}

	// Apply the same regeneration twice; both times the prior items of
	// the same invocation must be removed before appending.
	for range 2 {
		if err := st.Apply(factionDef, regen); err != nil {
			t.Fatalf("Apply regen: %v", err)
		}
	}

	items := st.Items["factions"]
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2 (no duplicate accumulation)", len(items))
	}
	for _, item := range items {
		if item.Provenance != "inv_1" {
			t.Errorf("provenance = %q, want inv_1", item.Provenance)
		}
	}
	if string(items[0].Data) != `{"faction_name":"New A"}` {
		t.Errorf("item 0 = %s, want regenerated items", items[0].Data)
	}
}

func TestRegenerationKeepsOtherInvocations(t *testing.T) {
	st := state.New("topic", "")

	keep := state.Update{Stage: "factions", Invocation: "inv_keep",
		Items: []json.RawMessage{json.RawMessage(`{"faction_name":"Keep"}`)}}
	replace := state.Update{Stage: "factions", Invocation: "inv_replace",
		Items: []json.RawMessage{json.RawMessage(`{"faction_name":"Old"}`)}}
	if err := st.Apply(factionDef, keep); err != nil {
		t.Fatalf("Apply keep: %v", err)
	}
	if err := st.Apply(factionDef, replace); err != nil {
		t.Fatalf("Apply replace: %v", err)
	}

	regen := state.Update{Stage: "factions", Invocation: "inv_replace",
		Items: []json.RawMessage{json.RawMessage(`{"faction_name":"New"}`)}}
	if err := st.Apply(factionDef, regen); err != nil {
		t.Fatalf("Apply regen: %v", err)
	}

	items := st.Items["factions"]
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].Provenance != "inv_keep" {
		t.Errorf("items[0].Provenance = %q, want inv_keep untouched", items[0].Provenance)
	}
	if string(items[1].Data) != `{"faction_name":"New"}` {
		t.Errorf("items[1] = %s, want regenerated", items[1].Data)
	}
}

func TestApplyRejectsMismatchedStage(t *testing.T) {
	st := state.New("topic", "")
	upd := state.Update{Stage: "factions", Invocation: "inv_1", Doc: json.RawMessage(`{}`)}
	if err := st.Apply(conceptDef, upd); err == nil {
		t.Error("expected error for mismatched stage")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	st := state.New("steampunk detective story", "grounding notes")
	if err := st.Apply(conceptDef, state.Update{
		Stage: "concept", Invocation: "inv_c", Doc: json.RawMessage(`{"title":"t"}`),
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := st.Apply(factionDef, state.Update{
		Stage: "factions", Invocation: "inv_f",
		Items: []json.RawMessage{json.RawMessage(`{"faction_name":"F"}`)},
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := st.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := state.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(st, decoded) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, st)
	}
}

func TestCloneIsDeep(t *testing.T) {
	st := state.New("topic", "")
	if err := st.Apply(factionDef, state.Update{
		Stage: "factions", Invocation: "inv_1",
		Items: []json.RawMessage{json.RawMessage(`{"faction_name":"F"}`)},
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	clone := st.Clone()
	if err := clone.Apply(factionDef, state.Update{
		Stage: "factions", Invocation: "inv_2",
		Items: []json.RawMessage{json.RawMessage(`{"faction_name":"G"}`)},
	}); err != nil {
		t.Fatalf("Apply to clone: %v", err)
	}

	if len(st.Items["factions"]) != 1 {
		t.Error("mutating the clone leaked into the original")
	}
	if st.Invocation("factions") != "inv_1" {
		t.Error("clone mutation changed original invocation tag")
	}
}
