package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/backoff"
	"github.com/HACKMANV8/saga/executor"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/stage"
	"github.com/HACKMANV8/saga/state"
)

const conceptJSON = `{"title":"Ashes of Aurum","elevator_pitch":"A heist RPG in a dying golden city."}`

// stageOutputs maps stage names to canned generator payloads for the
// default level-1 wave.
var stageOutputs = map[string]json.RawMessage{
	stage.WorldLore:  json.RawMessage(`{"world_name":"Aurum","setting_overview":"A city of gold and rot."}`),
	stage.Factions:   json.RawMessage(`[{"faction_name":"Gilded Hand","core_ideology":"wealth is order"}]`),
	stage.Characters: json.RawMessage(`[{"character_name":"Vess","role_purpose":"fixer"}]`),
}

// scriptedGenerator returns canned output per stage, optionally failing
// some stages a fixed number of times. Random delays shuffle completion
// order.
type scriptedGenerator struct {
	mu        sync.Mutex
	failLeft  map[string]int
	calls     map[string]int
	randDelay bool
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		failLeft: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (g *scriptedGenerator) Generate(_ context.Context, req saga.Request) (json.RawMessage, error) {
	if g.randDelay {
		time.Sleep(time.Duration(rand.IntN(20)) * time.Millisecond) //nolint:gosec // test jitter
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[req.Stage]++
	if g.failLeft[req.Stage] > 0 {
		g.failLeft[req.Stage]--
		return nil, errors.New("model unavailable")
	}
	out, ok := stageOutputs[req.Stage]
	if !ok {
		return json.RawMessage(conceptJSON), nil
	}
	return out, nil
}

func waveOne(t *testing.T) (*stage.Registry, []stage.Definition, *state.State) {
	t.Helper()
	reg, err := stage.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	waves, err := reg.Waves()
	if err != nil {
		t.Fatalf("Waves: %v", err)
	}

	st := state.New("golden city heist", "")
	conceptDef, _ := reg.Get(stage.Concept)
	if err := st.Apply(conceptDef, state.Update{
		Stage:      stage.Concept,
		Invocation: id.NewInvocationID().String(),
		Doc:        json.RawMessage(conceptJSON),
	}); err != nil {
		t.Fatalf("Apply concept: %v", err)
	}
	return reg, waves[1], st
}

func newScheduler(reg *stage.Registry, gen saga.Generator, maxRetries int) *Scheduler {
	exec := executor.New(reg, gen,
		executor.WithBackoff(backoff.NewConstant(0)),
		executor.WithMaxRetries(maxRetries),
	)
	return New(exec, WithMaxWorkers(3))
}

func TestRunWaveDeterministicOrder(t *testing.T) {
	t.Parallel()
	reg, wave, st := waveOne(t)

	// Completion order is randomized; result order must not be.
	for run := 0; run < 5; run++ {
		gen := newScriptedGenerator()
		gen.randDelay = true
		sched := newScheduler(reg, gen, 0)

		results, err := sched.RunWave(context.Background(), wave, st, nil, nil)
		if err != nil {
			t.Fatalf("RunWave: %v", err)
		}
		want := []string{stage.WorldLore, stage.Factions, stage.Characters}
		if len(results) != len(want) {
			t.Fatalf("len(results) = %d, want %d", len(results), len(want))
		}
		for i, res := range results {
			if res.Update.Stage != want[i] {
				t.Fatalf("run %d: results[%d].Stage = %q, want %q", run, i, res.Update.Stage, want[i])
			}
		}
	}
}

func TestRunWaveNoSiblingCancellation(t *testing.T) {
	t.Parallel()
	reg, wave, st := waveOne(t)

	gen := newScriptedGenerator()
	gen.failLeft[stage.Factions] = 100 // permanently failing
	sched := newScheduler(reg, gen, 0)

	results, err := sched.RunWave(context.Background(), wave, st, nil, nil)

	var batchErr *saga.BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("error = %v, want *BatchError", err)
	}
	if got := batchErr.Stages(); len(got) != 1 || got[0] != stage.Factions {
		t.Errorf("failed stages = %v, want [factions]", got)
	}

	// Siblings completed despite the failure.
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 surviving siblings", len(results))
	}
	for _, res := range results {
		if res.Update.Stage == stage.Factions {
			t.Errorf("failed stage present in results: %+v", res.Update)
		}
	}
	if gen.calls[stage.WorldLore] == 0 || gen.calls[stage.Characters] == 0 {
		t.Errorf("calls = %v, want every sibling attempted", gen.calls)
	}
}

func TestRunWaveSequentialRetryRecovers(t *testing.T) {
	t.Parallel()
	reg, wave, st := waveOne(t)

	// Fails the parallel attempt, succeeds on the sequential retry.
	gen := newScriptedGenerator()
	gen.failLeft[stage.Characters] = 1
	sched := newScheduler(reg, gen, 0)

	results, err := sched.RunWave(context.Background(), wave, st, nil, nil)
	if err != nil {
		t.Fatalf("RunWave: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if gen.calls[stage.Characters] != 2 {
		t.Errorf("characters called %d times, want 2", gen.calls[stage.Characters])
	}
}

func TestRunWaveSingleStageInline(t *testing.T) {
	t.Parallel()
	reg, err := stage.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	conceptDef, _ := reg.Get(stage.Concept)

	gen := newScriptedGenerator()
	sched := newScheduler(reg, gen, 0)

	st := state.New("topic", "")
	inv := id.NewInvocationID()
	results, err := sched.RunWave(context.Background(), []stage.Definition{conceptDef}, st,
		map[string]id.InvocationID{stage.Concept: inv}, nil)
	if err != nil {
		t.Fatalf("RunWave: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Update.Invocation != inv.String() {
		t.Errorf("Invocation = %q, want supplied tag %q", results[0].Update.Invocation, inv)
	}
}

func TestRunWavePassesFeedback(t *testing.T) {
	t.Parallel()
	reg, err := stage.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	conceptDef, _ := reg.Get(stage.Concept)

	var gotFeedback string
	gen := saga.GeneratorFunc(func(_ context.Context, req saga.Request) (json.RawMessage, error) {
		gotFeedback = req.Feedback
		return json.RawMessage(conceptJSON), nil
	})
	sched := newScheduler(reg, gen, 0)

	st := state.New("topic", "")
	_, err = sched.RunWave(context.Background(), []stage.Definition{conceptDef}, st, nil,
		map[string]string{stage.Concept: "darker tone"})
	if err != nil {
		t.Fatalf("RunWave: %v", err)
	}
	if gotFeedback != "darker tone" {
		t.Errorf("Feedback = %q, want %q", gotFeedback, "darker tone")
	}
}

func TestRunWaveEmpty(t *testing.T) {
	t.Parallel()
	reg, err := stage.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	sched := newScheduler(reg, newScriptedGenerator(), 0)

	results, err := sched.RunWave(context.Background(), nil, state.New("t", ""), nil, nil)
	if err != nil || results != nil {
		t.Fatalf("RunWave(empty) = (%v, %v), want (nil, nil)", results, err)
	}
}
