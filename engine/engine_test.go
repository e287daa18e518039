package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/backoff"
	"github.com/HACKMANV8/saga/engine"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/session"
	"github.com/HACKMANV8/saga/stage"
	"github.com/HACKMANV8/saga/store/memory"
)

const parallelLabel = "world_lore+factions+characters"

var pipelineOutputs = map[string]string{
	stage.Concept:    `{"title":"Brass Shadows","elevator_pitch":"A detective unravels clockwork conspiracies in a steam-choked city."}`,
	stage.WorldLore:  `{"world_name":"Cogsmouth","setting_overview":"An industrial port city run on steam and secrets."}`,
	stage.Factions:   `[{"faction_name":"The Brass Court","core_ideology":"order through industry"},{"faction_name":"The Smoke Ring","core_ideology":"freedom in the fog"}]`,
	stage.Characters: `[{"character_name":"Inspector Vale","role_purpose":"protagonist"}]`,
	stage.PlotArcs:   `[{"arc_title":"The Clockmaker Murders","central_question":"Who winds the killer?"}]`,
	stage.Questlines: `[{"quest_name":"Cold Boilers","hook_pitch":"A factory goes silent overnight."}]`,
}

const darkerConcept = `{"title":"Brass Shadows","elevator_pitch":"A broken detective hunts a killer through the smog of a dying city."}`

// scriptedGenerator serves canned per-stage payloads, records calls and
// feedback, and can be scripted to fail specific stages.
type scriptedGenerator struct {
	mu       sync.Mutex
	calls    map[string]int
	failLeft map[string]int
	feedback map[string]string
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		calls:    make(map[string]int),
		failLeft: make(map[string]int),
		feedback: make(map[string]string),
	}
}

func (g *scriptedGenerator) Generate(_ context.Context, req saga.Request) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[req.Stage]++
	g.feedback[req.Stage] = req.Feedback
	if g.failLeft[req.Stage] > 0 {
		g.failLeft[req.Stage]--
		return nil, errors.New("model overloaded")
	}
	if req.Stage == stage.Concept && req.Feedback != "" {
		return json.RawMessage(darkerConcept), nil
	}
	out, ok := pipelineOutputs[req.Stage]
	if !ok {
		return nil, fmt.Errorf("no canned output for stage %q", req.Stage)
	}
	return json.RawMessage(out), nil
}

func (g *scriptedGenerator) callCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func newEngine(t *testing.T, gen saga.Generator, opts ...engine.Option) *engine.Engine {
	t.Helper()
	base := []engine.Option{
		engine.WithBackoff(backoff.NewConstant(0)),
	}
	eng, err := engine.New(memory.New(), gen, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func TestNewValidation(t *testing.T) {
	gen := newScriptedGenerator()

	if _, err := engine.New(nil, gen); !errors.Is(err, saga.ErrNoStore) {
		t.Errorf("New(nil store) error = %v, want ErrNoStore", err)
	}
	if _, err := engine.New(memory.New(), nil); !errors.Is(err, saga.ErrNoGenerator) {
		t.Errorf("New(nil generator) error = %v, want ErrNoGenerator", err)
	}

	cyclic := stage.NewRegistry()
	defs := []stage.Definition{
		{Name: "a", Requires: []string{"b"}, Merge: stage.MergeReplace, Output: "concept"},
		{Name: "b", Requires: []string{"a"}, Merge: stage.MergeReplace, Output: "world_lore"},
	}
	for _, def := range defs {
		if err := cyclic.Register(def); err != nil {
			t.Fatalf("Register(%s): %v", def.Name, err)
		}
	}
	if _, err := engine.New(memory.New(), gen, engine.WithRegistry(cyclic)); !errors.Is(err, saga.ErrCyclicDependency) {
		t.Errorf("New(cyclic registry) error = %v, want ErrCyclicDependency", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	gen := newScriptedGenerator()
	eng := newEngine(t, gen)

	ses, err := eng.Start(ctx, "steampunk detective story", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ses.Stage != stage.Concept {
		t.Errorf("Stage = %q, want %q", ses.Stage, stage.Concept)
	}
	if !ses.AwaitingFeedback {
		t.Error("AwaitingFeedback = false after first batch, want true")
	}

	ses, err = eng.SubmitFeedback(ctx, ses.ID, "make it darker")
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if !ses.AwaitingFeedback {
		t.Error("AwaitingFeedback = false after feedback, want true")
	}
	if got := gen.feedback[stage.Concept]; got != "make it darker" {
		t.Errorf("concept feedback = %q, want %q", got, "make it darker")
	}

	snap, err := eng.GetState(ctx, ses.ID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !strings.Contains(string(snap.State.Docs[stage.Concept]), "dying city") {
		t.Errorf("concept doc = %s, want regenerated darker pitch", snap.State.Docs[stage.Concept])
	}
	if len(snap.Feedback) != 1 || snap.Feedback[0].Text != "make it darker" {
		t.Errorf("feedback history = %+v, want single record", snap.Feedback)
	}

	wantStages := []string{parallelLabel, stage.PlotArcs, stage.Questlines}
	for _, want := range wantStages {
		ses, err = eng.Continue(ctx, ses.ID)
		if err != nil {
			t.Fatalf("Continue to %s: %v", want, err)
		}
		if ses.Stage != want {
			t.Errorf("Stage = %q, want %q", ses.Stage, want)
		}
	}
	if ses.Status != session.StatusCompleted {
		t.Errorf("Status = %q, want %q", ses.Status, session.StatusCompleted)
	}
	if ses.AwaitingFeedback {
		t.Error("AwaitingFeedback = true on completed session")
	}

	history, err := eng.History(ctx, ses.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	wantHistory := []string{stage.Concept, stage.Concept, parallelLabel, stage.PlotArcs, stage.Questlines}
	if len(history) != len(wantHistory) {
		t.Fatalf("len(history) = %d, want %d", len(history), len(wantHistory))
	}
	for i, meta := range history {
		if meta.Stage != wantHistory[i] {
			t.Errorf("history[%d].Stage = %q, want %q", i, meta.Stage, wantHistory[i])
		}
	}

	snap, err = eng.GetState(ctx, ses.ID)
	if err != nil {
		t.Fatalf("GetState after completion: %v", err)
	}
	if len(snap.State.Docs) != 2 {
		t.Errorf("len(Docs) = %d, want 2 (concept, world_lore)", len(snap.State.Docs))
	}
	if len(snap.State.Items[stage.Factions]) != 2 {
		t.Errorf("len(factions) = %d, want 2", len(snap.State.Items[stage.Factions]))
	}
	if len(snap.State.Items[stage.Questlines]) != 1 {
		t.Errorf("len(questlines) = %d, want 1", len(snap.State.Items[stage.Questlines]))
	}
}

func TestFeedbackRegenerationIdempotent(t *testing.T) {
	ctx := context.Background()
	gen := newScriptedGenerator()
	eng := newEngine(t, gen)

	ses, err := eng.Start(ctx, "steampunk detective story", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := eng.Continue(ctx, ses.ID); err != nil {
		t.Fatalf("Continue: %v", err)
	}

	// Two regenerations of the parallel batch must not accumulate
	// duplicate list items: each run replaces its stage's prior
	// contribution under the same invocation tag.
	for range 2 {
		if _, err := eng.SubmitFeedback(ctx, ses.ID, "more intrigue"); err != nil {
			t.Fatalf("SubmitFeedback: %v", err)
		}
	}

	snap, err := eng.GetState(ctx, ses.ID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got := len(snap.State.Items[stage.Factions]); got != 2 {
		t.Errorf("len(factions) = %d after double regeneration, want 2", got)
	}
	if got := len(snap.State.Items[stage.Characters]); got != 1 {
		t.Errorf("len(characters) = %d after double regeneration, want 1", got)
	}
	if tag := snap.State.Invocation(stage.Factions); tag == "" {
		t.Error("factions invocation tag missing")
	}

	history, err := eng.History(ctx, ses.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// start + continue + two regenerations.
	if len(history) != 4 {
		t.Errorf("len(history) = %d, want 4", len(history))
	}
}

// blockingGenerator passes through to a scriptedGenerator but blocks
// world_lore generation until released, so a second operation can be
// issued while the first is provably in flight.
type blockingGenerator struct {
	inner   *scriptedGenerator
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *blockingGenerator) Generate(ctx context.Context, req saga.Request) (json.RawMessage, error) {
	if req.Stage == stage.WorldLore {
		g.once.Do(func() { close(g.started) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.inner.Generate(ctx, req)
}

func TestContinueBusyGuard(t *testing.T) {
	ctx := context.Background()
	gen := &blockingGenerator{
		inner:   newScriptedGenerator(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	eng := newEngine(t, gen)

	ses, err := eng.Start(ctx, "steampunk detective story", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := eng.Continue(ctx, ses.ID)
		firstDone <- err
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first Continue never reached the generator")
	}

	if _, err := eng.Continue(ctx, ses.ID); !errors.Is(err, saga.ErrSessionBusy) {
		t.Errorf("concurrent Continue error = %v, want ErrSessionBusy", err)
	}

	close(gen.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Continue: %v", err)
	}
}

func TestFailedBatchLeavesSessionRetriable(t *testing.T) {
	ctx := context.Background()
	gen := newScriptedGenerator()
	gen.failLeft[stage.WorldLore] = 100
	eng := newEngine(t, gen, engine.WithConfig(func() saga.Config {
		cfg := saga.DefaultConfig()
		cfg.MaxRetries = 0
		return cfg
	}()))

	ses, err := eng.Start(ctx, "steampunk detective story", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = eng.Continue(ctx, ses.ID)
	var batchErr *saga.BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("Continue error = %v, want *saga.BatchError", err)
	}
	if got := batchErr.Stages(); len(got) != 1 || got[0] != stage.WorldLore {
		t.Errorf("failed stages = %v, want [world_lore]", got)
	}

	// The session is untouched: still awaiting the concept batch, and
	// no checkpoint exists for the failed attempt.
	snap, err := eng.GetState(ctx, ses.ID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !snap.Session.AwaitingFeedback || snap.Session.Stage != stage.Concept {
		t.Errorf("session after failed batch = stage %q awaiting %v, want concept awaiting",
			snap.Session.Stage, snap.Session.AwaitingFeedback)
	}
	history, err := eng.History(ctx, ses.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d after failed batch, want 1", len(history))
	}

	// The generator recovers; retrying the same Continue advances.
	gen.mu.Lock()
	gen.failLeft[stage.WorldLore] = 0
	gen.mu.Unlock()
	ses, err = eng.Continue(ctx, ses.ID)
	if err != nil {
		t.Fatalf("retried Continue: %v", err)
	}
	if ses.Stage != parallelLabel {
		t.Errorf("Stage = %q after retry, want %q", ses.Stage, parallelLabel)
	}
}

func TestStartRollsBackOnGenerationFailure(t *testing.T) {
	ctx := context.Background()
	gen := newScriptedGenerator()
	gen.failLeft[stage.Concept] = 100
	eng := newEngine(t, gen, engine.WithConfig(func() saga.Config {
		cfg := saga.DefaultConfig()
		cfg.MaxRetries = 0
		return cfg
	}()))

	if _, err := eng.Start(ctx, "steampunk detective story", ""); err == nil {
		t.Fatal("Start succeeded with a failing generator")
	}

	sessions, err := eng.ListSessions(ctx, session.ListOpts{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("len(sessions) = %d after rolled-back Start, want 0", len(sessions))
	}
}

// failingCheckpointStore wraps a store and fails every checkpoint save.
type failingCheckpointStore struct {
	session.Store
}

func (s *failingCheckpointStore) SaveCheckpoint(context.Context, *session.Checkpoint) error {
	return errors.New("disk full")
}

func TestPersistenceFailureMarksSessionFailed(t *testing.T) {
	ctx := context.Background()
	gen := newScriptedGenerator()
	st := &failingCheckpointStore{Store: memory.New()}
	eng, err := engine.New(st, gen, engine.WithBackoff(backoff.NewConstant(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = eng.Start(ctx, "steampunk detective story", "")
	var perr *saga.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("Start error = %v, want *saga.PersistenceError", err)
	}
	if perr.Stage != stage.Concept {
		t.Errorf("PersistenceError.Stage = %q, want %q", perr.Stage, stage.Concept)
	}

	sessions, err := eng.ListSessions(ctx, session.ListOpts{Status: session.StatusFailed})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(failed sessions) = %d, want 1", len(sessions))
	}

	// Terminal sessions admit no further operations.
	if _, err := eng.Continue(ctx, sessions[0].ID); !errors.Is(err, saga.ErrSessionTerminal) {
		t.Errorf("Continue on failed session error = %v, want ErrSessionTerminal", err)
	}
}

func TestContinueRequiresAwaitingFeedback(t *testing.T) {
	ctx := context.Background()
	gen := newScriptedGenerator()
	store := memory.New()
	eng, err := engine.New(store, gen, engine.WithBackoff(backoff.NewConstant(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ses := &session.Session{
		Entity: saga.NewEntity(),
		ID:     id.NewSessionID(),
		Topic:  "orphaned",
		Status: session.StatusActive,
	}
	if err := store.CreateSession(ctx, ses); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := eng.Continue(ctx, ses.ID); !errors.Is(err, saga.ErrNotAwaitingFeedback) {
		t.Errorf("Continue error = %v, want ErrNotAwaitingFeedback", err)
	}
	if _, err := eng.SubmitFeedback(ctx, ses.ID, "anything"); !errors.Is(err, saga.ErrNotAwaitingFeedback) {
		t.Errorf("SubmitFeedback error = %v, want ErrNotAwaitingFeedback", err)
	}
	if _, err := eng.Continue(ctx, id.NewSessionID()); !errors.Is(err, saga.ErrSessionNotFound) {
		t.Errorf("Continue on unknown session error = %v, want ErrSessionNotFound", err)
	}
}

func TestRetainCheckpointsPrunesHistory(t *testing.T) {
	ctx := context.Background()
	gen := newScriptedGenerator()
	cfg := saga.DefaultConfig()
	cfg.RetainCheckpoints = 2
	eng := newEngine(t, gen, engine.WithConfig(cfg))

	ses, err := eng.Start(ctx, "steampunk detective story", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range 3 {
		if ses, err = eng.Continue(ctx, ses.ID); err != nil {
			t.Fatalf("Continue: %v", err)
		}
	}

	history, err := eng.History(ctx, ses.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d with retention 2, want 2", len(history))
	}
	if history[len(history)-1].Stage != stage.Questlines {
		t.Errorf("latest checkpoint stage = %q, want %q", history[len(history)-1].Stage, stage.Questlines)
	}
}

func TestDeleteSessionTearsDownEverything(t *testing.T) {
	ctx := context.Background()
	gen := newScriptedGenerator()
	eng := newEngine(t, gen)

	ses, err := eng.Start(ctx, "steampunk detective story", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := eng.SubmitFeedback(ctx, ses.ID, "make it darker"); err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}

	if err := eng.DeleteSession(ctx, ses.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := eng.GetState(ctx, ses.ID); !errors.Is(err, saga.ErrSessionNotFound) {
		t.Errorf("GetState after delete error = %v, want ErrSessionNotFound", err)
	}
	if _, err := eng.History(ctx, ses.ID); err == nil {
		t.Error("History after delete succeeded, want error")
	}
}
