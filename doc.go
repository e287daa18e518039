// Package saga provides a staged content-generation workflow engine: a
// human-in-the-loop pipeline that turns a single topic into a chain of
// dependent creative artifacts (concept, world lore, factions,
// characters, plot arcs, questlines).
//
// Saga is designed as a library, not a service. Import it, configure a
// store and a generator, and drive sessions through the engine:
//
//	gen := openai.NewWithToken(os.Getenv("OPENAI_API_KEY"))
//	eng, err := engine.New(memory.New(), gen)
//	ses, err := eng.Start(ctx, "steampunk detective story", "")
//	...
//	ses, err = eng.SubmitFeedback(ctx, ses.ID, "make it darker")
//	ses, err = eng.Continue(ctx, ses.ID)
//
// # Architecture
//
// Each subsystem lives in its own package: stage (the dependency-ordered
// registry), state (the accumulating workflow state and its merge
// rules), session (sessions, checkpoints, feedback history, and the
// persistence contract), executor (single-stage execution), scheduler
// (bounded parallel batches), and engine (the session state machine
// composing them). A single store backend implements the full
// session.Store contract; memory, sqlite, redis, and postgres backends
// are provided.
//
// After every successful batch the engine checkpoints the full state
// and suspends, holding no goroutine, until the caller submits feedback
// or advances the session. Any process holding the same store can
// resume a suspended session.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package saga
