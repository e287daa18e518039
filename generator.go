package saga

import (
	"context"
	"encoding/json"
)

// Request carries everything a stage's generation call is allowed to
// see: the topic, optional research context, the outputs of the stage's
// declared prerequisites, and optional reviewer feedback. Stages never
// receive state they did not declare a dependency on.
type Request struct {
	// Stage is the name of the stage being generated.
	Stage string `json:"stage"`

	// Topic is the user's original topic for the session.
	Topic string `json:"topic"`

	// Research is optional grounding text supplied at session start.
	Research string `json:"research,omitempty"`

	// Inputs maps each declared prerequisite stage to its current
	// output. Replace-kind prerequisites contribute a single document;
	// append-kind prerequisites contribute a JSON array of items.
	Inputs map[string]json.RawMessage `json:"inputs,omitempty"`

	// Feedback is reviewer feedback for a regeneration pass; empty for
	// an initial generation.
	Feedback string `json:"feedback,omitempty"`

	// Model controls, passed through verbatim from Config.
	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	Seed        int     `json:"seed,omitempty"`
}

// Generator is the external creative-generation collaborator: an LLM
// call or equivalent. It may be arbitrarily slow, fail, or return
// malformed output; the executor validates everything it returns.
// Implementations must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (json.RawMessage, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}
