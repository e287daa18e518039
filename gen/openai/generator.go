// Package openai implements saga.Generator against an OpenAI-compatible
// chat-completions API. Every stage call requests strict JSON-schema
// structured output matching the stage's artifact shape, so the model
// cannot return free-form prose.
//
// The generator serves the default narrative pipeline's stages. Custom
// registries need their own Generator implementation.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/artifact"
	"github.com/HACKMANV8/saga/stage"
)

// DefaultModel is used when the request carries no model name.
const DefaultModel = openai.GPT4oMini

// Client is the subset of the OpenAI client the generator needs.
// *openai.Client satisfies it; tests substitute a fake.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator calls a chat-completions API with per-stage prompts and
// strict structured output. Safe for concurrent use.
type Generator struct {
	client Client
	logger *slog.Logger
}

var _ saga.Generator = (*Generator)(nil)

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a Generator on an existing client. The caller owns the
// client's configuration (base URL, auth, HTTP transport).
func New(client Client, opts ...Option) *Generator {
	g := &Generator{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewWithToken creates a Generator with a default client for the
// given API token.
func NewWithToken(token string, opts ...Option) *Generator {
	return New(openai.NewClient(token), opts...)
}

// Generate implements saga.Generator. Replace-kind stages return a
// single document; append-kind stages return a JSON array of items.
func (g *Generator) Generate(ctx context.Context, req saga.Request) (json.RawMessage, error) {
	spec, ok := stageSpecs[req.Stage]
	if !ok {
		return nil, fmt.Errorf("openai: no prompt for stage %q", req.Stage)
	}

	schema, err := jsonschema.GenerateSchemaForType(spec.shape)
	if err != nil {
		return nil, fmt.Errorf("openai: generate schema for stage %q: %w", req.Stage, err)
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: spec.system},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req, spec.task)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Stage,
				Schema: schema,
				Strict: true,
			},
		},
	}
	if req.Seed != 0 {
		seed := req.Seed
		chatReq.Seed = &seed
	}

	g.logger.Debug("generating stage",
		slog.String("stage", req.Stage),
		slog.String("model", model),
		slog.Bool("regeneration", req.Feedback != ""),
	)

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: stage %q completion: %w", req.Stage, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: stage %q completion returned no choices", req.Stage)
	}
	content := resp.Choices[0].Message.Content

	if !spec.list {
		return json.RawMessage(content), nil
	}
	// List stages are generated behind an object wrapper because strict
	// structured output requires a top-level object. Unwrap to the bare
	// array the executor expects.
	var wrapper struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal([]byte(content), &wrapper); err != nil {
		return nil, fmt.Errorf("openai: stage %q returned malformed item list: %w", req.Stage, err)
	}
	out, err := json.Marshal(wrapper.Items)
	if err != nil {
		return nil, fmt.Errorf("openai: stage %q item list: %w", req.Stage, err)
	}
	return out, nil
}

// buildPrompt assembles the user message: the stage task, the topic,
// optional research, the declared prerequisite outputs, and optional
// reviewer feedback. Inputs are ordered by stage name so the prompt is
// deterministic.
func buildPrompt(req saga.Request, task string) string {
	var b strings.Builder
	b.WriteString(task)
	fmt.Fprintf(&b, "\n\n**Topic:** %s\n", req.Topic)
	if req.Research != "" {
		fmt.Fprintf(&b, "\n**Research Context:**\n%s\n", req.Research)
	}

	names := make([]string, 0, len(req.Inputs))
	for name := range req.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n**%s:**\n%s\n", name, req.Inputs[name])
	}

	if req.Feedback != "" {
		fmt.Fprintf(&b, "\n**Reviewer Feedback (revise accordingly):**\n%s\n", req.Feedback)
	}
	return b.String()
}

// Wrapper shapes for list stages; strict schemas must be objects.
type factionList struct {
	Items []artifact.Faction `json:"items"`
}

type characterList struct {
	Items []artifact.Character `json:"items"`
}

type plotArcList struct {
	Items []artifact.PlotArc `json:"items"`
}

type questlineList struct {
	Items []artifact.Questline `json:"items"`
}

type stageSpec struct {
	system string
	task   string
	list   bool
	shape  any
}

var stageSpecs = map[string]stageSpec{
	stage.Concept: {
		system: "You are a veteran game designer creating a compelling video game concept. " +
			"Generate a complete, structured concept document that captures the essential DNA " +
			"of the game and sets up all downstream narrative elements.",
		task: "Create a structured game concept that establishes the core gameplay loop, " +
			"mechanics, art style, and unique selling proposition.",
		shape: artifact.Concept{},
	},
	stage.WorldLore: {
		system: "You are a master worldbuilder creating deep, coherent fantasy and sci-fi " +
			"universes. Ground every detail in the game concept.",
		task:  "Create the world lore for this game: setting, history, civilizations, and the tensions that drive stories.",
		shape: artifact.WorldLore{},
	},
	stage.Factions: {
		system: "You are a game designer creating compelling faction systems. Generate factions " +
			"that have clear identities, gameplay mechanics, and conflict potential.",
		task:  "Create 2-3 major factions for this game, each with a distinct ideology and role in the world.",
		list:  true,
		shape: factionList{},
	},
	stage.Characters: {
		system: "You are a character designer creating memorable game characters. Generate " +
			"characters with strong visual identity, clear motivations, and gameplay role.",
		task:  "Create 3-4 major characters for this game with detailed profiles, personality, and recruitment mechanics.",
		list:  true,
		shape: characterList{},
	},
	stage.PlotArcs: {
		system: "You are a narrative designer creating compelling branching story arcs. Generate " +
			"plot arcs with clear dramatic structure, branching choices, and multiple endings.",
		task:  "Create 1-2 major plot arcs for this game with three-act structure and meaningful choice points.",
		list:  true,
		shape: plotArcList{},
	},
	stage.Questlines: {
		system: "You are a quest designer creating engaging game quests. Generate questlines " +
			"with clear objectives, branching paths, and meaningful player choices.",
		task:  "Create 3-5 questlines for this game with discovery hooks, branching objectives, and varied rewards.",
		list:  true,
		shape: questlineList{},
	},
}
