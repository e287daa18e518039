package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	api "github.com/sashabaranov/go-openai"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/artifact"
	genopenai "github.com/HACKMANV8/saga/gen/openai"
	"github.com/HACKMANV8/saga/stage"
)

// fakeClient records the last request and plays back a scripted
// completion.
type fakeClient struct {
	lastReq api.ChatCompletionRequest
	content string
	err     error
	choices int
}

func (c *fakeClient) CreateChatCompletion(_ context.Context, req api.ChatCompletionRequest) (api.ChatCompletionResponse, error) {
	c.lastReq = req
	if c.err != nil {
		return api.ChatCompletionResponse{}, c.err
	}
	resp := api.ChatCompletionResponse{}
	for range max(c.choices, 0) {
		resp.Choices = append(resp.Choices, api.ChatCompletionChoice{
			Message: api.ChatCompletionMessage{Content: c.content},
		})
	}
	return resp, nil
}

func TestGenerateConceptDocument(t *testing.T) {
	client := &fakeClient{
		content: `{"title":"Brass Shadows","elevator_pitch":"A clockwork noir."}`,
		choices: 1,
	}
	gen := genopenai.New(client)

	out, err := gen.Generate(context.Background(), saga.Request{
		Stage:       stage.Concept,
		Topic:       "steampunk detective story",
		Model:       "gpt-4o",
		Temperature: 0.4,
		Seed:        7,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var doc artifact.Concept
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if doc.Title != "Brass Shadows" {
		t.Errorf("Title = %q, want %q", doc.Title, "Brass Shadows")
	}

	req := client.lastReq
	if req.Model != "gpt-4o" {
		t.Errorf("Model = %q, want %q", req.Model, "gpt-4o")
	}
	if req.Temperature != 0.4 {
		t.Errorf("Temperature = %v, want 0.4", req.Temperature)
	}
	if req.Seed == nil || *req.Seed != 7 {
		t.Errorf("Seed = %v, want 7", req.Seed)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != api.ChatMessageRoleSystem {
		t.Fatalf("messages = %+v, want system then user", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "steampunk detective story") {
		t.Errorf("user prompt missing topic: %s", req.Messages[1].Content)
	}
}

func TestGenerateRequestsStrictSchema(t *testing.T) {
	client := &fakeClient{content: `{}`, choices: 1}
	gen := genopenai.New(client)

	if _, err := gen.Generate(context.Background(), saga.Request{Stage: stage.Concept, Topic: "t"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	rf := client.lastReq.ResponseFormat
	if rf == nil || rf.Type != api.ChatCompletionResponseFormatTypeJSONSchema {
		t.Fatalf("ResponseFormat = %+v, want json_schema", rf)
	}
	if rf.JSONSchema == nil || !rf.JSONSchema.Strict {
		t.Fatalf("JSONSchema = %+v, want strict", rf.JSONSchema)
	}
	if rf.JSONSchema.Name != stage.Concept {
		t.Errorf("schema name = %q, want %q", rf.JSONSchema.Name, stage.Concept)
	}
}

func TestGenerateUnwrapsListStages(t *testing.T) {
	client := &fakeClient{
		content: `{"items":[{"faction_name":"Brass Court","core_ideology":"order"},{"faction_name":"Smoke Ring","core_ideology":"freedom"}]}`,
		choices: 1,
	}
	gen := genopenai.New(client)

	out, err := gen.Generate(context.Background(), saga.Request{Stage: stage.Factions, Topic: "t"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var items []artifact.Faction
	if err := json.Unmarshal(out, &items); err != nil {
		t.Fatalf("output is not a bare array: %v\n%s", err, out)
	}
	if len(items) != 2 || items[0].Name != "Brass Court" {
		t.Errorf("items = %+v, want 2 factions", items)
	}
}

func TestGeneratePromptIncludesInputsAndFeedback(t *testing.T) {
	client := &fakeClient{content: `{"items":[]}`, choices: 1}
	gen := genopenai.New(client)

	_, err := gen.Generate(context.Background(), saga.Request{
		Stage:    stage.Factions,
		Topic:    "t",
		Research: "archived city plans",
		Inputs: map[string]json.RawMessage{
			stage.Concept: json.RawMessage(`{"title":"Brass Shadows"}`),
		},
		Feedback: "make the factions older",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	prompt := client.lastReq.Messages[1].Content
	for _, want := range []string{"archived city plans", "Brass Shadows", "make the factions older"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	gen := genopenai.New(&fakeClient{err: errors.New("rate limited")})
	if _, err := gen.Generate(context.Background(), saga.Request{Stage: stage.Concept, Topic: "t"}); err == nil {
		t.Error("Generate with API error succeeded")
	}

	gen = genopenai.New(&fakeClient{choices: 0})
	if _, err := gen.Generate(context.Background(), saga.Request{Stage: stage.Concept, Topic: "t"}); err == nil {
		t.Error("Generate with no choices succeeded")
	}

	gen = genopenai.New(&fakeClient{content: `{}`, choices: 1})
	if _, err := gen.Generate(context.Background(), saga.Request{Stage: "unknown", Topic: "t"}); err == nil {
		t.Error("Generate for unknown stage succeeded")
	}
}
