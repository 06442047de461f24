package main

import (
	"encoding/json"
	"fmt"

	"github.com/brainrun/brains/brain"
)

// newDemoBrain builds a small ticket-triage brain exercising every step
// kind: a Plain step that normalizes input, an Agent step that classifies
// the ticket via a terminal tool, a nested sub-brain that drafts a reply,
// and a Batch step that tags a list of related tickets.
func newDemoBrain() *brain.Definition {
	classifySchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"priority": {"type": "string"},
			"team": {"type": "string"}
		},
		"required": ["priority", "team"]
	}`)

	draft := brain.NewBrain("Draft Reply").
		Step("Compose", func(ctx brain.StepContext) (any, error) {
			state, _ := ctx.State.(map[string]any)
			subject, _ := state["subject"].(string)
			return map[string]any{
				"subject": subject,
				"reply":   fmt.Sprintf("Thanks for reaching out about %q, we're on it.", subject),
			}, nil
		}).
		Build()

	tagSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"tag": {"type": "string"}},
		"required": ["tag"]
	}`)

	return brain.NewBrain("Ticket Triage").
		Description("Classifies an incoming support ticket, drafts a reply, and tags related tickets.").
		OptionsSchema(json.RawMessage(`{
			"type": "object",
			"properties": {"subject": {"type": "string"}},
			"required": ["subject"]
		}`)).
		Step("Normalize", func(ctx brain.StepContext) (any, error) {
			opts, _ := ctx.Options.(map[string]any)
			subject, _ := opts["subject"].(string)
			if subject == "" {
				subject = "untitled ticket"
			}
			return map[string]any{"subject": subject}, nil
		}).
		Agent("Classify", func(ctx brain.StepContext) (brain.AgentSpec, error) {
			state, _ := ctx.State.(map[string]any)
			subject, _ := state["subject"].(string)
			return brain.AgentSpec{
				Prompt: fmt.Sprintf("Classify this support ticket: %s", subject),
				System: "You triage support tickets into a priority and an owning team.",
				Tools: map[string]brain.ToolDef{
					"classify": {
						Description: "Record the ticket's priority and owning team.",
						InputSchema: classifySchema,
						Terminal:    true,
					},
				},
				MaxIterations: 4,
			}, nil
		}).
		Nested("Draft", draft,
			func(parent any) (any, error) {
				state, _ := parent.(map[string]any)
				return map[string]any{"subject": state["subject"]}, nil
			},
			func(parent, child any) (any, error) {
				parentState, _ := parent.(map[string]any)
				childState, _ := child.(map[string]any)
				merged := map[string]any{}
				for k, v := range parentState {
					merged[k] = v
				}
				merged["reply"] = childState["reply"]
				return merged, nil
			},
		).
		Batch("Tag Related", func(ctx brain.StepContext) ([]any, error) {
			return []any{"related-1", "related-2"}, nil
		}, 2, tagSchema, func(item any, ctx brain.StepContext) (brain.AgentSpec, error) {
			return brain.AgentSpec{
				Prompt: fmt.Sprintf("Tag related ticket %v with the same priority.", item),
				Tools: map[string]brain.ToolDef{
					"tag": {
						Description: "Record the tag applied to the related ticket.",
						InputSchema: tagSchema,
						Terminal:    true,
					},
				},
				MaxIterations: 2,
			}, nil
		}).
		Build()
}
