package brain

import "encoding/json"

// Builder accumulates step definitions for a brain. Every method returns a
// new Builder value; the zero value is ready to use via NewBrain. Builder
// itself is never shared mutable state: Build() copies the accumulated
// steps into a fresh, immutable Definition.
type Builder struct {
	title         string
	description   string
	steps         []Step
	optionsSchema json.RawMessage
}

// NewBrain starts a new builder for a brain with the given title.
func NewBrain(title string) Builder {
	return Builder{title: title}
}

// Description sets the brain's description.
func (b Builder) Description(d string) Builder {
	b.description = d
	return b
}

// OptionsSchema attaches a JSON-Schema document validating the options
// object passed to Engine.Run/Resume. The engine enforces it at run start
// and surfaces validation failures as ERROR before any START.
func (b Builder) OptionsSchema(schema json.RawMessage) Builder {
	b.optionsSchema = schema
	return b
}

// Step appends a deterministic computation step.
func (b Builder) Step(title string, body PlainBody) Builder {
	return b.append(NewPlainStep(title, body))
}

// Agent appends an agent step.
func (b Builder) Agent(title string, body AgentBody) Builder {
	return b.append(NewAgentStep(title, body))
}

// Nested appends a nested-brain step.
func (b Builder) Nested(title string, child *Definition, adapt AdaptState, merge MergeState) Builder {
	return b.append(NewNestedBrainStep(title, child, adapt, merge))
}

// Batch appends a batch-agent step.
func (b Builder) Batch(title string, items BatchItems, chunkSize int, schema json.RawMessage, body BatchBody) Builder {
	return b.append(NewBatchAgentStep(title, items, chunkSize, schema, body))
}

func (b Builder) append(s Step) Builder {
	next := make([]Step, len(b.steps)+1)
	copy(next, b.steps)
	next[len(b.steps)] = s
	b.steps = next
	return b
}

// Build freezes the accumulated steps into an immutable Definition.
func (b Builder) Build() *Definition {
	steps := make([]Step, len(b.steps))
	copy(steps, b.steps)
	return &Definition{
		title:         b.title,
		description:   b.description,
		steps:         steps,
		optionsSchema: b.optionsSchema,
	}
}
