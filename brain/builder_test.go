package brain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brainrun/brains/brain"
)

func noopPlain(ctx brain.StepContext) (any, error) { return nil, nil }

func TestBuilder_BuildIsImmutableAcrossFurtherSteps(t *testing.T) {
	base := brain.NewBrain("base").Step("first", noopPlain)

	withSecond := base.Step("second", noopPlain)

	baseDef := base.Build()
	withSecondDef := withSecond.Build()

	require.Len(t, baseDef.Steps(), 1)
	require.Len(t, withSecondDef.Steps(), 2)
}

func TestBuilder_BuildCopyIsIndependentOfLaterAppends(t *testing.T) {
	b := brain.NewBrain("copy-check").Step("first", noopPlain)
	def := b.Build()

	// Appending to the original builder value must not retroactively grow
	// a Definition already produced by an earlier Build call.
	_ = b.Step("second", noopPlain).Build()

	require.Len(t, def.Steps(), 1)
}

func TestBuilder_DescriptionAndOptionsSchema(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	def := brain.NewBrain("titled").
		Description("does a thing").
		OptionsSchema(schema).
		Step("only", noopPlain).
		Build()

	require.Equal(t, "titled", def.Title())
	require.Equal(t, "does a thing", def.Description())
	require.JSONEq(t, string(schema), string(def.OptionsSchema()))
}

func TestBuilder_AllStepKindsProduceCorrectCount(t *testing.T) {
	child := brain.NewBrain("child").Step("inner", noopPlain).Build()

	def := brain.NewBrain("all-kinds").
		Step("plain", noopPlain).
		Agent("agent", func(ctx brain.StepContext) (brain.AgentSpec, error) {
			return brain.AgentSpec{Prompt: "go"}, nil
		}).
		Nested("nested", child,
			func(parent any) (any, error) { return parent, nil },
			func(parent, childState any) (any, error) { return childState, nil },
		).
		Batch("batch", func(ctx brain.StepContext) ([]any, error) { return nil, nil },
			1, json.RawMessage(`{}`),
			func(item any, ctx brain.StepContext) (brain.AgentSpec, error) { return brain.AgentSpec{}, nil },
		).
		Build()

	require.Len(t, def.Steps(), 4)
}
