package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rare/core"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(context.Context, core.ExecuteCommand) (string, error) {
	return m.text, m.err
}

func testCommand() core.ExecuteCommand {
	return core.ExecuteCommand{
		Action:     core.DefaultAction,
		Parameters: map[string]any{"text": "hello", "emotion": "happy"},
	}
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())

	got, err := inst.Resolve(context.Background(), testCommand())
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)
}

func TestInstruction_TemplatedWithParameters(t *testing.T) {
	inst := NewInstructionFromText(`The user feels {{.emotion}}. Tone: {{default "neutral" .tone}}.`)

	got, err := inst.Resolve(context.Background(), testCommand())
	require.NoError(t, err)
	assert.Equal(t, "The user feels happy. Tone: neutral.", got)
}

func TestInstruction_Provider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "dynamic {{upper .emotion}}"})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(context.Background(), testCommand())
	require.NoError(t, err)
	assert.Equal(t, "dynamic HAPPY", got)
}

func TestInstruction_ProviderError(t *testing.T) {
	boom := errors.New("provider failure")
	inst := NewInstructionFromProvider(mockProvider{err: boom})

	_, err := inst.Resolve(context.Background(), testCommand())
	assert.ErrorIs(t, err, boom)
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(_ context.Context, cmd core.ExecuteCommand) (string, error) {
		return "action " + cmd.Action, nil
	})

	got, err := inst.Resolve(context.Background(), testCommand())
	require.NoError(t, err)
	assert.Equal(t, "action ai_chat", got)
}

func TestInstruction_TemplateError(t *testing.T) {
	inst := NewInstructionFromText("broken {{.emotion")

	_, err := inst.Resolve(context.Background(), testCommand())
	assert.Error(t, err)
}
