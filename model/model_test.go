package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_Collect(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hi", "hello there")

	resp, err := Collect(context.Background(), m, Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 3, resp.Usage.TotalTokens)
	assert.Len(t, m.Requests(), 1)
}

func TestMockModel_StreamEmitsPartials(t *testing.T) {
	m := NewMockModel("mock", "mock")
	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "abc"}},
		Stream:   true,
	})

	var partial string
	var final Response
	for r := range respCh {
		if r.Partial {
			partial += r.Text
			continue
		}
		final = r
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "Mock response to: abc", partial)
	assert.Equal(t, partial, final.Text)
}

func TestCollect_Errors(t *testing.T) {
	m := NewMockModel("mock", "mock")

	_, err := Collect(context.Background(), m, Request{})
	assert.EqualError(t, err, "no messages provided")

	boom := errors.New("quota exceeded")
	m.FailWith(boom)
	_, err = Collect(context.Background(), m, Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, boom)
}

func TestLastUserMessage(t *testing.T) {
	req := Request{Messages: []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "reply 2"},
	}}
	assert.Equal(t, "second", LastUserMessage(req))
	assert.Empty(t, LastUserMessage(Request{}))
}
