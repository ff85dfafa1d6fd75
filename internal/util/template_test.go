package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	state := map[string]any{
		"name":  "rare",
		"needs": []string{"quiet_mode", "security_priority"},
		"text":  "<b>hi</b>",
	}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"no markers", "plain text", "plain text"},
		{"variable", "hello {{.name}}", "hello rare"},
		{"default", `{{default "medium" .urgency}}`, "medium"},
		{"upper", "{{upper .name}}", "RARE"},
		{"title", "{{title .name}}", "Rare"},
		{"join", `{{join ", " .needs}}`, "quiet_mode, security_priority"},
		{"no escaping", "{{.text}}", "<b>hi</b>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.tmpl, state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{.name", nil)
	assert.Error(t, err)
}
