package agent

import (
	"context"

	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the command, the time of day, etc.
type Provider interface {
	Instruction(ctx context.Context, cmd core.ExecuteCommand) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, cmd core.ExecuteCommand) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, cmd core.ExecuteCommand) (string, error) {
	return f(ctx, cmd)
}

// Instruction represents either a static instruction string or a dynamic provider.
// This mirrors a union of string | provider in a Go-idiomatic way.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string. The text
// may reference command parameters, e.g. {{.emotion}}.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, cmd core.ExecuteCommand) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed, and
// renders it as a template over the command parameters.
func (i Instruction) Resolve(ctx context.Context, cmd core.ExecuteCommand) (string, error) {
	text := i.text
	if i.provider != nil {
		var err error
		if text, err = i.provider.Instruction(ctx, cmd); err != nil {
			return "", err
		}
	}
	return util.RenderTemplate(text, cmd.Parameters)
}
