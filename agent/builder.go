package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
	"github.com/hupe1980/rare/model"
)

// BuilderAgentID is the id of the app builder engine.
const BuilderAgentID = "builder"

// EventAppBuilt is emitted after the builder drafted an app.
const EventAppBuilt = "builder:app_built"

const builderInstruction = `You draft mobile app plans. Reply with a short numbered list of screens and features for the requested app.`

// BuilderAgent turns build_app requests into an app plan drafted by a model
// and announces the result with a builder:app_built domain event.
type BuilderAgent struct {
	*Base
	llm model.Model
}

// NewBuilderAgent creates the "builder" engine.
func NewBuilderAgent(llm model.Model, logger logging.Logger) *BuilderAgent {
	b := &BuilderAgent{
		Base: NewBase(BuilderAgentID, func(o *BaseOptions) {
			o.Name = "Builder"
			o.Description = "Drafts application plans"
			o.Logger = logger
		}),
		llm: llm,
	}
	b.Handle("build_app", b.build)
	return b
}

func (b *BuilderAgent) build(ctx context.Context, cmd core.ExecuteCommand) (Result, error) {
	request := stringParam(cmd.Parameters, "text")
	if request == "" {
		return Result{}, fmt.Errorf("build_app: empty request: %w", core.ErrInvalidInput)
	}
	resp, err := model.Collect(ctx, b.llm, model.Request{
		Instructions: builderInstruction,
		Messages:     []model.Message{{Role: model.RoleUser, Content: request}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("build_app: %w", err)
	}

	data := map[string]any{"request": request, "plan": resp.Text, "decision_id": cmd.DecisionID}
	b.EmitDomainEvent(ctx, EventAppBuilt, data)
	return Result{Output: resp.Text, Data: data}, nil
}
