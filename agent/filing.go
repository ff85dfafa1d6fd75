package agent

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
)

// FilingAgentID is the id of the file management engine.
const FilingAgentID = "filing"

// FiledItem is one note filed by the user.
type FiledItem struct {
	Text     string    `json:"text"`
	FiledAt  time.Time `json:"filed_at"`
	Decision string    `json:"decision_id,omitempty"`
}

// FilingAgent keeps an in-process index of the file requests it receives.
type FilingAgent struct {
	*Base
	now func() time.Time

	mu    sync.Mutex
	items []FiledItem
}

// NewFilingAgent creates the "filing" engine.
func NewFilingAgent(logger logging.Logger) *FilingAgent {
	f := &FilingAgent{
		Base: NewBase(FilingAgentID, func(o *BaseOptions) {
			o.Name = "Filing"
			o.Description = "Files and lists user documents"
			o.Logger = logger
		}),
		now: time.Now,
	}
	f.Handle("file_operation", f.file)
	return f
}

// Items returns the filed items, oldest first.
func (f *FilingAgent) Items() []FiledItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

func (f *FilingAgent) file(_ context.Context, cmd core.ExecuteCommand) (Result, error) {
	item := FiledItem{Text: stringParam(cmd.Parameters, "text"), FiledAt: f.now(), Decision: cmd.DecisionID}
	f.mu.Lock()
	f.items = append(f.items, item)
	n := len(f.items)
	f.mu.Unlock()
	return Result{Output: "filed", Data: map[string]any{"count": n}}, nil
}
