package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
	"github.com/hupe1980/rare/model"
)

// ChatAgentID is the id of the general purpose engine every unknown intent
// falls back to.
const ChatAgentID = core.DefaultAgent

// DefaultChatInstruction is used when no instruction is configured.
const DefaultChatInstruction = `You are RARE, a helpful personal assistant. Answer in the language of the user.
The user currently seems {{default "neutral" .emotion}}; the request urgency is {{default "medium" .urgency}}.`

// ChatAgentOptions configures a ChatAgent.
type ChatAgentOptions struct {
	Instruction Instruction

	// MaxHistoryMessages bounds the conversation kept for context.
	MaxHistoryMessages int

	// EnableStreaming requests streamed generation from the model.
	EnableStreaming bool

	Logger        logging.Logger
	ActionTimeout time.Duration
}

// ChatAgent answers free-form requests with a language model. It handles
// ai_chat and, with the same code path, any other action routed to it.
type ChatAgent struct {
	*Base
	llm             model.Model
	instruction     Instruction
	maxHistory      int
	enableStreaming bool

	mu      sync.Mutex
	history []model.Message
}

// NewChatAgent creates the "ai" engine backed by llm.
func NewChatAgent(llm model.Model, optFns ...func(o *ChatAgentOptions)) *ChatAgent {
	opts := ChatAgentOptions{
		Instruction:        NewInstructionFromText(DefaultChatInstruction),
		MaxHistoryMessages: 20,
		ActionTimeout:      60 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ChatAgent{
		Base: NewBase(ChatAgentID, func(o *BaseOptions) {
			o.Name = "Chat"
			o.Description = "General purpose conversational engine"
			o.Logger = opts.Logger
			o.ActionTimeout = opts.ActionTimeout
		}),
		llm:             llm,
		instruction:     opts.Instruction,
		maxHistory:      opts.MaxHistoryMessages,
		enableStreaming: opts.EnableStreaming,
	}
	a.Handle(core.DefaultAction, a.chat)
	return a
}

// History returns the retained conversation.
func (a *ChatAgent) History() []model.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Message(nil), a.history...)
}

// HandleAlso routes an extra action to the chat handler.
func (a *ChatAgent) HandleAlso(action string) { a.Handle(action, a.chat) }

func (a *ChatAgent) chat(ctx context.Context, cmd core.ExecuteCommand) (Result, error) {
	// Fallback decisions carry a ready-made apology instead of user text.
	if msg := stringParam(cmd.Parameters, "message"); msg != "" && stringParam(cmd.Parameters, "text") == "" {
		return Result{Output: msg, Data: map[string]any{"fallback": true}}, nil
	}

	prompt := strings.TrimSpace(stringParam(cmd.Parameters, "text"))
	if prompt == "" {
		return Result{}, fmt.Errorf("chat: empty prompt: %w", core.ErrInvalidInput)
	}

	instructions, err := a.instruction.Resolve(ctx, cmd)
	if err != nil {
		return Result{}, fmt.Errorf("chat: resolve instruction: %w", err)
	}

	user := model.Message{Role: model.RoleUser, Content: prompt}
	a.mu.Lock()
	messages := append(append([]model.Message(nil), a.history...), user)
	a.mu.Unlock()

	start := time.Now()
	resp, err := model.Collect(ctx, a.llm, model.Request{
		Instructions: instructions,
		Messages:     messages,
		Stream:       a.enableStreaming,
	})
	a.logCall(resp, time.Since(start), err)
	if err != nil {
		return Result{}, fmt.Errorf("chat: generate: %w", err)
	}

	a.remember(user, model.Message{Role: model.RoleAssistant, Content: resp.Text})

	data := map[string]any{"model": a.llm.Info().Name, "finish_reason": resp.FinishReason}
	if resp.Usage != nil {
		data["total_tokens"] = resp.Usage.TotalTokens
	}
	return Result{Output: resp.Text, Data: data}, nil
}

func (a *ChatAgent) remember(msgs ...model.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, msgs...)
	if over := len(a.history) - a.maxHistory; a.maxHistory > 0 && over > 0 {
		a.history = append([]model.Message(nil), a.history[over:]...)
	}
}

type llmLogger interface {
	LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error)
}

func (a *ChatAgent) logCall(resp model.Response, dur time.Duration, err error) {
	l, ok := a.log.Logger().(llmLogger)
	if !ok {
		return
	}
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	l.LogLLMCall(a.llm.Info().Name, tokens, dur, err == nil, err)
}
