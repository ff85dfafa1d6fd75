package cognitive

import (
	"maps"
	"sort"
	"sync"

	"github.com/hupe1980/rare/core"
)

// DecisionTemplate is the routing target for an intent type.
type DecisionTemplate struct {
	Agent      string
	Action     string
	Priority   core.Priority
	Parameters map[string]any
}

func (t DecisionTemplate) clone() DecisionTemplate {
	t.Parameters = maps.Clone(t.Parameters)
	return t
}

// DefaultTemplate routes unknown intents to the general purpose engine.
func DefaultTemplate() DecisionTemplate {
	return DecisionTemplate{Agent: core.DefaultAgent, Action: core.DefaultAction, Priority: core.PriorityMedium}
}

// DecisionRegistry maps intent types to decision templates. It is safe for
// concurrent use, so routes may be added while the loop is running.
type DecisionRegistry struct {
	mu        sync.RWMutex
	templates map[string]DecisionTemplate
	fallback  DecisionTemplate
}

// NewDecisionRegistry returns an empty registry whose default is DefaultTemplate.
func NewDecisionRegistry() *DecisionRegistry {
	return &DecisionRegistry{
		templates: make(map[string]DecisionTemplate),
		fallback:  DefaultTemplate(),
	}
}

// DefaultDecisionRegistry returns a registry with the built-in routing table.
func DefaultDecisionRegistry() *DecisionRegistry {
	r := NewDecisionRegistry()
	r.Register(core.IntentBuildApp, DecisionTemplate{Agent: "builder", Action: "build_app", Priority: core.PriorityHigh})
	r.Register(core.IntentVaultAccess, DecisionTemplate{Agent: "vault", Action: "vault_access", Priority: core.PriorityCritical})
	r.Register(core.IntentFileOperation, DecisionTemplate{Agent: "filing", Action: "file_operation", Priority: core.PriorityMedium})
	r.Register(core.IntentVoiceCommand, DecisionTemplate{Agent: "voice", Action: "voice_command", Priority: core.PriorityHigh})
	r.Register(core.IntentWeather, DecisionTemplate{Agent: "weather", Action: "get_weather", Priority: core.PriorityLow})
	r.Register(core.IntentMaps, DecisionTemplate{Agent: "maps", Action: "navigate", Priority: core.PriorityMedium})
	r.Register(core.IntentPayment, DecisionTemplate{Agent: "payments", Action: "process_payment", Priority: core.PriorityHigh})
	r.Register(core.IntentOCR, DecisionTemplate{Agent: "ocr", Action: "extract_text", Priority: core.PriorityMedium})
	r.Register(core.IntentTranslate, DecisionTemplate{Agent: "translator", Action: "translate", Priority: core.PriorityMedium})
	return r
}

// Register sets the template for intentType, replacing any previous one.
func (r *DecisionRegistry) Register(intentType string, t DecisionTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[intentType] = t.clone()
}

// Unregister removes the template for intentType.
func (r *DecisionRegistry) Unregister(intentType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.templates, intentType)
}

// SetDefault replaces the template used for unknown intents.
func (r *DecisionRegistry) SetDefault(t DecisionTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = t.clone()
}

// Default returns the template used for unknown intents.
func (r *DecisionRegistry) Default() DecisionTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback.clone()
}

// Lookup returns the template registered for intentType.
func (r *DecisionRegistry) Lookup(intentType string) (DecisionTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[intentType]
	return t.clone(), ok
}

// Resolve returns the template for intentType or the default.
func (r *DecisionRegistry) Resolve(intentType string) DecisionTemplate {
	if t, ok := r.Lookup(intentType); ok {
		return t
	}
	return r.Default()
}

// Intents lists the registered intent types in lexical order.
func (r *DecisionRegistry) Intents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.templates))
	for k := range r.templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
