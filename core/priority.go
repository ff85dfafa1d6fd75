package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority ranks decisions and notifications. The zero value is PriorityLow.
type Priority int

const (
	// PriorityLow marks background work that may be deferred or paused.
	PriorityLow Priority = iota
	// PriorityMedium is the default for routed work.
	PriorityMedium
	// PriorityHigh marks work that should start its engine when idle.
	PriorityHigh
	// PriorityCritical marks work that always notifies and is never de-escalated.
	PriorityCritical
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority converts a textual priority into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityLow, fmt.Errorf("unknown priority %q", s)
	}
}

// MaxPriority returns the higher of two priorities.
func MaxPriority(a, b Priority) Priority {
	if a > b {
		return a
	}
	return b
}

// MarshalJSON encodes the priority as its string name.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a priority from its string name.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
