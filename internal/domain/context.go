package domain

import "time"

// InvocationContext is the mutable state shared by all steps of one chain
// execution: conversation identifiers plus arbitrary values prior steps leave
// for later ones. It is created fresh per top-level invocation and threaded
// by reference through every step; chain execution is sequential, so no
// locking is needed; it must never be mutated concurrently.
type InvocationContext struct {
	InvocationID   string
	ConversationID string
	Channel        string
	StartedAt      time.Time

	values map[string]any
}

func NewInvocationContext(invocationID, conversationID, channel string) *InvocationContext {
	return &InvocationContext{
		InvocationID:   invocationID,
		ConversationID: conversationID,
		Channel:        channel,
		StartedAt:      time.Now(),
		values:         make(map[string]any),
	}
}

// Set stores a value for later steps of the same invocation.
func (ic *InvocationContext) Set(key string, v any) {
	if ic.values == nil {
		ic.values = make(map[string]any)
	}
	ic.values[key] = v
}

func (ic *InvocationContext) Get(key string) (any, bool) {
	v, ok := ic.values[key]
	return v, ok
}

// GetString returns the value for key as a string, or "" when absent or not
// a string.
func (ic *InvocationContext) GetString(key string) string {
	if v, ok := ic.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
