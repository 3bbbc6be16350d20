package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/dragonchat/pkg/models"
)

// RuntimeContext is the per-turn container for assistant configuration and
// derived tool state. It is scoped to one turn and rebuilt rather than
// pooled; no locking is needed across turns.
type RuntimeContext struct {
	// SystemPrompt is the assistant-configured base prompt, if any.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Tools are the webhook tool configurations for this turn, in order.
	Tools []models.ToolConfig `json:"tools,omitempty"`

	// DynamicTools is the derived cache of compiled tools, keyed by
	// canonical name. Populated by the middleware before the model call
	// and consulted again during tool execution.
	DynamicTools map[string]models.Tool `json:"-"`

	// Metadata carries turn metadata (user identity, assistant flags).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewRuntimeContext returns an empty runtime context.
func NewRuntimeContext() *RuntimeContext {
	return &RuntimeContext{
		DynamicTools: map[string]models.Tool{},
		Metadata:     map[string]any{},
	}
}

// ContextFromAny coerces the runtime representations seen at the system
// boundary into a RuntimeContext. Callers pass whatever the host runtime
// attached to the turn: an existing *RuntimeContext passes through, a plain
// JSON-shaped map is structurally coerced once, and anything else yields a
// fresh empty context. After this single adapter, no component branches on
// representation again.
func ContextFromAny(v any) *RuntimeContext {
	switch c := v.(type) {
	case *RuntimeContext:
		if c == nil {
			return NewRuntimeContext()
		}
		if c.DynamicTools == nil {
			c.DynamicTools = map[string]models.Tool{}
		}
		return c
	case map[string]any:
		rc := NewRuntimeContext()
		if s, ok := c["system_prompt"].(string); ok {
			rc.SystemPrompt = s
		}
		if meta, ok := c["metadata"].(map[string]any); ok {
			rc.Metadata = meta
		}
		if rawTools, ok := c["tools"]; ok {
			// Round-trip through JSON: tool configs arrive as loose maps.
			if payload, err := json.Marshal(rawTools); err == nil {
				var tools []models.ToolConfig
				if err := json.Unmarshal(payload, &tools); err == nil {
					rc.Tools = tools
				}
			}
		}
		return rc
	default:
		return NewRuntimeContext()
	}
}

// HasKnowledgeBase reports whether turn metadata marks the assistant as
// having an attached knowledge base.
func (c *RuntimeContext) HasKnowledgeBase() bool {
	v, _ := c.Metadata["has_knowledge_base"].(bool)
	return v
}

// AssistantID resolves the identifier used for knowledge namespacing:
// metadata's external_assistant_id first, then the locally assigned id.
func (c *RuntimeContext) AssistantID(localID string) string {
	if id, ok := c.Metadata["external_assistant_id"].(string); ok && id != "" {
		return id
	}
	return localID
}

type assistantIDKey struct{}

// WithAssistantID stores the resolved assistant id in the context for
// knowledge tools executed downstream.
func WithAssistantID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, assistantIDKey{}, id)
}

// AssistantIDFromContext retrieves the assistant id stored by
// WithAssistantID, or "".
func AssistantIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(assistantIDKey{}).(string)
	return id
}
