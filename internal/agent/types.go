// Package agent implements the request-shaping middleware that sits between
// a conversational turn and the model provider: it builds dynamic tools from
// runtime configuration, repairs and bounds the conversation history,
// composes the system prompt, resolves tool-choice policy, and routes tool
// invocations.
package agent

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/dragonchat/pkg/models"
)

// ModelRequest is the turn-scoped request forwarded to the model provider.
// It is an immutable-update value: WithOverrides returns a copy with
// replaced fields and never mutates the original, which keeps ordering
// guarantees predictable under concurrent turns.
type ModelRequest struct {
	// Messages is the conversation state for this turn.
	Messages []models.Message

	// SystemPrompt is the composed system prompt for this turn.
	SystemPrompt string

	// Tools are the provider-facing tool specs proposed for this call.
	Tools []openai.Tool

	// ToolChoice is either a string mode ("auto", "none") or an
	// openai.ToolChoice forcing a specific function. Nil means unset.
	ToolChoice any

	// Context is the turn's runtime context. May be nil on entry; the
	// middleware ensures one exists.
	Context *RuntimeContext

	// Config is the provider configuration attached to the turn. A
	// "system_prompt" entry here takes priority over the context's.
	Config map[string]any

	// Model optionally overrides the provider's default model.
	Model string
}

// Overrides holds replacement fields for WithOverrides. Nil slices and nil
// pointers leave the corresponding field untouched.
type Overrides struct {
	Messages     []models.Message
	Tools        []openai.Tool
	ToolChoice   any
	SystemPrompt *string
}

// WithOverrides returns a copy of the request with the given fields
// replaced.
func (r ModelRequest) WithOverrides(o Overrides) ModelRequest {
	out := r
	if o.Messages != nil {
		out.Messages = o.Messages
	}
	if o.Tools != nil {
		out.Tools = o.Tools
	}
	if o.ToolChoice != nil {
		out.ToolChoice = o.ToolChoice
	}
	if o.SystemPrompt != nil {
		out.SystemPrompt = *o.SystemPrompt
	}
	return out
}

// ModelHandler forwards an enriched request to the model provider.
type ModelHandler func(ctx context.Context, req ModelRequest) (*models.ModelResponse, error)

// ToolCallRequest carries one tool call to be executed for a turn.
type ToolCallRequest struct {
	Call    models.ToolCall
	Context *RuntimeContext
}

// ToolHandler executes a tool call against statically registered tools.
// It returns ErrToolNotFound when no registered tool matches.
type ToolHandler func(ctx context.Context, req ToolCallRequest) (models.Message, error)
