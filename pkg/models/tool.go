package models

import (
	"context"
	"encoding/json"
)

// ToolConfig describes a webhook-backed tool supplied by assistant
// configuration. It arrives as untrusted JSON: the name and schema property
// keys may not be valid identifiers, and Timeout may be a scalar, a
// {connect, read} object, or a numeric string.
type ToolConfig struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url"`
	Schema      any               `json:"schema,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Timeout     any               `json:"timeout,omitempty"`
}

// Tool is a callable exposed to the model through function calling.
//
// Name must match the provider identifier pattern ^[A-Za-z0-9_-]{1,64}$.
// Execute never reports transport failures through its error return; those
// are encoded in the output payload so the conversation can continue.
type Tool interface {
	// Name returns the canonical tool name used for function calling.
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON arguments.
	Execute(ctx context.Context, params json.RawMessage) (*ToolOutput, error)
}

// ToolOutput contains the result of one tool execution.
type ToolOutput struct {
	// Content is the tool's output, serialized for the model.
	Content string `json:"content"`

	// IsError indicates the output represents an error condition.
	IsError bool `json:"is_error,omitempty"`
}
