package agent

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/dragonchat/pkg/models"
)

// toolSpec converts a compiled tool to the provider-facing function spec.
// The spec name is always the tool's canonical name, never the raw
// configured one; a raw name that needed sanitizing would be rejected by
// the provider.
func toolSpec(tool models.Tool) openai.Tool {
	var params map[string]any
	if err := json.Unmarshal(tool.Schema(), &params); err != nil || params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  params,
		},
	}
}

// ToolSpecs converts registry tools for exposure to the model alongside the
// dynamic specs.
func ToolSpecs(tools []models.Tool) []openai.Tool {
	specs := make([]openai.Tool, len(tools))
	for i, t := range tools {
		specs[i] = toolSpec(t)
	}
	return specs
}
