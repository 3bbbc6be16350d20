package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/dragonchat/internal/observability"
	"github.com/haasonsaas/dragonchat/internal/tools/webhook"
	"github.com/haasonsaas/dragonchat/pkg/models"
)

// MiddlewareConfig configures the request/response middleware.
type MiddlewareConfig struct {
	// MaxMessages bounds the conversation window. Default: 20.
	MaxMessages int

	// AssistantID is the locally assigned assistant identifier, used for
	// knowledge namespacing when the turn metadata carries no external id.
	AssistantID string
}

// Middleware orchestrates each model call and each tool invocation: it
// ensures a runtime context exists, builds dynamic tools from the context's
// tool configs, validates and trims the history, composes the system
// prompt, resolves tool-choice policy, and routes tool execution through
// dynamic tools with static-registry fallback. Registered static tools are
// exposed to the model alongside the dynamic ones; tool-choice forcing
// applies to dynamic tools only.
//
// Per-turn ordering is fixed: tools are built before they are exposed to
// the model, validation precedes trimming, trimming precedes dispatch.
type Middleware struct {
	config   MiddlewareConfig
	builder  *webhook.Builder
	registry *Registry
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    func() time.Time
}

// NewMiddleware creates a middleware. The registry may be nil when no
// static tools exist; logger and metrics may be nil.
func NewMiddleware(cfg MiddlewareConfig, registry *Registry, logger *slog.Logger, metrics *observability.Metrics) *Middleware {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		config:   cfg,
		builder:  &webhook.Builder{Logger: logger, Metrics: metrics},
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		clock:    time.Now,
	}
}

// WrapModelCall enriches req and forwards it to next. Failures building a
// single dynamic tool are logged and skipped; they never abort the turn.
func (m *Middleware) WrapModelCall(ctx context.Context, req ModelRequest, next ModelHandler) (*models.ModelResponse, error) {
	rc := ContextFromAny(req.Context)
	req.Context = rc

	dynamic, specs := m.buildRuntimeTools(rc)
	rc.DynamicTools = dynamic

	messages, repaired := ValidateMessages(req.Messages)
	if repaired {
		m.logger.Warn("history repaired: unmatched tool calls",
			"messages", len(req.Messages), "repaired", len(messages))
	}
	messages, _ = TrimMessages(messages, m.config.MaxMessages)

	prompt := ComposePrompt(rc, req.Config, m.clock(), m.logger)

	tools := append([]openai.Tool{}, req.Tools...)
	if m.registry != nil {
		tools = append(tools, ToolSpecs(m.registry.All())...)
	}
	tools = append(tools, specs...)

	overrides := Overrides{
		Messages:     messages,
		SystemPrompt: &prompt,
	}
	if len(tools) > 0 {
		overrides.Tools = tools
	}
	if len(specs) > 0 {
		overrides.ToolChoice = m.resolveToolChoice(messages, specs, req.ToolChoice)
	}
	req = req.WithOverrides(overrides)

	resp, err := next(ctx, req)
	if m.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.metrics.TurnCounter.WithLabelValues(status).Inc()
	}
	return resp, err
}

// buildRuntimeTools compiles every tool config in the context. A failing
// config is skipped with a warning. Canonical names are unique within the
// turn; a duplicate after sanitization is skipped, first config wins.
func (m *Middleware) buildRuntimeTools(rc *RuntimeContext) (map[string]models.Tool, []openai.Tool) {
	dynamic := make(map[string]models.Tool, len(rc.Tools))
	specs := make([]openai.Tool, 0, len(rc.Tools))

	for _, cfg := range rc.Tools {
		tool, err := m.builder.Build(cfg)
		if err != nil {
			m.logger.Warn("failed to build dynamic tool", "tool", cfg.Name, "error", err)
			continue
		}
		if _, exists := dynamic[tool.Name()]; exists {
			m.logger.Warn("duplicate dynamic tool name after sanitization, skipping",
				"tool", tool.Name(), "raw_name", cfg.Name)
			continue
		}
		dynamic[tool.Name()] = tool
		specs = append(specs, toolSpec(tool))
	}
	return dynamic, specs
}

// resolveToolChoice decides the tool_choice for this call. When none of the
// dynamic tools has produced a result in the visible history, the model is
// forced to call one: by name when exactly one dynamic tool exists, by
// automatic selection otherwise (forcing an arbitrary pick among several is
// unsafe). Once a dynamic tool-result is present, the caller's original
// choice stands, defaulting to automatic.
func (m *Middleware) resolveToolChoice(messages []models.Message, specs []openai.Tool, original any) any {
	if len(specs) == 0 {
		return original
	}

	names := make(map[string]bool, len(specs))
	for _, s := range specs {
		names[s.Function.Name] = true
	}

	satisfied := false
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role == models.RoleTool && names[msg.Name] {
			satisfied = true
			break
		}
	}

	if !satisfied {
		if len(specs) == 1 {
			return openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: specs[0].Function.Name},
			}
		}
		return "auto"
	}
	if original != nil {
		return original
	}
	return "auto"
}

// WrapToolCall executes one tool call, preferring the turn's dynamic tools,
// rebuilding the dynamic map from configs when it is empty (context may be
// lost between the model call and tool execution), then falling back to the
// static handler. It always returns a tool-result message; no failure here
// propagates to the caller.
func (m *Middleware) WrapToolCall(ctx context.Context, req ToolCallRequest, next ToolHandler) models.Message {
	rc := ContextFromAny(req.Context)
	req.Context = rc
	call := req.Call

	ctx = WithAssistantID(ctx, rc.AssistantID(m.config.AssistantID))

	tool, ok := rc.DynamicTools[call.Name]
	if !ok && len(rc.DynamicTools) == 0 && len(rc.Tools) > 0 {
		rebuilt, _ := m.buildRuntimeTools(rc)
		rc.DynamicTools = rebuilt
		tool, ok = rebuilt[call.Name]
	}

	if !ok {
		if next == nil && m.registry != nil {
			next = m.registry.Handler()
		}
		if next != nil {
			msg, err := next(ctx, req)
			if err == nil {
				return msg
			}
			m.logger.Error("tool not found",
				"tool", call.Name,
				"dynamic_tools", dynamicToolNames(rc),
				"error", err)
		}
		return models.ErrorToolMessage(call.ID, call.Name, fmt.Sprintf(
			"Error: Tool %q is not available. The tool may not be configured correctly.", call.Name))
	}

	out, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		m.logger.Warn("dynamic tool failed", "tool", call.Name, "error", err)
		return models.ErrorToolMessage(call.ID, call.Name, err.Error())
	}
	status := models.StatusOK
	if out.IsError {
		status = models.StatusError
	}
	return models.Message{
		Role:       models.RoleTool,
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    out.Content,
		Status:     status,
	}
}

func dynamicToolNames(rc *RuntimeContext) []string {
	names := make([]string, 0, len(rc.DynamicTools))
	for name := range rc.DynamicTools {
		names = append(names, name)
	}
	return names
}
