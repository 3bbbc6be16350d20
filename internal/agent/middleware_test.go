package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/dragonchat/pkg/models"
)

func newTestMiddleware(t *testing.T, registry *Registry) *Middleware {
	t.Helper()
	return NewMiddleware(MiddlewareConfig{AssistantID: "asst-local"}, registry, nil, nil)
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "echo": body})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runtimeContextWithTools(url string, names ...string) *RuntimeContext {
	rc := NewRuntimeContext()
	for _, name := range names {
		rc.Tools = append(rc.Tools, models.ToolConfig{
			Name:        name,
			Description: "test tool " + name,
			URL:         url,
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		})
	}
	return rc
}

func captureModelCall(t *testing.T, m *Middleware, req ModelRequest) ModelRequest {
	t.Helper()
	var captured ModelRequest
	_, err := m.WrapModelCall(context.Background(), req, func(ctx context.Context, enriched ModelRequest) (*models.ModelResponse, error) {
		captured = enriched
		return &models.ModelResponse{Message: models.Message{Role: models.RoleAssistant}}, nil
	})
	if err != nil {
		t.Fatalf("WrapModelCall: %v", err)
	}
	return captured
}

func TestWrapModelCallBuildsDynamicTools(t *testing.T) {
	srv := echoServer(t)
	m := newTestMiddleware(t, nil)
	rc := runtimeContextWithTools(srv.URL, "Weather Lookup")

	captured := captureModelCall(t, m, ModelRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Context:  rc,
	})

	if len(captured.Tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(captured.Tools))
	}
	if got := captured.Tools[0].Function.Name; got != "Weather_Lookup" {
		t.Fatalf("spec name = %q, want sanitized Weather_Lookup", got)
	}
	if _, ok := rc.DynamicTools["Weather_Lookup"]; !ok {
		t.Fatal("dynamic tool missing from runtime context")
	}
}

func TestWrapModelCallSkipsFailingConfig(t *testing.T) {
	srv := echoServer(t)
	m := newTestMiddleware(t, nil)

	rc := runtimeContextWithTools(srv.URL, "good_tool")
	rc.Tools = append(rc.Tools, models.ToolConfig{Name: "broken", URL: "ftp://nope"})

	captured := captureModelCall(t, m, ModelRequest{Context: rc})
	if len(captured.Tools) != 1 {
		t.Fatalf("tools = %d, want 1 (failing config skipped)", len(captured.Tools))
	}
	if captured.Tools[0].Function.Name != "good_tool" {
		t.Fatalf("surviving tool = %q", captured.Tools[0].Function.Name)
	}
}

func TestWrapModelCallSkipsDuplicateCanonicalNames(t *testing.T) {
	srv := echoServer(t)
	m := newTestMiddleware(t, nil)

	// Both raw names sanitize to "my_tool"; the first wins.
	rc := runtimeContextWithTools(srv.URL, "my tool", "my-tool")

	captured := captureModelCall(t, m, ModelRequest{Context: rc})
	if len(captured.Tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(captured.Tools))
	}
}

func TestWrapModelCallExposesRegistryTools(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "search_notes"})
	m := newTestMiddleware(t, registry)

	captured := captureModelCall(t, m, ModelRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})

	if len(captured.Tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(captured.Tools))
	}
	if got := captured.Tools[0].Function.Name; got != "search_notes" {
		t.Fatalf("spec name = %q, want search_notes", got)
	}
	// Static tools are offered, never forced.
	if captured.ToolChoice != nil {
		t.Fatalf("tool choice = %v, want nil", captured.ToolChoice)
	}
}

func TestWrapModelCallCombinesStaticAndDynamicSpecs(t *testing.T) {
	srv := echoServer(t)
	registry := NewRegistry()
	registry.Register(&stubTool{name: "search_notes"})
	m := newTestMiddleware(t, registry)
	rc := runtimeContextWithTools(srv.URL, "lookup")

	captured := captureModelCall(t, m, ModelRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Context:  rc,
	})

	names := make(map[string]bool, len(captured.Tools))
	for _, tool := range captured.Tools {
		names[tool.Function.Name] = true
	}
	if !names["search_notes"] || !names["lookup"] {
		t.Fatalf("tool specs = %v, want both search_notes and lookup", names)
	}

	// Forcing still targets the single unsatisfied dynamic tool.
	choice, ok := captured.ToolChoice.(openai.ToolChoice)
	if !ok || choice.Function.Name != "lookup" {
		t.Fatalf("tool choice = %v, want forced lookup", captured.ToolChoice)
	}
}

func TestWrapModelCallForcesSingleUnsatisfiedTool(t *testing.T) {
	srv := echoServer(t)
	m := newTestMiddleware(t, nil)
	rc := runtimeContextWithTools(srv.URL, "lookup")

	captured := captureModelCall(t, m, ModelRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Context:  rc,
	})

	choice, ok := captured.ToolChoice.(openai.ToolChoice)
	if !ok {
		t.Fatalf("tool choice = %T(%v), want openai.ToolChoice", captured.ToolChoice, captured.ToolChoice)
	}
	if choice.Function.Name != "lookup" {
		t.Fatalf("forced tool = %q, want lookup", choice.Function.Name)
	}
}

func TestWrapModelCallMultipleUnsatisfiedToolsAuto(t *testing.T) {
	srv := echoServer(t)
	m := newTestMiddleware(t, nil)
	rc := runtimeContextWithTools(srv.URL, "alpha", "beta")

	captured := captureModelCall(t, m, ModelRequest{Context: rc})
	if got, _ := captured.ToolChoice.(string); got != "auto" {
		t.Fatalf("tool choice = %v, want auto", captured.ToolChoice)
	}
}

func TestWrapModelCallSatisfiedKeepsOriginalChoice(t *testing.T) {
	srv := echoServer(t)
	m := newTestMiddleware(t, nil)
	rc := runtimeContextWithTools(srv.URL, "lookup")

	captured := captureModelCall(t, m, ModelRequest{
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "hi"},
			assistantWithCalls(models.ToolCall{ID: "c1", Name: "lookup"}),
			toolResult("c1", "lookup"),
		},
		ToolChoice: "none",
		Context:    rc,
	})
	if got, _ := captured.ToolChoice.(string); got != "none" {
		t.Fatalf("tool choice = %v, want original none", captured.ToolChoice)
	}
}

func TestWrapModelCallNoDynamicToolsLeavesChoiceUnset(t *testing.T) {
	m := newTestMiddleware(t, nil)

	captured := captureModelCall(t, m, ModelRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if captured.ToolChoice != nil {
		t.Fatalf("tool choice = %v, want nil", captured.ToolChoice)
	}
	if len(captured.Tools) != 0 {
		t.Fatalf("tools = %d, want 0", len(captured.Tools))
	}
}

func TestWrapModelCallRepairsAndTrims(t *testing.T) {
	m := NewMiddleware(MiddlewareConfig{MaxMessages: 5}, nil, nil, nil)

	var messages []models.Message
	for i := 0; i < 8; i++ {
		messages = append(messages, models.Message{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	messages = append(messages, assistantWithCalls(models.ToolCall{ID: "c1", Name: "lookup"}))

	captured := captureModelCall(t, m, ModelRequest{Messages: messages})

	if len(captured.Messages) != 5 {
		t.Fatalf("len = %d, want 5", len(captured.Messages))
	}
	last := captured.Messages[len(captured.Messages)-1]
	if last.Role != models.RoleTool || last.ToolCallID != "c1" {
		t.Fatalf("last = %+v, want synthesized result for c1", last)
	}
}

func TestWrapModelCallComposesPrompt(t *testing.T) {
	m := newTestMiddleware(t, nil)
	rc := NewRuntimeContext()
	rc.SystemPrompt = "You are a dragon."

	captured := captureModelCall(t, m, ModelRequest{Context: rc})
	if !strings.HasPrefix(captured.SystemPrompt, "You are a dragon.") {
		t.Fatalf("system prompt = %q", captured.SystemPrompt)
	}
	if !strings.Contains(captured.SystemPrompt, "Current date and time:") {
		t.Fatal("missing datetime section")
	}
}

func TestWrapToolCallDynamicExecution(t *testing.T) {
	srv := echoServer(t)
	m := newTestMiddleware(t, nil)
	rc := runtimeContextWithTools(srv.URL, "lookup")

	captureModelCall(t, m, ModelRequest{Context: rc})

	msg := m.WrapToolCall(context.Background(), ToolCallRequest{
		Call: models.ToolCall{
			ID:        "c1",
			Name:      "lookup",
			Arguments: json.RawMessage(`{"query":"dragons"}`),
		},
		Context: rc,
	}, nil)

	if msg.Status != models.StatusOK {
		t.Fatalf("status = %q, content = %q", msg.Status, msg.Content)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestWrapToolCallRebuildsFromConfigs(t *testing.T) {
	// Context lost between model call and execution: DynamicTools is empty
	// but configs are present, so the middleware rebuilds.
	srv := echoServer(t)
	m := newTestMiddleware(t, nil)
	rc := runtimeContextWithTools(srv.URL, "lookup")

	msg := m.WrapToolCall(context.Background(), ToolCallRequest{
		Call:    models.ToolCall{ID: "c1", Name: "lookup", Arguments: json.RawMessage(`{}`)},
		Context: rc,
	}, nil)

	if msg.Status != models.StatusOK {
		t.Fatalf("status = %q, content = %q", msg.Status, msg.Content)
	}
}

func TestWrapToolCallStaticFallback(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "static_echo", out: &models.ToolOutput{Content: "from registry"}})
	m := newTestMiddleware(t, registry)

	msg := m.WrapToolCall(context.Background(), ToolCallRequest{
		Call: models.ToolCall{ID: "c1", Name: "static_echo"},
	}, nil)

	if msg.Content != "from registry" {
		t.Fatalf("content = %q, want from registry", msg.Content)
	}
}

func TestWrapToolCallUnknownTool(t *testing.T) {
	m := newTestMiddleware(t, NewRegistry())

	msg := m.WrapToolCall(context.Background(), ToolCallRequest{
		Call: models.ToolCall{ID: "c1", Name: "ghost"},
	}, nil)

	if msg.Status != models.StatusError {
		t.Fatalf("status = %q, want error", msg.Status)
	}
	want := `Error: Tool "ghost" is not available. The tool may not be configured correctly.`
	if msg.Content != want {
		t.Fatalf("content = %q, want %q", msg.Content, want)
	}
	if msg.ToolCallID != "c1" {
		t.Fatalf("ToolCallID = %q, want c1", msg.ToolCallID)
	}
}

func TestWrapToolCallInvalidArguments(t *testing.T) {
	srv := echoServer(t)
	m := newTestMiddleware(t, nil)
	rc := runtimeContextWithTools(srv.URL, "lookup")
	captureModelCall(t, m, ModelRequest{Context: rc})

	msg := m.WrapToolCall(context.Background(), ToolCallRequest{
		Call:    models.ToolCall{ID: "c1", Name: "lookup", Arguments: json.RawMessage(`{"query":42}`)},
		Context: rc,
	}, nil)

	if msg.Status != models.StatusError {
		t.Fatalf("status = %q, want error for mistyped argument", msg.Status)
	}
}
