package knowledge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/dragonchat/internal/agent"
	"github.com/haasonsaas/dragonchat/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func assistantCtx(id string) context.Context {
	return agent.WithAssistantID(context.Background(), id)
}

func TestStoreAndSearchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := assistantCtx("asst-1")

	storeTool := NewStoreTool(s)
	out, err := storeTool.Execute(ctx, json.RawMessage(`{"title":"Dragon diet","content":"Dragons eat mostly sheep and the occasional knight."}`))
	if err != nil {
		t.Fatalf("store Execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("store result = %q", out.Content)
	}
	if !strings.Contains(out.Content, "Dragon diet") {
		t.Fatalf("confirmation missing title: %q", out.Content)
	}

	searchTool := NewSearchTool(s)
	out, err = searchTool.Execute(ctx, json.RawMessage(`{"query":"sheep"}`))
	if err != nil {
		t.Fatalf("search Execute: %v", err)
	}
	if !strings.Contains(out.Content, "**1. Dragon diet**") {
		t.Fatalf("result = %q", out.Content)
	}
	if !strings.Contains(out.Content, "_Stored: ") {
		t.Fatalf("missing timestamp line: %q", out.Content)
	}
}

func TestSearchNamespaceIsolation(t *testing.T) {
	s := newTestStore(t)

	storeTool := NewStoreTool(s)
	if _, err := storeTool.Execute(assistantCtx("asst-1"),
		json.RawMessage(`{"title":"Secret","content":"asst-1 only"}`)); err != nil {
		t.Fatalf("store Execute: %v", err)
	}

	out, err := NewSearchTool(s).Execute(assistantCtx("asst-2"), json.RawMessage(`{"query":"Secret"}`))
	if err != nil {
		t.Fatalf("search Execute: %v", err)
	}
	if !strings.Contains(out.Content, "No relevant information found") {
		t.Fatalf("asst-2 saw asst-1 knowledge: %q", out.Content)
	}
}

func TestSearchNoResults(t *testing.T) {
	out, err := NewSearchTool(newTestStore(t)).Execute(assistantCtx("asst-1"), json.RawMessage(`{"query":"anything"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.IsError {
		t.Fatal("empty search must not be an error")
	}
	if !strings.Contains(out.Content, "store_knowledge") {
		t.Fatalf("result = %q", out.Content)
	}
}

func TestMissingAssistantID(t *testing.T) {
	s := newTestStore(t)

	out, err := NewSearchTool(s).Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.IsError || !strings.Contains(out.Content, "assistant not identified") {
		t.Fatalf("out = %+v", out)
	}

	out, err = NewStoreTool(s).Execute(context.Background(), json.RawMessage(`{"title":"t","content":"c"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.IsError {
		t.Fatalf("out = %+v", out)
	}
}

func TestEntryKeyStable(t *testing.T) {
	longContent := strings.Repeat("a", 60)

	k1 := EntryKey("title", longContent)
	k2 := EntryKey("title", longContent+"ignored tail beyond fifty chars")
	if k1 != k2 {
		t.Fatal("key must depend only on the first 50 content bytes")
	}
	if k1 == EntryKey("other", longContent) {
		t.Fatal("key must depend on the title")
	}
	if len(k1) != 32 {
		t.Fatalf("key length = %d, want 32 hex chars", len(k1))
	}
}

func TestStoreOverwritesSameEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := assistantCtx("asst-1")
	storeTool := NewStoreTool(s)
	storeTool.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	payload := json.RawMessage(`{"title":"Policy","content":"v1"}`)
	if _, err := storeTool.Execute(ctx, payload); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := storeTool.Execute(ctx, payload); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	items, err := s.Search(context.Background(), Namespace("asst-1"), "", 20, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 (same key overwrites)", len(items))
	}
}

func TestSchemasAreObjects(t *testing.T) {
	for _, tool := range []interface{ Schema() json.RawMessage }{
		NewSearchTool(nil), NewStoreTool(nil),
	} {
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			t.Fatalf("schema is not JSON: %v", err)
		}
		if schema["type"] != "object" {
			t.Fatalf("schema type = %v", schema["type"])
		}
		if _, ok := schema["properties"].(map[string]any); !ok {
			t.Fatalf("schema missing properties: %v", schema)
		}
	}
}
