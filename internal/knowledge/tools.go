// Package knowledge provides the assistant-scoped knowledge base tools.
// Entries live in the store under the ("knowledge", assistantID) namespace,
// so two assistants never see each other's knowledge.
package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/haasonsaas/dragonchat/internal/agent"
	"github.com/haasonsaas/dragonchat/internal/store"
	"github.com/haasonsaas/dragonchat/pkg/models"
)

// SearchToolName is the name the system prompt instructs the model to call.
const SearchToolName = "search_knowledge_base"

// StoreToolName persists new knowledge entries.
const StoreToolName = "store_knowledge"

const (
	searchLimit    = 5
	contentPreview = 500
)

// Store is the subset of store operations the knowledge tools need.
type Store interface {
	Put(ctx context.Context, namespace []string, key string, value map[string]any) error
	Search(ctx context.Context, namespacePrefix []string, query string, limit, offset int) ([]store.Item, error)
}

// Namespace returns the store namespace for an assistant's knowledge.
func Namespace(assistantID string) []string {
	return []string{"knowledge", assistantID}
}

// EntryKey derives the stable key for a knowledge entry from its title and
// the head of its content, so re-storing the same entry overwrites instead
// of duplicating.
func EntryKey(title, content string) string {
	head := content
	if len(head) > 50 {
		head = head[:50]
	}
	sum := md5.Sum([]byte(title + "_" + head))
	return hex.EncodeToString(sum[:])
}

type searchInput struct {
	Query string `json:"query" jsonschema:"required,description=Natural language search query"`
}

type storeInput struct {
	Title   string `json:"title" jsonschema:"required,description=Descriptive title for the knowledge entry"`
	Content string `json:"content" jsonschema:"required,description=Full content to store"`
}

// SearchTool implements models.Tool over the knowledge store.
type SearchTool struct {
	store Store
}

// NewSearchTool creates the knowledge search tool.
func NewSearchTool(s Store) *SearchTool {
	return &SearchTool{store: s}
}

func (t *SearchTool) Name() string { return SearchToolName }

func (t *SearchTool) Description() string {
	return "Search the assistant-specific knowledge base for previously stored information. " +
		"Use this before answering questions about products, services, policies, or procedures."
}

func (t *SearchTool) Schema() json.RawMessage {
	return reflectSchema(&searchInput{})
}

// Execute searches the assistant's namespace. All outcomes are returned as
// text for the model; only a store failure is an error.
func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolOutput, error) {
	var in searchInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &models.ToolOutput{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}

	assistantID := agent.AssistantIDFromContext(ctx)
	if assistantID == "" {
		return &models.ToolOutput{
			Content: "Error: assistant not identified. Check that the system is configured correctly.",
			IsError: true,
		}, nil
	}

	results, err := t.store.Search(ctx, Namespace(assistantID), in.Query, searchLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	if len(results) == 0 {
		return &models.ToolOutput{
			Content: "No relevant information found in the knowledge base. " +
				"You can provide information to store using store_knowledge.",
		}, nil
	}

	formatted := make([]string, len(results))
	for i, result := range results {
		title, _ := result.Value["title"].(string)
		if title == "" {
			title = "Untitled"
		}
		content, _ := result.Value["content"].(string)
		if content == "" {
			raw, _ := json.Marshal(result.Value)
			content = string(raw)
		}
		if len(content) > contentPreview {
			content = content[:contentPreview] + "..."
		}
		timestamp, _ := result.Value["timestamp"].(string)

		formatted[i] = fmt.Sprintf("**%d. %s**\n%s\n_Stored: %s_", i+1, title, content, timestamp)
	}
	return &models.ToolOutput{Content: strings.Join(formatted, "\n\n")}, nil
}

// StoreTool implements models.Tool for persisting knowledge entries.
type StoreTool struct {
	store Store
	clock func() time.Time
}

// NewStoreTool creates the knowledge store tool.
func NewStoreTool(s Store) *StoreTool {
	return &StoreTool{store: s, clock: time.Now}
}

func (t *StoreTool) Name() string { return StoreToolName }

func (t *StoreTool) Description() string {
	return "Store important information in the assistant-specific knowledge base for future retrieval."
}

func (t *StoreTool) Schema() json.RawMessage {
	return reflectSchema(&storeInput{})
}

func (t *StoreTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolOutput, error) {
	var in storeInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &models.ToolOutput{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}

	assistantID := agent.AssistantIDFromContext(ctx)
	if assistantID == "" {
		return &models.ToolOutput{
			Content: "Error: assistant not identified. Cannot store the knowledge.",
			IsError: true,
		}, nil
	}

	key := EntryKey(in.Title, in.Content)
	err := t.store.Put(ctx, Namespace(assistantID), key, map[string]any{
		"title":     in.Title,
		"content":   in.Content,
		"timestamp": t.clock().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: %w", err)
	}

	return &models.ToolOutput{
		Content: fmt.Sprintf(
			"Knowledge stored successfully:\n- Title: %s\n- ID: %s\n\nYou can retrieve it later with search_knowledge_base.",
			in.Title, key,
		),
	}, nil
}

func reflectSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(v)
	schema.Version = ""
	out, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return out
}
