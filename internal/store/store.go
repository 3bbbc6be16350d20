// Package store provides the namespaced key-value store backing the
// knowledge base and the store API. Items live under a hierarchical
// namespace (for example ["knowledge", assistantID]) and carry a JSON
// object value.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when no item exists for a (namespace, key) pair.
var ErrNotFound = errors.New("item not found")

// Item is one stored entry.
type Item struct {
	Namespace []string       `json:"namespace"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store is the persistence contract. Search matches query text against item
// values under the namespace prefix, newest first; an empty query matches
// everything under the prefix.
type Store interface {
	Put(ctx context.Context, namespace []string, key string, value map[string]any) error
	Get(ctx context.Context, namespace []string, key string) (*Item, error)
	Delete(ctx context.Context, namespace []string, key string) error
	Search(ctx context.Context, namespacePrefix []string, query string, limit, offset int) ([]Item, error)
}

// ScopeNamespace applies per-user namespace scoping: every namespace is
// prefixed with ["users", userID] unless the caller already supplied that
// exact prefix. An empty namespace resolves to the user's root namespace.
// Scoping is what isolates one user's items from another's.
func ScopeNamespace(userID string, namespace []string) []string {
	if len(namespace) == 0 {
		return []string{"users", userID}
	}
	if len(namespace) >= 2 && namespace[0] == "users" && namespace[1] == userID {
		return namespace
	}
	return append([]string{"users", userID}, namespace...)
}

// CleanValue strips invalid UTF-8 from every string in a JSON-shaped value.
// Stored values must round-trip through strict JSON encoders.
func CleanValue(v any) any {
	switch val := v.(type) {
	case string:
		return strings.ToValidUTF8(val, "")
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[strings.ToValidUTF8(k, "")] = CleanValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CleanValue(item)
		}
		return out
	default:
		return v
	}
}

// CleanObject applies CleanValue to a JSON object value.
func CleanObject(value map[string]any) map[string]any {
	cleaned, _ := CleanValue(value).(map[string]any)
	return cleaned
}
