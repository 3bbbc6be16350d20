package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// namespaceSeparator joins namespace parts into the stored path. Parts never
// contain it; PutRequest validation rejects them.
const namespaceSeparator = "/"

const schema = `
CREATE TABLE IF NOT EXISTS store_items (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_store_items_namespace ON store_items(namespace);
`

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store database at path. Use
// ":memory:" for an in-memory store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}
	// SQLite allows one writer; serialize access through a single conn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func joinNamespace(namespace []string) string {
	return strings.Join(namespace, namespaceSeparator)
}

func splitNamespace(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, namespaceSeparator)
}

// Put inserts or replaces an item. The value's strings are cleaned of
// invalid UTF-8 before encoding.
func (s *SQLiteStore) Put(ctx context.Context, namespace []string, key string, value map[string]any) error {
	encoded, err := json.Marshal(CleanObject(value))
	if err != nil {
		return fmt.Errorf("encode store value: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO store_items (namespace, key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		joinNamespace(namespace), key, string(encoded), now, now)
	if err != nil {
		return fmt.Errorf("put store item: %w", err)
	}
	return nil
}

// Get returns the item for (namespace, key), or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, namespace []string, key string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT value, created_at, updated_at FROM store_items
		WHERE namespace = ? AND key = ?`,
		joinNamespace(namespace), key)

	var encoded string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&encoded, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get store item: %w", err)
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(encoded), &value); err != nil {
		return nil, fmt.Errorf("decode store value: %w", err)
	}
	return &Item{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// Delete removes the item for (namespace, key). Deleting a missing item is
// not an error.
func (s *SQLiteStore) Delete(ctx context.Context, namespace []string, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM store_items WHERE namespace = ? AND key = ?`,
		joinNamespace(namespace), key)
	if err != nil {
		return fmt.Errorf("delete store item: %w", err)
	}
	return nil
}

// Search returns items under the namespace prefix whose encoded value
// contains query, newest first. An empty query matches everything under the
// prefix.
func (s *SQLiteStore) Search(ctx context.Context, namespacePrefix []string, query string, limit, offset int) ([]Item, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	prefix := joinNamespace(namespacePrefix)
	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace, key, value, created_at, updated_at FROM store_items
		WHERE (namespace = ? OR namespace LIKE ? ESCAPE '\')
		  AND value LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, key
		LIMIT ? OFFSET ?`,
		prefix,
		escapeLike(prefix)+namespaceSeparator+"%",
		"%"+escapeLike(query)+"%",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search store items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var joined, encoded string
		var item Item
		if err := rows.Scan(&joined, &item.Key, &encoded, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan store item: %w", err)
		}
		item.Namespace = splitNamespace(joined)
		if err := json.Unmarshal([]byte(encoded), &item.Value); err != nil {
			return nil, fmt.Errorf("decode store value: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
