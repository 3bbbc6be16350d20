// Package argschema compiles JSON-Schema-like property maps from tool
// configurations into argument models.
//
// Property names in assistant-supplied schemas are frequently not valid
// identifiers ("user-id", "1st_choice", "nombre completo"). The compiled
// model derives a safe field identifier for every property while keeping a
// lossless mapping back to the original key: arguments are accepted and
// re-emitted under the original names, because that is what goes over the
// wire to the webhook.
package argschema

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaType is returned when a tool config carries a schema that is not
// an object-shaped mapping.
var ErrSchemaType = errors.New("tool schema must be a JSON object")

// ValueType is the best-effort value type derived from a JSON Schema "type".
type ValueType string

const (
	TypeString ValueType = "string"
	TypeInt    ValueType = "integer"
	TypeFloat  ValueType = "number"
	TypeBool   ValueType = "boolean"
	TypeObject ValueType = "object"
	TypeArray  ValueType = "array"
	TypeAny    ValueType = "any"
)

// Field is one compiled schema property.
type Field struct {
	// Safe is the derived identifier, unique within the model.
	Safe string

	// Alias is the original property name; arguments are keyed by it.
	Alias string

	Type     ValueType
	Required bool
}

// Model validates tool arguments against a compiled schema.
type Model struct {
	fields  []Field
	byAlias map[string]int
	schema  *jsonschema.Schema
}

var (
	invalidIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	validIdent   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	leadingDigit = regexp.MustCompile(`^[0-9]`)
)

// Compile builds an argument model from a JSON-Schema-like value. A nil
// schema compiles to an empty model; anything present but not object-shaped
// fails with ErrSchemaType. Odd property names never fail compilation: the
// worst case is every property mapping to a generated field identifier.
func Compile(schema any) (*Model, error) {
	if schema == nil {
		return &Model{byAlias: map[string]int{}}, nil
	}
	root, ok := schema.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrSchemaType, schema)
	}

	props, _ := root["properties"].(map[string]any)
	required := map[string]bool{}
	if list, ok := root["required"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				required[s] = true
			}
		}
	}

	// Sort for deterministic safe-name disambiguation; Go map iteration
	// order would otherwise make collision suffixes unstable.
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	m := &Model{
		fields:  make([]Field, 0, len(names)),
		byAlias: make(map[string]int, len(names)),
	}
	used := map[string]bool{}
	for _, name := range names {
		field := Field{
			Safe:     safeFieldName(name, used),
			Alias:    name,
			Type:     TypeAny,
			Required: required[name],
		}
		if fs, ok := props[name].(map[string]any); ok {
			field.Type = mapValueType(fs["type"])
		}
		m.byAlias[name] = len(m.fields)
		m.fields = append(m.fields, field)
	}

	// Best effort: a schema that fails to compile as strict JSON Schema
	// degrades to alias mapping and type checks only.
	if raw, err := json.Marshal(root); err == nil {
		if compiled, err := jsonschema.CompileString("tool.schema.json", string(raw)); err == nil {
			m.schema = compiled
		}
	}
	return m, nil
}

// Fields returns the compiled fields in alias order.
func (m *Model) Fields() []Field {
	return m.fields
}

// Materialize validates args and re-emits them keyed by the original
// property names, dropping null-valued optional fields and ignoring unknown
// extra properties. The result is the exact payload sent over the wire.
func (m *Model) Materialize(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m.fields))
	for _, f := range m.fields {
		value, present := args[f.Alias]
		if !present || value == nil {
			if f.Required {
				return nil, fmt.Errorf("missing required property %q", f.Alias)
			}
			continue
		}
		if err := checkType(f, value); err != nil {
			return nil, err
		}
		out[f.Alias] = value
	}

	if m.schema != nil {
		if err := m.schema.Validate(map[string]any(out)); err != nil {
			return nil, fmt.Errorf("arguments do not match tool schema: %w", err)
		}
	}
	return out, nil
}

// MaterializeJSON is Materialize over raw JSON arguments. Empty input is
// treated as an empty argument object.
func (m *Model) MaterializeJSON(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
		}
	}
	return m.Materialize(args)
}

func checkType(f Field, value any) error {
	switch f.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return typeError(f, "string", value)
		}
	case TypeInt:
		switch v := value.(type) {
		case float64:
			if v != float64(int64(v)) {
				return typeError(f, "integer", value)
			}
		case int, int64, json.Number:
		default:
			return typeError(f, "integer", value)
		}
	case TypeFloat:
		switch value.(type) {
		case float64, int, int64, json.Number:
		default:
			return typeError(f, "number", value)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return typeError(f, "boolean", value)
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return typeError(f, "object", value)
		}
	case TypeArray:
		if _, ok := value.([]any); !ok {
			return typeError(f, "array", value)
		}
	}
	return nil
}

func typeError(f Field, want string, got any) error {
	return fmt.Errorf("property %q: expected %s, got %T", f.Alias, want, got)
}

func mapValueType(v any) ValueType {
	s, _ := v.(string)
	switch s {
	case "string":
		return TypeString
	case "integer":
		return TypeInt
	case "number":
		return TypeFloat
	case "boolean":
		return TypeBool
	case "object":
		return TypeObject
	case "array":
		return TypeArray
	default:
		return TypeAny
	}
}

// safeFieldName derives an identifier distinct from all previously derived
// identifiers, recording it in used.
func safeFieldName(name string, used map[string]bool) string {
	candidate := invalidIdent.ReplaceAllString(name, "_")
	if candidate == "" || leadingDigit.MatchString(candidate) {
		candidate = "field_" + candidate
	}
	if !validIdent.MatchString(candidate) {
		candidate = "field"
	}

	base := candidate
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	used[candidate] = true
	return candidate
}

// EmptyObjectSchema is the parameters schema used when a tool config has no
// schema of its own.
func EmptyObjectSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}
