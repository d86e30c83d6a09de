package ai

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is returned when a response does not match its schema.
var ErrSchemaViolation = errors.New("response does not match schema")

// Schema is a named JSON schema used to constrain a structured response.
type Schema struct {
	Name       string
	Definition map[string]any
}

// Validate checks raw JSON against the schema definition.
func (s *Schema) Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(s.Definition),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, s.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s: %s", ErrSchemaViolation, s.Name, strings.Join(msgs, "; "))
	}
	return nil
}

// StringArraySchema describes a JSON array of strings.
func StringArraySchema(name string) *Schema {
	return &Schema{
		Name: name,
		Definition: map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	}
}

// ObjectSchema describes a JSON object whose listed properties are all
// required.
func ObjectSchema(name string, properties map[string]any) *Schema {
	required := make([]string, 0, len(properties))
	for k := range properties {
		required = append(required, k)
	}
	slices.Sort(required)
	return &Schema{
		Name: name,
		Definition: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}
