package ai_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/muse/internal/ai"
)

func TestSchema_Validate(t *testing.T) {
	mcq := ai.ObjectSchema("mcq", map[string]any{
		"question":      map[string]any{"type": "string"},
		"options":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"correctAnswer": map[string]any{"type": "string"},
	})

	tests := []struct {
		name    string
		schema  *ai.Schema
		data    string
		wantErr bool
	}{
		{"string array", ai.StringArraySchema("topics"), `["a","b"]`, false},
		{"empty array", ai.StringArraySchema("topics"), `[]`, false},
		{"array of numbers", ai.StringArraySchema("topics"), `[1,2]`, true},
		{"object instead of array", ai.StringArraySchema("topics"), `{"topics":[]}`, true},
		{"not json", ai.StringArraySchema("topics"), `Sure! Here are topics`, true},
		{"complete object", mcq, `{"question":"q","options":["a"],"correctAnswer":"a"}`, false},
		{"missing field", mcq, `{"question":"q","options":["a"]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ai.ErrSchemaViolation) {
				t.Errorf("Validate() error = %v, want ErrSchemaViolation", err)
			}
		})
	}
}
