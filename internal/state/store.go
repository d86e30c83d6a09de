package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Storage key prefixes; the learner id is appended after a colon.
const (
	StateKey = "museAppState_v2"
	ThemeKey = "theme"
)

// Theme is the learner's colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(s)) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// stateShape is the minimum structure a persisted state must have to be
// trusted.
var stateShape = gojsonschema.NewGoLoader(map[string]any{
	"type":     "object",
	"required": []string{"content", "activeView"},
	"properties": map[string]any{
		"subject":          map[string]any{"type": []string{"string", "null"}},
		"standard":         map[string]any{"type": []string{"string", "null"}},
		"isCourseSelected": map[string]any{"type": "boolean"},
		"selectedChapter":  map[string]any{"type": []string{"string", "null"}},
		"selectedTopic":    map[string]any{"type": []string{"string", "null"}},
		"topics": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"content": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "object"},
		},
		"activeView": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "object"},
		},
		"noMoreTopics": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "boolean"},
		},
	},
})

// Store persists one learner's state and theme. Saves are best-effort: a
// failed write clears the entry and the in-memory state carries on.
type Store struct {
	storage Storage
	learner string
}

// NewStore creates a store for a learner.
func NewStore(storage Storage, learner string) *Store {
	return &Store{storage: storage, learner: learner}
}

func (s *Store) stateKey() string { return StateKey + ":" + s.learner }
func (s *Store) themeKey() string { return ThemeKey + ":" + s.learner }

// Load returns the persisted state, or Default when it is missing or fails
// validation. Corrupted entries are deleted. Artifacts persisted mid-request
// come back Idle.
func (s *Store) Load(ctx context.Context) State {
	data, err := s.storage.Get(ctx, s.stateKey())
	if errors.Is(err, ErrNotFound) {
		return Default()
	}
	if err != nil {
		slog.Warn("failed to read persisted state", "learner", s.learner, "error", err)
		return Default()
	}

	st, err := decodeState(data)
	if err != nil {
		slog.Warn("discarding corrupted state", "learner", s.learner, "error", err)
		if derr := s.storage.Delete(ctx, s.stateKey()); derr != nil {
			slog.Warn("failed to delete corrupted state", "learner", s.learner, "error", derr)
		}
		return Default()
	}
	return st.Settled()
}

func decodeState(data []byte) (State, error) {
	result, err := gojsonschema.Validate(stateShape, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return State{}, fmt.Errorf("parse: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return State{}, fmt.Errorf("invalid shape: %s", strings.Join(msgs, "; "))
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decode: %w", err)
	}
	return st, nil
}

// Save writes the state without binary payloads. On any write failure the
// persisted entry is removed so that a stale or oversized value never
// survives.
func (s *Store) Save(ctx context.Context, st State) {
	data, err := json.Marshal(st.Stripped())
	if err == nil {
		err = s.storage.Set(ctx, s.stateKey(), data)
	}
	if err == nil {
		return
	}

	if errors.Is(err, ErrQuotaExceeded) {
		slog.Warn("storage quota exceeded, clearing persisted state", "learner", s.learner, "bytes", len(data))
	} else {
		slog.Error("failed to save state", "learner", s.learner, "error", err)
	}
	if derr := s.storage.Delete(ctx, s.stateKey()); derr != nil {
		slog.Warn("failed to clear persisted state", "learner", s.learner, "error", derr)
	}
}

// Clear removes the persisted state. The theme is kept.
func (s *Store) Clear(ctx context.Context) error {
	return s.storage.Delete(ctx, s.stateKey())
}

// LoadTheme returns the stored theme, or the client's preference when none
// was stored.
func (s *Store) LoadTheme(ctx context.Context, prefersDark bool) Theme {
	data, err := s.storage.Get(ctx, s.themeKey())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("failed to read theme", "learner", s.learner, "error", err)
		}
		if prefersDark {
			return ThemeDark
		}
		return ThemeLight
	}
	if Theme(data) == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// SaveTheme persists the theme.
func (s *Store) SaveTheme(ctx context.Context, theme Theme) {
	if err := s.storage.Set(ctx, s.themeKey(), []byte(theme)); err != nil {
		slog.Warn("failed to save theme", "learner", s.learner, "error", err)
	}
}
