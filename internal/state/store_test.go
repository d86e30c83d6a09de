package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/p-n-ai/muse/internal/curriculum"
	"github.com/p-n-ai/muse/internal/state"
)

func sampleState() state.State {
	s := state.Default().WithCourse("Computer Science", "1st PUC").WithChapter("Functions")
	s = s.AppendTopics("Functions", []string{"What is a function?", "Scope"})
	s = s.WithTopic("What is a function?")

	for _, k := range []state.Kind{state.KindAnswer, state.KindMCQs, state.KindExplanationAudio, state.KindVisualPrompt} {
		s, _ = s.BeginArtifact("Functions", "What is a function?", k)
	}
	s = s.ResolveArtifact("Functions", "What is a function?", state.KindAnswer, state.Result{Text: "A named block."})
	s = s.ResolveArtifact("Functions", "What is a function?", state.KindMCQs, state.Result{MCQs: []curriculum.MCQ{
		{Question: "q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "b"},
	}})
	s = s.ResolveArtifact("Functions", "What is a function?", state.KindExplanationAudio, state.Result{Text: "AAEC"})
	s = s.ResolveArtifact("Functions", "What is a function?", state.KindVisualPrompt, state.Result{Err: errors.New("model overloaded")})
	s = s.WithActiveView("Functions", "What is a function?", state.ViewMCQs)
	return s.MarkNoMoreTopics("Functions")
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore(state.NewMemoryStorage(0), "learner-1")

	in := sampleState()
	store.Save(ctx, in)
	got := store.Load(ctx)

	want := in.Stripped()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	c, _ := got.ContentOf("Functions", "What is a function?")
	if c.ExplanationAudio.Status != state.Idle {
		t.Errorf("audio status = %v, want idle", c.ExplanationAudio.Status)
	}
	if c.Answer.Data != "A named block." {
		t.Errorf("answer = %q", c.Answer.Data)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store := state.NewStore(state.NewMemoryStorage(0), "nobody")
	got := store.Load(context.Background())
	if diff := cmp.Diff(state.Default(), got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LoadCorrupted(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"missing content", `{"subject":"Biology","activeView":{}}`},
		{"missing activeView", `{"content":{}}`},
		{"wrong topic type", `{"content":{},"activeView":{},"topics":{"Functions":"Scope"}}`},
		{"array", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			storage := state.NewMemoryStorage(0)
			if err := storage.Set(ctx, state.StateKey+":l", []byte(tt.data)); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			got := state.NewStore(storage, "l").Load(ctx)
			if diff := cmp.Diff(state.Default(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
			if _, err := storage.Get(ctx, state.StateKey+":l"); !errors.Is(err, state.ErrNotFound) {
				t.Errorf("corrupted entry still present, Get() error = %v", err)
			}
		})
	}
}

func TestStore_LoadSettlesInFlight(t *testing.T) {
	ctx := context.Background()
	storage := state.NewMemoryStorage(0)
	raw := `{"subject":"Biology","standard":"1st PUC","isCourseSelected":true,"selectedChapter":"The Living World",` +
		`"selectedTopic":"","topics":{"The Living World":["Taxonomy"]},` +
		`"content":{"The Living World":{"Taxonomy":{"question":"Taxonomy","answer":{"isLoading":true}}}},` +
		`"activeView":{},"noMoreTopics":{}}`
	if err := storage.Set(ctx, state.StateKey+":l", []byte(raw)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got := state.NewStore(storage, "l").Load(ctx)
	c, ok := got.ContentOf("The Living World", "Taxonomy")
	if !ok {
		t.Fatal("topic content missing")
	}
	if c.Answer.Status != state.Idle {
		t.Errorf("answer status = %v, want idle", c.Answer.Status)
	}
	if !got.IsCourseSelected || got.Subject != "Biology" {
		t.Errorf("course = %q/%v", got.Subject, got.IsCourseSelected)
	}
}

func TestStore_SaveQuotaExceededClears(t *testing.T) {
	ctx := context.Background()
	storage := state.NewMemoryStorage(64)
	store := state.NewStore(storage, "l")

	small := []byte(`{"content":{},"activeView":{}}`)
	if err := storage.Set(ctx, state.StateKey+":l", small); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	store.Save(ctx, sampleState())

	if _, err := storage.Get(ctx, state.StateKey+":l"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound after quota failure", err)
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	storage := state.NewMemoryStorage(0)
	store := state.NewStore(storage, "l")

	store.Save(ctx, sampleState())
	store.SaveTheme(ctx, state.ThemeDark)
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if got := store.Load(ctx); got.IsCourseSelected {
		t.Error("Load() after Clear() still has a course")
	}
	if got := store.LoadTheme(ctx, false); got != state.ThemeDark {
		t.Errorf("LoadTheme() = %q, want dark kept", got)
	}
}

func TestStore_LearnersAreIsolated(t *testing.T) {
	ctx := context.Background()
	storage := state.NewMemoryStorage(0)

	state.NewStore(storage, "a").Save(ctx, sampleState())
	if got := state.NewStore(storage, "b").Load(ctx); got.IsCourseSelected {
		t.Error("learner b sees learner a's state")
	}
}

func TestStore_Theme(t *testing.T) {
	tests := []struct {
		name        string
		stored      string
		prefersDark bool
		want        state.Theme
	}{
		{"no preference", "", false, state.ThemeLight},
		{"client prefers dark", "", true, state.ThemeDark},
		{"stored dark", "dark", false, state.ThemeDark},
		{"stored light beats preference", "light", true, state.ThemeLight},
		{"garbage", "purple", true, state.ThemeLight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			storage := state.NewMemoryStorage(0)
			if tt.stored != "" {
				if err := storage.Set(ctx, state.ThemeKey+":l", []byte(tt.stored)); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
			}
			if got := state.NewStore(storage, "l").LoadTheme(ctx, tt.prefersDark); got != tt.want {
				t.Errorf("LoadTheme() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTheme(t *testing.T) {
	if got, err := state.ParseTheme("Dark"); err != nil || got != state.ThemeDark {
		t.Errorf("ParseTheme(Dark) = (%q, %v)", got, err)
	}
	if _, err := state.ParseTheme("sepia"); err == nil {
		t.Error("ParseTheme(sepia) should fail")
	}
	if state.ThemeLight.Toggle() != state.ThemeDark || state.ThemeDark.Toggle() != state.ThemeLight {
		t.Error("Toggle() did not flip")
	}
}
