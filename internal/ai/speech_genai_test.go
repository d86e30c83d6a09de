package ai_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/p-n-ai/muse/internal/ai"
)

func TestGenAISpeech_Synthesize(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "gemini-2.5-flash-preview-tts:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "Kore") {
			t.Errorf("request body missing voice name: %s", body)
		}
		if !strings.Contains(string(body), "AUDIO") {
			t.Errorf("request body missing AUDIO modality: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":%q}}]}}]}`,
			base64.StdEncoding.EncodeToString(pcm))
	}))
	defer server.Close()

	speech, err := ai.NewGenAISpeech(context.Background(), "test-key", ai.WithSpeechBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewGenAISpeech() error = %v", err)
	}

	got, err := speech.Synthesize(context.Background(), "Say clearly: functions are reusable blocks.", "Kore")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(got) != string(pcm) {
		t.Errorf("Synthesize() = %v, want %v", got, pcm)
	}
}

func TestGenAISpeech_NoAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"I cannot speak"}]}}]}`)
	}))
	defer server.Close()

	speech, err := ai.NewGenAISpeech(context.Background(), "test-key", ai.WithSpeechBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewGenAISpeech() error = %v", err)
	}

	if _, err := speech.Synthesize(context.Background(), "hello", "Kore"); !errors.Is(err, ai.ErrNoAudio) {
		t.Errorf("Synthesize() error = %v, want ErrNoAudio", err)
	}
}

func TestGenAISpeech_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"bad voice","status":"INVALID_ARGUMENT"}}`)
	}))
	defer server.Close()

	speech, err := ai.NewGenAISpeech(context.Background(), "test-key", ai.WithSpeechBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewGenAISpeech() error = %v", err)
	}

	if _, err := speech.Synthesize(context.Background(), "hello", "Nobody"); err == nil {
		t.Fatal("Synthesize() should return error on API error")
	}
}
