package content_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/p-n-ai/muse/internal/ai"
	"github.com/p-n-ai/muse/internal/content"
)

func collect(t *testing.T, svc *content.Service, session *content.ChatSession, msg string) (string, error) {
	t.Helper()
	var b strings.Builder
	for frag, err := range svc.ContinueChat(context.Background(), session, msg) {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}

func TestStartChat_Instruction(t *testing.T) {
	svc := content.NewService(content.ServiceConfig{Generator: ai.NewMockProvider("")})

	bound := svc.StartChat(standard, csSubject, "Functions")
	if !strings.Contains(bound.Instruction(), `"Functions"`) {
		t.Errorf("bound instruction = %q", bound.Instruction())
	}

	unbound := svc.StartChat(standard, csSubject, "")
	if !strings.Contains(unbound.Instruction(), "MUST say which chapter") {
		t.Errorf("unbound instruction = %q", unbound.Instruction())
	}
	for _, s := range []string{csSubject, standard} {
		if !strings.Contains(unbound.Instruction(), s) {
			t.Errorf("instruction missing %q", s)
		}
	}
}

func TestContinueChat(t *testing.T) {
	mock := &ai.MockProvider{StreamChunks: []string{"A function ", "is a block", "."}}
	svc := content.NewService(content.ServiceConfig{Generator: mock})
	session := svc.StartChat(standard, csSubject, "Functions")

	got, err := collect(t, svc, session, "What is a function?")
	if err != nil {
		t.Fatalf("ContinueChat() error = %v", err)
	}
	if got != "A function is a block." {
		t.Errorf("reply = %q", got)
	}
	if session.Turns() != 2 {
		t.Errorf("Turns() = %d, want 2", session.Turns())
	}

	if _, err := collect(t, svc, session, "And a parameter?"); err != nil {
		t.Fatalf("ContinueChat() error = %v", err)
	}
	req := mock.LastRequest
	if req.Task != ai.TaskChat {
		t.Errorf("Task = %v, want chat", req.Task)
	}
	roles := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		roles[i] = m.Role
	}
	want := []string{ai.RoleSystem, ai.RoleUser, ai.RoleAssistant, ai.RoleUser}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Errorf("roles = %v, want %v", roles, want)
	}
	if req.Messages[2].Content != "A function is a block." {
		t.Errorf("history reply = %q", req.Messages[2].Content)
	}
}

func TestContinueChat_StreamError(t *testing.T) {
	mock := &ai.MockProvider{StreamChunks: []string{"partial"}, StreamErr: errors.New("connection reset")}
	svc := content.NewService(content.ServiceConfig{Generator: mock})
	session := svc.StartChat(standard, csSubject, "")

	got, err := collect(t, svc, session, "hi")
	if got != "partial" {
		t.Errorf("fragments before error = %q", got)
	}
	var pe *content.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if session.Turns() != 0 {
		t.Errorf("Turns() = %d, want failed turn unrecorded", session.Turns())
	}
}

func TestContinueChat_StartError(t *testing.T) {
	svc := content.NewService(content.ServiceConfig{Generator: &ai.MockProvider{Err: errors.New("down")}})
	session := svc.StartChat(standard, csSubject, "")

	_, err := collect(t, svc, session, "hi")
	var pe *content.ProviderError
	if !errors.As(err, &pe) || pe.Op != "chat" {
		t.Fatalf("error = %v, want chat *ProviderError", err)
	}
}

func TestContinueChat_StopEarly(t *testing.T) {
	mock := &ai.MockProvider{StreamChunks: []string{"one", "two", "three"}}
	svc := content.NewService(content.ServiceConfig{Generator: mock})
	session := svc.StartChat(standard, csSubject, "")

	for frag, err := range svc.ContinueChat(context.Background(), session, "hi") {
		if err != nil {
			t.Fatalf("ContinueChat() error = %v", err)
		}
		if frag == "one" {
			break
		}
	}
	if session.Turns() != 0 {
		t.Errorf("Turns() = %d, want abandoned turn unrecorded", session.Turns())
	}
}

func TestContinueChat_Compaction(t *testing.T) {
	mock := &ai.MockProvider{Response: "Discussed functions.", StreamChunks: []string{"ok"}}
	svc := content.NewService(content.ServiceConfig{Generator: mock, CompactThreshold: 2, KeepRecent: 2})
	session := svc.StartChat(standard, csSubject, "Functions")

	for _, msg := range []string{"one", "two", "three"} {
		if _, err := collect(t, svc, session, msg); err != nil {
			t.Fatalf("ContinueChat(%q) error = %v", msg, err)
		}
	}

	if session.Summary() != "Discussed functions." {
		t.Errorf("Summary() = %q", session.Summary())
	}
	if session.Turns() != 4 {
		t.Errorf("Turns() = %d, want 4", session.Turns())
	}
	if mock.Calls() != 4 {
		t.Errorf("Calls() = %d, want 3 streams and 1 summary", mock.Calls())
	}

	last := mock.LastRequest
	if !strings.Contains(last.Messages[1].Content, "Discussed functions.") {
		t.Errorf("summary not sent: %q", last.Messages[1].Content)
	}
	for _, m := range last.Messages {
		if m.Content == "one" {
			t.Error("compacted turn still sent")
		}
	}
}
