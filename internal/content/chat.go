package content

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/p-n-ai/muse/internal/ai"
)

var errStreamCut = errors.New("stream ended before completion")

// ChatSession is a stateful conversation bound to a course and, optionally,
// a chapter. Completed turns are kept as history; older turns are folded
// into a running summary once the history grows long.
type ChatSession struct {
	Subject  string
	Standard string
	Chapter  string

	instruction string

	mu      sync.Mutex
	history []ai.Message
	summary string
}

// StartChat opens a conversation. Without a chapter, answers must name the
// chapter each topic belongs to.
func (s *Service) StartChat(standard, subject, chapter string) *ChatSession {
	return &ChatSession{
		Subject:     subject,
		Standard:    standard,
		Chapter:     chapter,
		instruction: chatInstruction(subject, standard, chapter),
	}
}

// Instruction returns the system instruction of the session.
func (c *ChatSession) Instruction() string { return c.instruction }

// Turns returns the number of completed messages in the live history.
func (c *ChatSession) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Summary returns the summary of compacted turns, if any.
func (c *ChatSession) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

func (c *ChatSession) messages(next string) []ai.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := []ai.Message{{Role: ai.RoleSystem, Content: c.instruction}}
	if c.summary != "" {
		msgs = append(msgs,
			ai.Message{Role: ai.RoleUser, Content: "Previous conversation summary:\n" + c.summary},
			ai.Message{Role: ai.RoleAssistant, Content: "Understood, I'll continue from there."},
		)
	}
	msgs = append(msgs, c.history...)
	return append(msgs, ai.Message{Role: ai.RoleUser, Content: next})
}

func (c *ChatSession) record(user, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history,
		ai.Message{Role: ai.RoleUser, Content: user},
		ai.Message{Role: ai.RoleAssistant, Content: reply},
	)
}

// ContinueChat sends a message and yields the reply fragments in order. A
// failure is yielded once as a *ProviderError and ends the sequence.
// Stopping the iteration early cancels the upstream request and the turn is
// not recorded.
func (s *Service) ContinueChat(ctx context.Context, session *ChatSession, message string) iter.Seq2[string, error] {
	const msg = "Could not get a response. Please try again."

	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		s.maybeCompact(ctx, session)

		ch, err := s.gen.StreamComplete(ctx, ai.CompletionRequest{
			Messages: session.messages(message),
			Task:     ai.TaskChat,
		})
		if err != nil {
			yield("", providerError("chat", msg, err))
			return
		}

		var reply strings.Builder
		done := false
		for chunk := range ch {
			if chunk.Error != nil {
				yield("", providerError("chat", msg, chunk.Error))
				return
			}
			if chunk.Content != "" {
				reply.WriteString(chunk.Content)
				if !yield(chunk.Content, nil) {
					return
				}
			}
			if chunk.Done {
				done = true
				break
			}
		}
		if !done {
			err := ctx.Err()
			if err == nil {
				err = errStreamCut
			}
			yield("", providerError("chat", msg, err))
			return
		}

		session.record(message, reply.String())
	}
}

// maybeCompact folds all but the most recent turns into the session summary
// once the history passes the threshold. Failure keeps the full history.
func (s *Service) maybeCompact(ctx context.Context, session *ChatSession) {
	session.mu.Lock()
	if len(session.history) <= s.compactThreshold {
		session.mu.Unlock()
		return
	}
	upTo := len(session.history) - s.keepRecent
	if upTo%2 != 0 {
		upTo--
	}
	if upTo <= 0 {
		session.mu.Unlock()
		return
	}
	older := append([]ai.Message(nil), session.history[:upTo]...)
	previous := session.summary
	session.mu.Unlock()

	var content strings.Builder
	if previous != "" {
		content.WriteString("Previous summary:\n")
		content.WriteString(previous)
		content.WriteString("\n\nNew messages to incorporate:\n")
	}
	for _, m := range older {
		role := "Student"
		if m.Role == ai.RoleAssistant {
			role = "Tutor"
		}
		fmt.Fprintf(&content, "%s: %s\n", role, m.Content)
	}

	resp, err := s.gen.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: compactInstruction},
			{Role: ai.RoleUser, Content: content.String()},
		},
		Task:      ai.TaskSummary,
		MaxTokens: 256,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		slog.Warn("chat compaction failed, keeping full history", "error", err)
		return
	}

	session.mu.Lock()
	session.summary = strings.TrimSpace(resp.Content)
	session.history = append([]ai.Message(nil), session.history[upTo:]...)
	session.mu.Unlock()

	slog.Info("chat compacted",
		"subject", session.Subject,
		"chapter", session.Chapter,
		"compacted_messages", upTo,
	)
}
