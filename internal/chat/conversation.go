// Package chat runs the study chat: a conversation bound to a course and
// chapter whose model replies stream into a placeholder message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/p-n-ai/muse/internal/content"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry of the visible chat history.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

var (
	// ErrEmptyMessage is returned when the learner sends only whitespace.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned while a previous reply is still streaming.
	ErrBusy = errors.New("a reply is still streaming")
)

// StreamError reports an interrupted reply. The placeholder message has
// already been replaced with an apology when it is returned.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return "chat stream: " + e.Err.Error() }

func (e *StreamError) Unwrap() error { return e.Err }

// Streamer continues a chat session. *content.Service satisfies it.
type Streamer interface {
	ContinueChat(ctx context.Context, session *content.ChatSession, message string) iter.Seq2[string, error]
}

// WelcomeMessage returns the opening model message for a course, bound to a
// chapter when one is given.
func WelcomeMessage(subject, standard, chapter string) string {
	if chapter != "" {
		return fmt.Sprintf("Great! Let's focus on \"%s\". Select a topic, or ask me a specific question.", chapter)
	}
	return fmt.Sprintf("I'm your AI study buddy! Ask me anything about the %s syllabus for %s, or select a chapter to begin.", subject, standard)
}

// Conversation is the chat of one learner for one course and chapter.
type Conversation struct {
	streamer Streamer
	session  *content.ChatSession

	mu       sync.Mutex
	messages []Message
	busy     bool
}

// NewConversation starts a conversation with its welcome message.
func NewConversation(streamer Streamer, session *content.ChatSession) *Conversation {
	return &Conversation{
		streamer: streamer,
		session:  session,
		messages: []Message{{
			Role: RoleModel,
			Text: WelcomeMessage(session.Subject, session.Standard, session.Chapter),
		}},
	}
}

// Chapter returns the chapter the conversation is bound to, or "".
func (c *Conversation) Chapter() string { return c.session.Chapter }

// History returns a copy of the visible messages.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Streaming reports whether a reply is in progress.
func (c *Conversation) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Send appends the learner's message and an empty model placeholder, then
// streams the reply into the placeholder, calling onFragment for each piece.
// On failure the placeholder becomes an apology and a *StreamError is
// returned. onFragment may be nil.
func (c *Conversation) Send(ctx context.Context, text string, onFragment func(string)) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.messages = append(c.messages, Message{Role: RoleUser, Text: text}, Message{Role: RoleModel})
	slot := len(c.messages) - 1
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	for frag, err := range c.streamer.ContinueChat(ctx, c.session, text) {
		if err != nil {
			c.fail(slot, err)
			return &StreamError{Err: err}
		}
		c.mu.Lock()
		c.messages[slot].Text += frag
		c.mu.Unlock()
		if onFragment != nil {
			onFragment(frag)
		}
	}
	return nil
}

func (c *Conversation) fail(slot int, err error) {
	slog.Warn("chat reply failed", "chapter", c.session.Chapter, "error", err)
	c.mu.Lock()
	c.messages[slot].Text = "Sorry, an error occurred: " + err.Error()
	c.mu.Unlock()
}
