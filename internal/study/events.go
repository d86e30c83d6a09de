package study

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types recorded for a learner.
const (
	EventCourseSelected    = "course_selected"
	EventCourseChanged     = "course_changed"
	EventChapterSelected   = "chapter_selected"
	EventTopicsFetched     = "topics_fetched"
	EventArtifactGenerated = "artifact_generated"
	EventUnitTestGenerated = "unit_test_generated"
	EventChatMessage       = "chat_message"
)

const eventTimeout = 5 * time.Second

// Event is one study analytics event.
type Event struct {
	Learner   string
	Type      string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger records study events. Logging is best-effort and never fails
// the operation that produced the event.
type EventLogger interface {
	LogEvent(ctx context.Context, event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(context.Context, Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(_ context.Context, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresEventLogger inserts events into the learner_events table created
// by database.Schema.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) (*PostgresEventLogger, error) {
	if pool == nil {
		return nil, fmt.Errorf("event logger pool is nil")
	}
	return &PostgresEventLogger{pool: pool}, nil
}

func (l *PostgresEventLogger) LogEvent(ctx context.Context, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Learner == "" {
		return fmt.Errorf("learner is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO learner_events (learner, event_type, data, created_at) VALUES ($1, $2, $3::jsonb, $4)`,
		event.Learner,
		event.Type,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged", "type", event.Type, "learner", event.Learner)
	return nil
}

// logEvent records an event for the session's learner.
func (s *Session) logEvent(ctx context.Context, eventType string, data map[string]any) {
	if err := s.events.LogEvent(ctx, Event{Learner: s.learner, Type: eventType, Data: data}); err != nil {
		slog.Warn("failed to log event", "type", eventType, "learner", s.learner, "error", err)
	}
}
