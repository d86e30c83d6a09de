package study

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/p-n-ai/muse/internal/content"
	"github.com/p-n-ai/muse/internal/curriculum"
	"github.com/p-n-ai/muse/internal/state"
)

// ErrInvalidLearner is returned for a malformed learner id.
var ErrInvalidLearner = errors.New("learner id must be 1-128 characters of letters, digits, '.', '_' or '-'")

var learnerPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Config holds the dependencies of a Manager.
type Config struct {
	Storage state.Storage
	Content *content.Service
	Catalog *curriculum.Loader
	Events  EventLogger // optional; defaults to NopEventLogger

	// IdleTimeout is how long an unused session stays in memory. Zero means
	// DefaultIdleTimeout.
	IdleTimeout time.Duration
}

// DefaultIdleTimeout is the idle time after which a session is evicted.
const DefaultIdleTimeout = 30 * time.Minute

// Manager owns the live session of every learner. Sessions are created on
// first use from the learner's persisted state.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager.
func NewManager(cfg Config) *Manager {
	if cfg.Events == nil {
		cfg.Events = NopEventLogger{}
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// ValidLearner reports whether id is an acceptable learner id.
func ValidLearner(id string) bool {
	return learnerPattern.MatchString(id)
}

// Session returns the learner's session, loading it from storage on first
// use.
func (m *Manager) Session(ctx context.Context, learner string) (*Session, error) {
	if !ValidLearner(learner) {
		return nil, ErrInvalidLearner
	}

	m.mu.RLock()
	s, ok := m.sessions[learner]
	m.mu.RUnlock()
	if ok {
		s.touch(time.Now())
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[learner]; ok {
		s.touch(time.Now())
		return s, nil
	}

	store := state.NewStore(m.cfg.Storage, learner)
	s = newSession(ctx, learner, store, m.cfg)
	s.touch(time.Now())
	m.sessions[learner] = s
	slog.Debug("session loaded", "learner", learner, "course_selected", s.st.IsCourseSelected)
	return s, nil
}

// Catalog returns the course catalog.
func (m *Manager) Catalog() *curriculum.Loader {
	return m.cfg.Catalog
}

// Sessions returns the number of live sessions.
func (m *Manager) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Evict drops sessions unused for longer than the idle timeout at now. A
// session with a provider call in flight is kept, so its result is saved by
// the session that will serve the learner next. Evicted learners reload
// from storage on their next request.
func (m *Manager) Evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for learner, s := range m.sessions {
		if s.busy() || now.Sub(s.lastUsed()) < m.cfg.IdleTimeout {
			continue
		}
		delete(m.sessions, learner)
		evicted++
	}
	if evicted > 0 {
		slog.Debug("idle sessions evicted", "count", evicted, "remaining", len(m.sessions))
	}
	return evicted
}

// Run evicts idle sessions periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Evict(now)
		}
	}
}

// HealthCheck checks the storage backend.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.cfg.Storage.HealthCheck(ctx)
}
