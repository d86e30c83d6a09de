// Package study orchestrates one learner's study session: course and chapter
// selection, topic lists, per-topic artifacts, the chapter unit test and the
// chat. Each session is the single writer of its learner's persisted state.
package study

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/p-n-ai/muse/internal/chat"
	"github.com/p-n-ai/muse/internal/content"
	"github.com/p-n-ai/muse/internal/curriculum"
	"github.com/p-n-ai/muse/internal/state"
)

// generationTimeout bounds a provider request once it has started. Requests
// outlive the caller's context so that a result is never lost to a dropped
// connection.
const generationTimeout = 3 * time.Minute

var (
	ErrNoCourse        = errors.New("no course selected")
	ErrCourseSelected  = errors.New("a different course is already selected; change course first")
	ErrUnknownCourse   = errors.New("unknown course")
	ErrNoChapter       = errors.New("no chapter selected")
	ErrUnknownChapter  = errors.New("unknown chapter for this course")
	ErrUnknownTopic    = errors.New("unknown topic for this chapter")
	ErrAnswerRequired  = errors.New("the explanation must be generated before its audio")
	ErrUnknownArtifact = errors.New("unknown artifact")
	ErrSuperseded      = errors.New("the course changed while the request was running")
)

// Snapshot is a consistent read of a session.
type Snapshot struct {
	state.State
	Chapters      []string                            `json:"chapters"`
	TopicsLoading bool                                `json:"isTopicsLoading"`
	Error         string                              `json:"error,omitempty"`
	UnitTest      state.Artifact[curriculum.UnitTest] `json:"unitTest"`
	UnitTestFor   string                              `json:"unitTestChapter,omitempty"`
	Chat          []chat.Message                      `json:"chat"`
	ChatStreaming bool                                `json:"isChatLoading"`
}

// Session is the live study state of one learner.
type Session struct {
	learner string
	store   *state.Store
	content *content.Service
	catalog *curriculum.Loader
	events  EventLogger

	mu            sync.Mutex
	st            state.State
	epoch         uint64
	topicsLoading map[string]bool
	lastError     string
	unitTest      state.Artifact[curriculum.UnitTest]
	unitTestFor   string
	unitTestRun   uint64
	conv          *chat.Conversation

	used     atomic.Int64 // unix nanos of the last Manager.Session lookup
	inflight atomic.Int32
}

func newSession(ctx context.Context, learner string, store *state.Store, cfg Config) *Session {
	return &Session{
		learner:       learner,
		store:         store,
		content:       cfg.Content,
		catalog:       cfg.Catalog,
		events:        cfg.Events,
		st:            store.Load(ctx),
		topicsLoading: map[string]bool{},
	}
}

func (s *Session) touch(now time.Time) { s.used.Store(now.UnixNano()) }

func (s *Session) lastUsed() time.Time { return time.Unix(0, s.used.Load()) }

// track marks a provider call in flight until the returned func is called.
func (s *Session) track() func() {
	s.inflight.Add(1)
	return func() { s.inflight.Add(-1) }
}

func (s *Session) busy() bool { return s.inflight.Load() > 0 }

// detach keeps the caller's values but not its cancellation.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), generationTimeout)
}

// save persists the state. Callers hold s.mu.
func (s *Session) save(ctx context.Context) {
	s.store.Save(ctx, s.st)
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:       s.st,
		Error:       s.lastError,
		UnitTest:    s.unitTest,
		UnitTestFor: s.unitTestFor,
		Chat:        []chat.Message{},
	}
	if s.st.IsCourseSelected {
		snap.Chapters = s.catalog.Chapters(s.st.Subject, s.st.Standard)
	}
	if snap.Chapters == nil {
		snap.Chapters = []string{}
	}
	if ch := s.st.SelectedChapter; ch != "" {
		snap.TopicsLoading = s.topicsLoading[ch]
	}
	if s.conv != nil {
		snap.Chat = s.conv.History()
		snap.ChatStreaming = s.conv.Streaming()
	} else if s.st.IsCourseSelected {
		snap.Chat = []chat.Message{{
			Role: chat.RoleModel,
			Text: chat.WelcomeMessage(s.st.Subject, s.st.Standard, s.st.SelectedChapter),
		}}
	}
	return snap
}

// SelectCourse sets the subject and standard. Selecting the current course
// again is a no-op; switching requires ChangeCourse first.
func (s *Session) SelectCourse(ctx context.Context, subject, standard string) error {
	if !s.catalog.HasCourse(subject, standard) {
		return ErrUnknownCourse
	}

	s.mu.Lock()
	if s.st.IsCourseSelected {
		same := s.st.Subject == subject && s.st.Standard == standard
		s.mu.Unlock()
		if same {
			return nil
		}
		return ErrCourseSelected
	}
	s.st = s.st.WithCourse(subject, standard)
	s.conv = s.newConversation()
	s.save(ctx)
	s.mu.Unlock()

	slog.Info("course selected", "learner", s.learner, "subject", subject, "standard", standard)
	s.logEvent(ctx, EventCourseSelected, map[string]any{"subject": subject, "standard": standard})
	return nil
}

// ChangeCourse wipes the learner's persisted state and starts over. Results
// of requests still in flight are discarded when they arrive.
func (s *Session) ChangeCourse(ctx context.Context) error {
	s.mu.Lock()
	if err := s.store.Clear(ctx); err != nil {
		slog.Warn("failed to clear persisted state", "learner", s.learner, "error", err)
	}
	s.st = state.Default()
	s.epoch++
	s.topicsLoading = map[string]bool{}
	s.lastError = ""
	s.unitTest = state.Artifact[curriculum.UnitTest]{}
	s.unitTestFor = ""
	s.conv = nil
	s.mu.Unlock()

	slog.Info("course reset", "learner", s.learner)
	s.logEvent(ctx, EventCourseChanged, nil)
	return nil
}

// SelectChapter switches chapter, clearing the selected topic and the unit
// test and starting a chapter-bound chat. Topics are fetched on the first
// visit. Selecting the current chapter is a no-op.
func (s *Session) SelectChapter(ctx context.Context, chapter string) error {
	chapter = state.Normalize(chapter)

	s.mu.Lock()
	if !s.st.IsCourseSelected {
		s.mu.Unlock()
		return ErrNoCourse
	}
	if !s.catalog.HasChapter(s.st.Subject, s.st.Standard, chapter) {
		s.mu.Unlock()
		return ErrUnknownChapter
	}
	if s.st.SelectedChapter == chapter {
		s.mu.Unlock()
		return nil
	}

	s.st = s.st.WithChapter(chapter)
	s.unitTest = state.Artifact[curriculum.UnitTest]{}
	s.unitTestFor = ""
	s.unitTestRun++
	s.conv = s.newConversation()
	s.save(ctx)
	needTopics := !s.st.HasTopics(chapter)
	s.mu.Unlock()

	s.logEvent(ctx, EventChapterSelected, map[string]any{"chapter": chapter})
	if needTopics {
		s.fetchTopics(ctx, chapter)
	}
	return nil
}

// FetchMoreTopics requests another batch for the selected chapter. It is a
// no-op while a batch is loading or once the chapter is exhausted.
func (s *Session) FetchMoreTopics(ctx context.Context) error {
	s.mu.Lock()
	chapter := s.st.SelectedChapter
	s.mu.Unlock()

	if chapter == "" {
		return ErrNoChapter
	}
	s.fetchTopics(ctx, chapter)
	return nil
}

func (s *Session) fetchTopics(ctx context.Context, chapter string) {
	s.mu.Lock()
	if s.topicsLoading[chapter] || s.st.Exhausted(chapter) || !s.st.IsCourseSelected {
		s.mu.Unlock()
		return
	}
	s.topicsLoading[chapter] = true
	s.lastError = ""
	epoch := s.epoch
	subject, standard := s.st.Subject, s.st.Standard
	existing := slices.Clone(s.st.TopicsOf(chapter))
	s.mu.Unlock()

	done := s.track()
	defer done()
	ctx, cancel := detach(ctx)
	defer cancel()
	topics, err := s.content.FetchTopics(ctx, chapter, subject, standard, existing)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		slog.Debug("discarding topics from a previous course", "learner", s.learner, "chapter", chapter)
		return
	}
	delete(s.topicsLoading, chapter)

	switch {
	case err != nil:
		s.lastError = err.Error()
		s.mu.Unlock()
		return
	case len(topics) == 0:
		s.st = s.st.AppendTopics(chapter, nil).MarkNoMoreTopics(chapter)
	default:
		s.st = s.st.AppendTopics(chapter, topics)
	}
	s.save(ctx)
	s.mu.Unlock()

	s.logEvent(ctx, EventTopicsFetched, map[string]any{"chapter": chapter, "count": len(topics)})
}

// SelectTopic selects a topic of the selected chapter.
func (s *Session) SelectTopic(ctx context.Context, topic string) error {
	topic = state.Normalize(topic)

	s.mu.Lock()
	defer s.mu.Unlock()

	chapter := s.st.SelectedChapter
	if chapter == "" {
		return ErrNoChapter
	}
	if !slices.Contains(s.st.TopicsOf(chapter), topic) {
		return ErrUnknownTopic
	}
	s.st = s.st.WithTopic(topic)
	s.save(ctx)
	return nil
}

// RequestArtifact generates one artifact for a topic of the selected chapter
// and returns the topic's content. The topic's active view switches even on
// a cache hit. A request while the artifact is loading, or once it has data,
// returns immediately without calling the provider.
func (s *Session) RequestArtifact(ctx context.Context, kind state.Kind, topic string) (state.TopicContent, error) {
	if _, err := state.ParseKind(string(kind)); err != nil {
		return state.TopicContent{}, ErrUnknownArtifact
	}
	topic = state.Normalize(topic)

	s.mu.Lock()
	chapter := s.st.SelectedChapter
	if chapter == "" {
		s.mu.Unlock()
		return state.TopicContent{}, ErrNoChapter
	}
	if !slices.Contains(s.st.TopicsOf(chapter), topic) {
		s.mu.Unlock()
		return state.TopicContent{}, ErrUnknownTopic
	}

	if view, ok := kind.View(); ok {
		s.st = s.st.WithActiveView(chapter, topic, view)
	}

	current, _ := s.st.ContentOf(chapter, topic)
	var input string
	switch kind {
	case state.KindExplanationAudio:
		if current.Answer.Status != state.Success {
			s.save(ctx)
			s.mu.Unlock()
			return current, ErrAnswerRequired
		}
		input = current.Answer.Data
	case state.KindImage:
		if current.VisualPrompt.Status == state.Success {
			input = current.VisualPrompt.Data
		}
	}

	next, started := s.st.BeginArtifact(chapter, topic, kind)
	s.st = next
	s.save(ctx)
	if !started {
		c, _ := s.st.ContentOf(chapter, topic)
		s.mu.Unlock()
		return c, nil
	}
	epoch := s.epoch
	subject, standard := s.st.Subject, s.st.Standard
	s.mu.Unlock()

	// The result is stored even if the caller has gone away.
	done := s.track()
	defer done()
	ctx, cancel := detach(ctx)
	defer cancel()
	res := s.generate(ctx, kind, topic, chapter, subject, standard, input)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		slog.Debug("discarding artifact from a previous course", "learner", s.learner, "kind", kind, "topic", topic)
		return state.TopicContent{}, ErrSuperseded
	}
	s.st = s.st.ResolveArtifact(chapter, topic, kind, res)
	s.save(ctx)
	c, _ := s.st.ContentOf(chapter, topic)
	s.mu.Unlock()

	s.logEvent(ctx, EventArtifactGenerated, map[string]any{
		"chapter": chapter,
		"topic":   topic,
		"kind":    string(kind),
		"status":  c.Status(kind).String(),
	})
	return c, nil
}

func (s *Session) generate(ctx context.Context, kind state.Kind, topic, chapter, subject, standard, input string) state.Result {
	var res state.Result
	switch kind {
	case state.KindAnswer:
		res.Text, res.Err = s.content.FetchExplanation(ctx, topic, chapter, subject, standard)
	case state.KindVisualPrompt:
		res.Text, res.Err = s.content.FetchVisualPrompt(ctx, topic, subject)
	case state.KindMCQs:
		res.MCQs, res.Err = s.content.FetchMCQs(ctx, topic, subject)
	case state.KindRealWorldExample:
		res.Text, res.Err = s.content.FetchRealWorldExample(ctx, topic, subject, standard, chapter)
	case state.KindExplanationAudio:
		res.Text, res.Err = s.content.FetchAudioSummary(ctx, input, s.content.Voice())
	case state.KindImage:
		res.Text, res.Err = s.content.FetchImage(ctx, topic, subject, input)
	}
	return res
}

// GenerateUnitTest creates a fresh unit test for the selected chapter. A
// request while one is loading returns the loading state. The result is
// dropped if the chapter or course changed meanwhile.
func (s *Session) GenerateUnitTest(ctx context.Context) (state.Artifact[curriculum.UnitTest], error) {
	s.mu.Lock()
	chapter := s.st.SelectedChapter
	if chapter == "" {
		s.mu.Unlock()
		return state.Artifact[curriculum.UnitTest]{}, ErrNoChapter
	}
	if s.unitTest.IsLoading() {
		ut := s.unitTest
		s.mu.Unlock()
		return ut, nil
	}
	s.unitTest = state.Artifact[curriculum.UnitTest]{Status: state.Loading}
	s.unitTestFor = chapter
	s.unitTestRun++
	s.lastError = ""
	run, epoch := s.unitTestRun, s.epoch
	subject, standard := s.st.Subject, s.st.Standard
	s.mu.Unlock()

	done := s.track()
	defer done()
	gctx, cancel := detach(ctx)
	test, err := s.content.FetchUnitTest(gctx, chapter, subject, standard)
	cancel()

	s.mu.Lock()
	if epoch != s.epoch || run != s.unitTestRun {
		ut := s.unitTest
		s.mu.Unlock()
		slog.Debug("discarding unit test for a deselected chapter", "learner", s.learner, "chapter", chapter)
		return ut, nil
	}
	if err != nil {
		s.unitTest = s.unitTest.Fail(err.Error())
		s.lastError = err.Error()
	} else {
		s.unitTest = s.unitTest.Succeed(test)
	}
	ut := s.unitTest
	s.mu.Unlock()

	s.logEvent(ctx, EventUnitTestGenerated, map[string]any{"chapter": chapter, "status": ut.Status.String()})
	return ut, nil
}

// UnitTest returns the latest unit test and the chapter it belongs to.
func (s *Session) UnitTest() (string, state.Artifact[curriculum.UnitTest]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unitTestFor, s.unitTest
}

// newConversation starts a chat for the current course and chapter. Callers
// hold s.mu.
func (s *Session) newConversation() *chat.Conversation {
	session := s.content.StartChat(s.st.Standard, s.st.Subject, s.st.SelectedChapter)
	return chat.NewConversation(s.content, session)
}

// Chat returns the active conversation, starting one if needed.
func (s *Session) Chat(_ context.Context) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.st.IsCourseSelected {
		return nil, ErrNoCourse
	}
	if s.conv == nil {
		s.conv = s.newConversation()
	}
	return s.conv, nil
}

// SendChat sends a message on the active conversation. Fragments of a reply
// that outlives its conversation land only in that discarded conversation.
func (s *Session) SendChat(ctx context.Context, text string, onFragment func(string)) error {
	conv, err := s.Chat(ctx)
	if err != nil {
		return err
	}
	done := s.track()
	defer done()
	if err := conv.Send(ctx, text, onFragment); err != nil {
		return err
	}
	s.logEvent(ctx, EventChatMessage, map[string]any{"chapter": conv.Chapter()})
	return nil
}

// Theme returns the stored theme, falling back to the client preference.
func (s *Session) Theme(ctx context.Context, prefersDark bool) state.Theme {
	return s.store.LoadTheme(ctx, prefersDark)
}

// SetTheme persists a theme.
func (s *Session) SetTheme(ctx context.Context, theme state.Theme) {
	s.store.SaveTheme(ctx, theme)
}

// ToggleTheme flips and persists the theme.
func (s *Session) ToggleTheme(ctx context.Context, prefersDark bool) state.Theme {
	next := s.store.LoadTheme(ctx, prefersDark).Toggle()
	s.store.SaveTheme(ctx, next)
	return next
}
