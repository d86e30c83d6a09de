package state

import (
	"fmt"
	"maps"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/muse/internal/curriculum"
)

// Kind names a per-topic artifact.
type Kind string

const (
	KindAnswer           Kind = "answer"
	KindVisualPrompt     Kind = "visualPrompt"
	KindMCQs             Kind = "mcqs"
	KindRealWorldExample Kind = "realWorldExample"
	KindExplanationAudio Kind = "explanationAudio"
	KindImage            Kind = "image"
)

// Kinds lists every artifact kind.
var Kinds = []Kind{KindAnswer, KindVisualPrompt, KindMCQs, KindRealWorldExample, KindExplanationAudio, KindImage}

// ParseKind validates an artifact kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if slices.Contains(Kinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown artifact kind %q", s)
}

// View is the artifact panel last opened for a topic.
type View string

const (
	ViewAnswer           View = "answer"
	ViewVisualize        View = "visualize"
	ViewMCQs             View = "mcqs"
	ViewRealWorldExample View = "realWorldExample"
)

// View returns the panel that shows the artifact. Audio plays inside the
// answer panel and opens none.
func (k Kind) View() (View, bool) {
	switch k {
	case KindAnswer:
		return ViewAnswer, true
	case KindVisualPrompt, KindImage:
		return ViewVisualize, true
	case KindMCQs:
		return ViewMCQs, true
	case KindRealWorldExample:
		return ViewRealWorldExample, true
	default:
		return "", false
	}
}

// Binary reports whether the artifact holds a large payload that is never
// persisted.
func (k Kind) Binary() bool {
	return k == KindExplanationAudio || k == KindImage
}

// TopicContent holds every artifact generated for one topic.
type TopicContent struct {
	Question         string                     `json:"question"`
	Answer           Artifact[string]           `json:"answer,omitzero"`
	VisualPrompt     Artifact[string]           `json:"visualPrompt,omitzero"`
	MCQs             Artifact[[]curriculum.MCQ] `json:"mcqs,omitzero"`
	RealWorldExample Artifact[string]           `json:"realWorldExample,omitzero"`
	ExplanationAudio Artifact[string]           `json:"explanationAudio,omitzero"` // base64 PCM
	Image            Artifact[string]           `json:"image,omitzero"`            // base64 image bytes
}

// Result is the outcome of one artifact fetch. MCQs is used by KindMCQs,
// Text by every other kind.
type Result struct {
	Text string
	MCQs []curriculum.MCQ
	Err  error
}

// Status returns the status of one artifact.
func (c TopicContent) Status(kind Kind) Status {
	switch kind {
	case KindAnswer:
		return c.Answer.Status
	case KindVisualPrompt:
		return c.VisualPrompt.Status
	case KindMCQs:
		return c.MCQs.Status
	case KindRealWorldExample:
		return c.RealWorldExample.Status
	case KindExplanationAudio:
		return c.ExplanationAudio.Status
	case KindImage:
		return c.Image.Status
	}
	return Idle
}

// ErrorOf returns the failure message of one artifact.
func (c TopicContent) ErrorOf(kind Kind) string {
	switch kind {
	case KindAnswer:
		return c.Answer.Error
	case KindVisualPrompt:
		return c.VisualPrompt.Error
	case KindMCQs:
		return c.MCQs.Error
	case KindRealWorldExample:
		return c.RealWorldExample.Error
	case KindExplanationAudio:
		return c.ExplanationAudio.Error
	case KindImage:
		return c.Image.Error
	}
	return ""
}

func (c TopicContent) begin(kind Kind) (TopicContent, bool) {
	var ok bool
	switch kind {
	case KindAnswer:
		c.Answer, ok = c.Answer.Begin()
	case KindVisualPrompt:
		c.VisualPrompt, ok = c.VisualPrompt.Begin()
	case KindMCQs:
		c.MCQs, ok = c.MCQs.Begin()
	case KindRealWorldExample:
		c.RealWorldExample, ok = c.RealWorldExample.Begin()
	case KindExplanationAudio:
		c.ExplanationAudio, ok = c.ExplanationAudio.Begin()
	case KindImage:
		c.Image, ok = c.Image.Begin()
	}
	return c, ok
}

func (c TopicContent) resolve(kind Kind, res Result) TopicContent {
	if res.Err != nil {
		msg := res.Err.Error()
		switch kind {
		case KindAnswer:
			c.Answer = c.Answer.Fail(msg)
		case KindVisualPrompt:
			c.VisualPrompt = c.VisualPrompt.Fail(msg)
		case KindMCQs:
			c.MCQs = c.MCQs.Fail(msg)
		case KindRealWorldExample:
			c.RealWorldExample = c.RealWorldExample.Fail(msg)
		case KindExplanationAudio:
			c.ExplanationAudio = c.ExplanationAudio.Fail(msg)
		case KindImage:
			c.Image = c.Image.Fail(msg)
		}
		return c
	}
	switch kind {
	case KindAnswer:
		c.Answer = c.Answer.Succeed(res.Text)
	case KindVisualPrompt:
		c.VisualPrompt = c.VisualPrompt.Succeed(res.Text)
	case KindMCQs:
		c.MCQs = c.MCQs.Succeed(res.MCQs)
	case KindRealWorldExample:
		c.RealWorldExample = c.RealWorldExample.Succeed(res.Text)
	case KindExplanationAudio:
		c.ExplanationAudio = c.ExplanationAudio.Succeed(res.Text)
	case KindImage:
		c.Image = c.Image.Succeed(res.Text)
	}
	return c
}

// settle resets in-flight artifacts to Idle.
func (c TopicContent) settle() TopicContent {
	if c.Answer.IsLoading() {
		c.Answer = Artifact[string]{}
	}
	if c.VisualPrompt.IsLoading() {
		c.VisualPrompt = Artifact[string]{}
	}
	if c.MCQs.IsLoading() {
		c.MCQs = Artifact[[]curriculum.MCQ]{}
	}
	if c.RealWorldExample.IsLoading() {
		c.RealWorldExample = Artifact[string]{}
	}
	if c.ExplanationAudio.IsLoading() {
		c.ExplanationAudio = Artifact[string]{}
	}
	if c.Image.IsLoading() {
		c.Image = Artifact[string]{}
	}
	return c
}

// State is the persisted view-model of one learner. Content and ActiveView
// are keyed by chapter, then topic.
type State struct {
	Subject          string                             `json:"subject"`
	Standard         string                             `json:"standard"`
	IsCourseSelected bool                               `json:"isCourseSelected"`
	SelectedChapter  string                             `json:"selectedChapter"`
	SelectedTopic    string                             `json:"selectedTopic"`
	Topics           map[string][]string                `json:"topics"`
	Content          map[string]map[string]TopicContent `json:"content"`
	ActiveView       map[string]map[string]View         `json:"activeView"`
	NoMoreTopics     map[string]bool                    `json:"noMoreTopics"`
}

// Default returns the empty state of a learner who has not picked a course.
func Default() State {
	return State{
		Topics:       map[string][]string{},
		Content:      map[string]map[string]TopicContent{},
		ActiveView:   map[string]map[string]View{},
		NoMoreTopics: map[string]bool{},
	}
}

// Normalize returns the form chapters and topics are stored and compared
// in, so that equal text in different Unicode forms addresses the same entry.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

func key(s string) string { return Normalize(s) }

// clone copies the outer maps; inner maps are copied by the transform that
// changes them.
func (s State) clone() State {
	out := s
	out.Topics = maps.Clone(s.Topics)
	out.Content = maps.Clone(s.Content)
	out.ActiveView = maps.Clone(s.ActiveView)
	out.NoMoreTopics = maps.Clone(s.NoMoreTopics)
	if out.Topics == nil {
		out.Topics = map[string][]string{}
	}
	if out.Content == nil {
		out.Content = map[string]map[string]TopicContent{}
	}
	if out.ActiveView == nil {
		out.ActiveView = map[string]map[string]View{}
	}
	if out.NoMoreTopics == nil {
		out.NoMoreTopics = map[string]bool{}
	}
	return out
}

// WithCourse selects a subject and standard.
func (s State) WithCourse(subject, standard string) State {
	out := s.clone()
	out.Subject = subject
	out.Standard = standard
	out.IsCourseSelected = true
	return out
}

// WithChapter selects a chapter and clears the selected topic. Topics and
// content of other chapters are kept.
func (s State) WithChapter(chapter string) State {
	out := s.clone()
	out.SelectedChapter = key(chapter)
	out.SelectedTopic = ""
	return out
}

// WithTopic selects a topic within the selected chapter.
func (s State) WithTopic(topic string) State {
	out := s.clone()
	out.SelectedTopic = key(topic)
	return out
}

// WithActiveView records the panel last opened for a topic.
func (s State) WithActiveView(chapter, topic string, view View) State {
	out := s.clone()
	ch := key(chapter)
	inner := maps.Clone(out.ActiveView[ch])
	if inner == nil {
		inner = map[string]View{}
	}
	inner[key(topic)] = view
	out.ActiveView[ch] = inner
	return out
}

// AppendTopics appends a batch of topics to a chapter's list as-is.
func (s State) AppendTopics(chapter string, topics []string) State {
	out := s.clone()
	ch := key(chapter)
	batch := make([]string, len(topics))
	for i, t := range topics {
		batch[i] = key(t)
	}
	merged := slices.Concat(s.Topics[ch], batch)
	if merged == nil {
		merged = []string{}
	}
	out.Topics[ch] = merged
	return out
}

// MarkNoMoreTopics records that the provider has no further topics for a
// chapter.
func (s State) MarkNoMoreTopics(chapter string) State {
	out := s.clone()
	out.NoMoreTopics[key(chapter)] = true
	return out
}

// TopicsOf returns the topics fetched so far for a chapter.
func (s State) TopicsOf(chapter string) []string {
	return s.Topics[key(chapter)]
}

// HasTopics reports whether topics were ever fetched for a chapter.
func (s State) HasTopics(chapter string) bool {
	_, ok := s.Topics[key(chapter)]
	return ok
}

// Exhausted reports whether the chapter's topic list is complete.
func (s State) Exhausted(chapter string) bool {
	return s.NoMoreTopics[key(chapter)]
}

// ContentOf returns the content of a topic.
func (s State) ContentOf(chapter, topic string) (TopicContent, bool) {
	c, ok := s.Content[key(chapter)][key(topic)]
	return c, ok
}

// ViewOf returns the panel last opened for a topic.
func (s State) ViewOf(chapter, topic string) View {
	return s.ActiveView[key(chapter)][key(topic)]
}

func (s State) withContent(chapter, topic string, c TopicContent) State {
	out := s.clone()
	ch := key(chapter)
	inner := maps.Clone(out.Content[ch])
	if inner == nil {
		inner = map[string]TopicContent{}
	}
	inner[key(topic)] = c
	out.Content[ch] = inner
	return out
}

// BeginArtifact marks an artifact Loading, creating the topic entry lazily.
// It reports false, returning s unchanged, on a cache hit or while a request
// is in flight.
func (s State) BeginArtifact(chapter, topic string, kind Kind) (State, bool) {
	c, ok := s.ContentOf(chapter, topic)
	if !ok {
		c = TopicContent{Question: key(topic)}
	}
	c, started := c.begin(kind)
	if !started {
		return s, false
	}
	return s.withContent(chapter, topic, c), true
}

// ResolveArtifact stores the outcome of a fetch. Only the addressed artifact
// slot changes, so results for different topics or kinds merge.
func (s State) ResolveArtifact(chapter, topic string, kind Kind, res Result) State {
	c, ok := s.ContentOf(chapter, topic)
	if !ok {
		c = TopicContent{Question: key(topic)}
	}
	return s.withContent(chapter, topic, c.resolve(kind, res))
}

// Stripped returns a copy without binary payloads; their artifacts revert to
// Idle so they can be regenerated on demand.
func (s State) Stripped() State {
	out := s.clone()
	for ch, topics := range out.Content {
		inner := make(map[string]TopicContent, len(topics))
		for t, c := range topics {
			if c.ExplanationAudio.Status == Success {
				c.ExplanationAudio = Artifact[string]{}
			}
			if c.Image.Status == Success {
				c.Image = Artifact[string]{}
			}
			inner[t] = c
		}
		out.Content[ch] = inner
	}
	return out
}

// Settled returns a copy with every in-flight artifact reset to Idle. A
// persisted Loading status has no request behind it.
func (s State) Settled() State {
	out := s.clone()
	for ch, topics := range out.Content {
		inner := make(map[string]TopicContent, len(topics))
		for t, c := range topics {
			inner[t] = c.settle()
		}
		out.Content[ch] = inner
	}
	return out
}
