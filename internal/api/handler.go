// Package api exposes study sessions over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/p-n-ai/muse/internal/chat"
	"github.com/p-n-ai/muse/internal/content"
	"github.com/p-n-ai/muse/internal/export"
	"github.com/p-n-ai/muse/internal/feedback"
	"github.com/p-n-ai/muse/internal/state"
	"github.com/p-n-ai/muse/internal/study"
)

// Deps holds the collaborators of the HTTP surface.
type Deps struct {
	Manager  *study.Manager
	Feedback *feedback.Client
}

type handler struct {
	deps Deps
}

// NewHandler returns the HTTP handler with every route registered.
func NewHandler(deps Deps) http.Handler {
	h := &handler{deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
	mux.HandleFunc("GET /api/v1/catalog", h.catalog)
	mux.HandleFunc("GET /api/v1/catalog/subjects", h.subjects)
	mux.HandleFunc("GET /api/v1/catalog/subjects/{subject}/standards", h.standards)
	mux.HandleFunc("GET /api/v1/catalog/subjects/{subject}/standards/{standard}/chapters", h.chapters)
	mux.HandleFunc("POST /api/v1/feedback", h.submitFeedback)

	const learner = "/api/v1/learners/{learner}"
	mux.HandleFunc("GET "+learner+"/state", h.withSession(h.snapshot))
	mux.HandleFunc("PUT "+learner+"/course", h.withSession(h.selectCourse))
	mux.HandleFunc("DELETE "+learner+"/course", h.withSession(h.changeCourse))
	mux.HandleFunc("PUT "+learner+"/chapter", h.withSession(h.selectChapter))
	mux.HandleFunc("POST "+learner+"/topics", h.withSession(h.moreTopics))
	mux.HandleFunc("PUT "+learner+"/topic", h.withSession(h.selectTopic))
	mux.HandleFunc("POST "+learner+"/artifacts/{kind}", h.withSession(h.requestArtifact))
	mux.HandleFunc("GET "+learner+"/audio.wav", h.withSession(h.audio))
	mux.HandleFunc("POST "+learner+"/unit-test", h.withSession(h.generateUnitTest))
	mux.HandleFunc("GET "+learner+"/unit-test", h.withSession(h.unitTest))
	mux.HandleFunc("GET "+learner+"/unit-test.xlsx", h.withSession(h.unitTestWorkbook))
	mux.HandleFunc("GET "+learner+"/chat", h.withSession(h.chatHistory))
	mux.HandleFunc("POST "+learner+"/chat", h.withSession(h.sendChat))
	mux.HandleFunc("GET "+learner+"/chat/ws", h.withSession(h.chatSocket))
	mux.HandleFunc("GET "+learner+"/theme", h.withSession(h.theme))
	mux.HandleFunc("PUT "+learner+"/theme", h.withSession(h.setTheme))

	return recoverPanics(accessLog(mux))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *study.Session)

func (h *handler) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.deps.Manager.Session(r.Context(), r.PathValue("learner"))
		if err != nil {
			writeFailure(w, err)
			return
		}
		next(w, r, s)
	}
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Manager.HealthCheck(r.Context()); err != nil {
		slog.Warn("storage not ready", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handler) catalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Manager.Catalog().Catalog())
}

func (h *handler) subjects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"subjects": h.deps.Manager.Catalog().Subjects()})
}

func (h *handler) standards(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	if _, ok := h.deps.Manager.Catalog().Subject(subject); !ok {
		writeFailure(w, fmt.Errorf("%w: subject %q", errNotFound, subject))
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"standards": h.deps.Manager.Catalog().Standards(subject)})
}

func (h *handler) chapters(w http.ResponseWriter, r *http.Request) {
	subject, standard := r.PathValue("subject"), r.PathValue("standard")
	catalog := h.deps.Manager.Catalog()
	if !catalog.HasCourse(subject, standard) {
		writeFailure(w, fmt.Errorf("%w: course %q, %q", errNotFound, subject, standard))
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"chapters": catalog.Chapters(subject, standard)})
}

func (h *handler) snapshot(w http.ResponseWriter, _ *http.Request, s *study.Session) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// reply writes the session snapshot, or the error of the operation.
func reply(w http.ResponseWriter, s *study.Session, err error) {
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *handler) selectCourse(w http.ResponseWriter, r *http.Request, s *study.Session) {
	var body struct {
		Subject  string `json:"subject"`
		Standard string `json:"standard"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, err)
		return
	}
	reply(w, s, s.SelectCourse(r.Context(), body.Subject, body.Standard))
}

func (h *handler) changeCourse(w http.ResponseWriter, r *http.Request, s *study.Session) {
	reply(w, s, s.ChangeCourse(r.Context()))
}

func (h *handler) selectChapter(w http.ResponseWriter, r *http.Request, s *study.Session) {
	var body struct {
		Chapter string `json:"chapter"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, err)
		return
	}
	reply(w, s, s.SelectChapter(r.Context(), body.Chapter))
}

func (h *handler) moreTopics(w http.ResponseWriter, r *http.Request, s *study.Session) {
	reply(w, s, s.FetchMoreTopics(r.Context()))
}

func (h *handler) selectTopic(w http.ResponseWriter, r *http.Request, s *study.Session) {
	var body struct {
		Topic string `json:"topic"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, err)
		return
	}
	reply(w, s, s.SelectTopic(r.Context(), body.Topic))
}

func (h *handler) requestArtifact(w http.ResponseWriter, r *http.Request, s *study.Session) {
	var body struct {
		Topic string `json:"topic"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, err)
		return
	}
	c, err := s.RequestArtifact(r.Context(), state.Kind(r.PathValue("kind")), body.Topic)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) audio(w http.ResponseWriter, r *http.Request, s *study.Session) {
	snap := s.Snapshot()
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = snap.SelectedTopic
	}
	c, ok := snap.ContentOf(snap.SelectedChapter, topic)
	if !ok || c.ExplanationAudio.Status != state.Success {
		writeFailure(w, fmt.Errorf("%w: no audio for this topic", errNotFound))
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(c.ExplanationAudio.Data)
	if err != nil {
		writeFailure(w, fmt.Errorf("decode audio: %w", err))
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(content.PCMToWAV(pcm))
}

type unitTestResponse struct {
	Chapter  string `json:"chapter"`
	UnitTest any    `json:"unitTest"`
}

func (h *handler) generateUnitTest(w http.ResponseWriter, r *http.Request, s *study.Session) {
	ut, err := s.GenerateUnitTest(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	chapter, _ := s.UnitTest()
	writeJSON(w, http.StatusOK, unitTestResponse{Chapter: chapter, UnitTest: ut})
}

func (h *handler) unitTest(w http.ResponseWriter, _ *http.Request, s *study.Session) {
	chapter, ut := s.UnitTest()
	writeJSON(w, http.StatusOK, unitTestResponse{Chapter: chapter, UnitTest: ut})
}

func (h *handler) unitTestWorkbook(w http.ResponseWriter, _ *http.Request, s *study.Session) {
	chapter, ut := s.UnitTest()
	if ut.Status != state.Success {
		writeFailure(w, fmt.Errorf("%w: no unit test has been generated", errNotFound))
		return
	}
	var buf bytes.Buffer
	if err := export.WriteUnitTest(&buf, chapter, ut.Data); err != nil {
		writeFailure(w, fmt.Errorf("export unit test: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName(chapter)+"-unit-test.xlsx"))
	w.Write(buf.Bytes())
}

// fileName reduces a chapter title to a safe download name.
func fileName(chapter string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(chapter) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	if name == "" {
		return "chapter"
	}
	return name
}

func (h *handler) chatHistory(w http.ResponseWriter, r *http.Request, s *study.Session) {
	conv, err := s.Chat(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":  conv.History(),
		"streaming": conv.Streaming(),
		"chapter":   conv.Chapter(),
	})
}

// sendChat streams the reply as server-sent events: one "fragment" event per
// piece, then "done" or "error". Errors raised before streaming starts are
// plain JSON errors.
func (h *handler) sendChat(w http.ResponseWriter, r *http.Request, s *study.Session) {
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	err := s.SendChat(r.Context(), body.Message, func(frag string) {
		start()
		if err := writeSSE(w, "fragment", map[string]string{"text": frag}); err == nil {
			flusher.Flush()
		}
	})

	var se *chat.StreamError
	switch {
	case err == nil:
		start()
		writeSSE(w, "done", map[string]bool{"done": true})
	case errors.As(err, &se):
		start()
		if !errors.Is(err, context.Canceled) {
			writeSSE(w, "error", map[string]string{"message": se.Err.Error()})
		}
	case started:
		writeSSE(w, "error", map[string]string{"message": err.Error()})
	default:
		writeFailure(w, err)
		return
	}
	flusher.Flush()
}

func (h *handler) chatSocket(w http.ResponseWriter, r *http.Request, s *study.Session) {
	chat.ServeSocket(w, r, s)
}

// prefersDark reads the client colour scheme hint.
func prefersDark(r *http.Request) bool {
	v := strings.Trim(r.Header.Get("Sec-CH-Prefers-Color-Scheme"), `" `)
	return strings.EqualFold(v, "dark")
}

func (h *handler) theme(w http.ResponseWriter, r *http.Request, s *study.Session) {
	w.Header().Set("Accept-CH", "Sec-CH-Prefers-Color-Scheme")
	w.Header().Add("Vary", "Sec-CH-Prefers-Color-Scheme")
	writeJSON(w, http.StatusOK, map[string]state.Theme{"theme": s.Theme(r.Context(), prefersDark(r))})
}

// setTheme stores the given theme, or flips the current one when the body
// asks to toggle.
func (h *handler) setTheme(w http.ResponseWriter, r *http.Request, s *study.Session) {
	var body struct {
		Theme  string `json:"theme"`
		Toggle bool   `json:"toggle"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, err)
		return
	}

	if body.Toggle {
		writeJSON(w, http.StatusOK, map[string]state.Theme{"theme": s.ToggleTheme(r.Context(), prefersDark(r))})
		return
	}
	theme, err := state.ParseTheme(body.Theme)
	if err != nil {
		writeFailure(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.SetTheme(r.Context(), theme)
	writeJSON(w, http.StatusOK, map[string]state.Theme{"theme": theme})
}

func (h *handler) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var sub feedback.Submission
	if err := decodeJSON(w, r, &sub); err != nil {
		writeFailure(w, err)
		return
	}
	status, err := h.deps.Feedback.Submit(r.Context(), sub)
	if err != nil {
		code := statusOf(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadGateway
		}
		writeJSON(w, code, map[string]string{"status": string(status), "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
