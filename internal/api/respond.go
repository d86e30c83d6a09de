package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/p-n-ai/muse/internal/chat"
	"github.com/p-n-ai/muse/internal/content"
	"github.com/p-n-ai/muse/internal/feedback"
	"github.com/p-n-ai/muse/internal/study"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps an operation error to its HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= 500 {
		slog.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func statusOf(err error) int {
	var pe *content.ProviderError
	switch {
	case errors.Is(err, study.ErrInvalidLearner),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, feedback.ErrInvalid),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, study.ErrUnknownCourse),
		errors.Is(err, study.ErrUnknownChapter),
		errors.Is(err, study.ErrUnknownTopic),
		errors.Is(err, study.ErrUnknownArtifact),
		errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, study.ErrCourseSelected),
		errors.Is(err, study.ErrNoCourse),
		errors.Is(err, study.ErrNoChapter),
		errors.Is(err, study.ErrAnswerRequired),
		errors.Is(err, study.ErrSuperseded),
		errors.Is(err, chat.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, feedback.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &pe):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// writeSSE writes one server-sent event.
func writeSSE(w http.ResponseWriter, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
