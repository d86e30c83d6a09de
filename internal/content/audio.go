package content

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"

	"github.com/p-n-ai/muse/internal/ai"
)

// Synthesized speech format.
const (
	SampleRate    = 24000
	Channels      = 1
	BitsPerSample = 16
)

const maxFallbackSummary = 400

// ErrNoSpeaker is returned when no speech provider is configured.
var ErrNoSpeaker = errors.New("speech synthesis is not configured")

// FetchAudioSummary condenses text to one or two sentences and narrates it.
// When summarizing fails the first two sentences are narrated instead. The
// result is base64-encoded raw PCM.
func (s *Service) FetchAudioSummary(ctx context.Context, text, voice string) (string, error) {
	const msg = "Failed to generate audio. The voice model might be temporarily unavailable."
	if s.speaker == nil {
		return "", providerError("audio", msg, ErrNoSpeaker)
	}
	if voice == "" {
		voice = s.voice
	}

	script := s.summarize(ctx, text)

	pcm, err := s.speaker.Synthesize(ctx, script, voice)
	if err == nil && len(pcm) == 0 {
		err = ai.ErrNoAudio
	}
	if err != nil {
		return "", providerError("audio", msg, err)
	}
	return base64.StdEncoding.EncodeToString(pcm), nil
}

func (s *Service) summarize(ctx context.Context, text string) string {
	var out struct {
		Summary string `json:"summary"`
	}
	err := s.generateJSON(ctx, ai.CompletionRequest{
		Messages:    userPrompt(summaryPrompt(text)),
		Task:        ai.TaskSummary,
		Schema:      summarySchema,
		Temperature: 0.3,
	}, &out)
	if err == nil && strings.TrimSpace(out.Summary) != "" {
		return strings.TrimSpace(out.Summary)
	}
	if err == nil {
		err = errEmpty
	}
	slog.Warn("summary failed, narrating opening sentences", "error", err)
	return FallbackSummary(text)
}

// FallbackSummary returns the first two '.'-separated sentences of text,
// terminated by a period and capped at 400 characters plus an ellipsis.
func FallbackSummary(text string) string {
	parts := strings.Split(text, ".")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	summary := strings.TrimSpace(strings.Join(parts, ".")) + "."
	if r := []rune(summary); len(r) > maxFallbackSummary {
		summary = string(r[:maxFallbackSummary]) + "..."
	}
	return summary
}

// PCMToWAV wraps raw little-endian 16-bit PCM in a RIFF/WAVE header so the
// narration can be played directly.
func PCMToWAV(pcm []byte) []byte {
	const headerSize = 44
	byteRate := SampleRate * Channels * BitsPerSample / 8
	blockAlign := Channels * BitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(headerSize-8+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(BitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
