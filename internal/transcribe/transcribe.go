// Package transcribe converts voice payloads to text.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/vanilka-ai/bento-assistant/pkg/metrics"
)

// ErrTranscriptionFailed indicates the audio could not be resolved to
// text. The orchestrator replies with a fixed apology and persists
// nothing.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Transcriber converts audio bytes to text. Implementations may block
// for seconds; callers run them off the per-user critical path of other
// users.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// WhisperTranscriber transcribes voice messages with the OpenAI audio
// API.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber creates a transcriber using the given API key
// and Whisper model name.
func NewWhisperTranscriber(apiKey, model string) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperTranscriber{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Transcribe sends the audio to the Whisper API and returns the
// recognized text.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	start := time.Now()

	if format == "" {
		format = "ogg"
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "voice." + format,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		metrics.TranscriptionDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		metrics.TranscriptionDuration.WithLabelValues("empty").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("%w: empty transcript", ErrTranscriptionFailed)
	}

	metrics.TranscriptionDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	return text, nil
}
