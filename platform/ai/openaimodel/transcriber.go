package openaimodel

import (
	"context"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"salesbot_backend/platform/apperr"
)

// Transcriber turns voice notes into text using the audio endpoint of the
// same provider as the chat model.
type Transcriber struct {
	client *openai.Client
	model  string
}

func NewTranscriber(cfg Config) *Transcriber {
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = defaultTranscriptionModel
	}
	return &Transcriber{client: newClient(cfg), model: cfg.TranscriptionModel}
}

// Transcribe reads the whole audio stream. filename only hints the format.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if audio == nil {
		return "", apperr.Validation("audio stream is required")
	}
	if filename == "" {
		filename = "voice.ogg"
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", classify("transcription", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
