package adapters

import (
	"bytes"
	"context"
	"io"

	"salesbot_backend/internal/conversation"
)

// SpeechToText is the audio endpoint of the model provider.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// defaultMaxVoiceBytes matches the upload limit of common transcription APIs.
const defaultMaxVoiceBytes = 25 << 20

// VoiceTranscriber fetches a voice note from its channel and transcribes it.
type VoiceTranscriber struct {
	resolvers ResolverLookup
	stt       SpeechToText
	maxBytes  int64
}

func NewVoiceTranscriber(resolvers ResolverLookup, stt SpeechToText) *VoiceTranscriber {
	return &VoiceTranscriber{resolvers: resolvers, stt: stt, maxBytes: defaultMaxVoiceBytes}
}

// Transcribe implements orchestrator.Transcriber.
func (t *VoiceTranscriber) Transcribe(ctx context.Context, key conversation.Key, ref conversation.MediaRef) (string, error) {
	data, contentType, err := readMedia(ctx, t.resolvers, key, ref, t.maxBytes)
	if err != nil {
		return "", err
	}
	ext := extensionFor(contentType)
	if ext == ".bin" {
		ext = ".ogg"
	}
	return t.stt.Transcribe(ctx, bytes.NewReader(data), "voice"+ext)
}
