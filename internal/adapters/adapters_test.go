package adapters

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"salesbot_backend/internal/adapters/storage"
	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/platform/apperr"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"
)

type mediaAdapter struct {
	name        string
	body        string
	contentType string
	openErr     error
}

func (a *mediaAdapter) Name() string                                { return a.name }
func (a *mediaAdapter) Verify(http.Header, []byte) error            { return nil }
func (a *mediaAdapter) Normalize([]byte) ([]channel.Inbound, error) { return nil, nil }
func (a *mediaAdapter) Send(context.Context, conversation.Key, string) error {
	return nil
}
func (a *mediaAdapter) OpenMedia(_ context.Context, _ conversation.MediaRef) (io.ReadCloser, string, error) {
	if a.openErr != nil {
		return nil, "", a.openErr
	}
	return io.NopCloser(strings.NewReader(a.body)), a.contentType, nil
}

type plainAdapter struct{ name string }

func (a plainAdapter) Name() string                                         { return a.name }
func (a plainAdapter) Verify(http.Header, []byte) error                     { return nil }
func (a plainAdapter) Normalize([]byte) ([]channel.Inbound, error)          { return nil, nil }
func (a plainAdapter) Send(context.Context, conversation.Key, string) error { return nil }

type fakeObjectStore struct {
	maxSize  int64
	uploaded *storage.Object
	data     string
}

func (s *fakeObjectStore) EnsureBucket(context.Context) error { return nil }

func (s *fakeObjectStore) Put(_ context.Context, obj storage.Object) (string, error) {
	data, _ := io.ReadAll(obj.Body)
	if int64(len(data)) != obj.Size {
		return "", errors.New("size mismatch")
	}
	s.uploaded = &obj
	s.data = string(data)
	return obj.Folder + "/" + obj.FileName, nil
}

func (s *fakeObjectStore) PresignGet(_ context.Context, fileKey string) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "https://media.test/inbound-media/" + fileKey, FileKey: fileKey}, nil
}

func (s *fakeObjectStore) ValidateContentType(contentType string) error {
	if !storage.AllowedContentTypes[storage.NormalizeContentType(contentType)] {
		return errors.New("not allowed")
	}
	return nil
}

func (s *fakeObjectStore) ValidateFileSize(size int64) error {
	if size <= 0 || size > s.maxSize {
		return errors.New("bad size")
	}
	return nil
}

func (s *fakeObjectStore) MaxFileSize() int64 { return s.maxSize }

func newArchiver(adapter channel.Adapter, store *fakeObjectStore) *MediaArchiver {
	a := NewMediaArchiver(channel.NewRegistry(adapter), store)
	a.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return a
}

func TestArchiveUploadsAndReturnsPresignedRef(t *testing.T) {
	store := &fakeObjectStore{maxSize: 1024}
	a := newArchiver(&mediaAdapter{name: "telegram", body: "\xff\xd8\xff\xe0jpegdata", contentType: "image/jpeg"}, store)
	key := conversation.NewKey("telegram", "bot", "1001")

	ref, err := a.Archive(context.Background(), key, conversation.MediaRef{Kind: conversation.MediaImage, ProviderID: "file-1"})
	if err != nil {
		t.Fatalf("expected archive to succeed, got %v", err)
	}
	if store.uploaded == nil || store.uploaded.Folder != "telegram/1001/2026-03-01" || store.uploaded.FileName != "image.jpg" {
		t.Fatalf("unexpected upload %+v", store.uploaded)
	}
	if store.uploaded.Metadata["conversation"] != key.String() {
		t.Fatalf("expected conversation metadata, got %v", store.uploaded.Metadata)
	}
	if ref.Kind != conversation.MediaImage || ref.ProviderID != "telegram/1001/2026-03-01/image.jpg" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if !strings.HasPrefix(ref.URL, "https://media.test/inbound-media/") {
		t.Fatalf("expected presigned url, got %q", ref.URL)
	}
}

func TestArchiveSniffsMissingContentType(t *testing.T) {
	store := &fakeObjectStore{maxSize: 1024}
	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 16)
	a := newArchiver(&mediaAdapter{name: "instagram", body: png, contentType: "application/octet-stream"}, store)

	_, err := a.Archive(context.Background(), conversation.NewKey("instagram", "page", "u1"), conversation.MediaRef{Kind: conversation.MediaImage, URL: "https://cdn.test/x"})
	if err != nil {
		t.Fatalf("expected archive to succeed, got %v", err)
	}
	if store.uploaded == nil || store.uploaded.ContentType != "image/png" {
		t.Fatalf("expected sniffed image/png, got %+v", store.uploaded)
	}
}

func TestArchiveRejectsOversizedMedia(t *testing.T) {
	store := &fakeObjectStore{maxSize: 4}
	a := newArchiver(&mediaAdapter{name: "telegram", body: "0123456789", contentType: "image/jpeg"}, store)
	original := conversation.MediaRef{Kind: conversation.MediaImage, ProviderID: "file-1"}

	ref, err := a.Archive(context.Background(), conversation.NewKey("telegram", "bot", "1"), original)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ref != original {
		t.Fatalf("expected original ref on failure, got %+v", ref)
	}
	if store.uploaded != nil {
		t.Fatal("expected nothing uploaded")
	}
}

func TestArchiveFailsForChannelsWithoutMedia(t *testing.T) {
	store := &fakeObjectStore{maxSize: 1024}
	a := NewMediaArchiver(channel.NewRegistry(plainAdapter{name: "messenger"}), store)

	_, err := a.Archive(context.Background(), conversation.NewKey("messenger", "p", "u"), conversation.MediaRef{Kind: conversation.MediaImage})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}

	_, err = a.Archive(context.Background(), conversation.NewKey("telegram", "b", "u"), conversation.MediaRef{Kind: conversation.MediaImage})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown channel, got %v", err)
	}
}

type fakeSTT struct {
	filename string
	audio    string
	err      error
}

func (f *fakeSTT) Transcribe(_ context.Context, audio io.Reader, filename string) (string, error) {
	data, _ := io.ReadAll(audio)
	f.audio = string(data)
	f.filename = filename
	return "hello there", f.err
}

func TestVoiceTranscriberPassesAudioWithExtension(t *testing.T) {
	tests := []struct {
		contentType string
		filename    string
	}{
		{"audio/ogg", "voice.ogg"},
		{"audio/mpeg", "voice.mp3"},
		{"audio/mp4", "voice.m4a"},
		{"", "voice.ogg"},
	}
	for _, tt := range tests {
		stt := &fakeSTT{}
		tr := NewVoiceTranscriber(channel.NewRegistry(&mediaAdapter{name: "telegram", body: "OggSdata", contentType: tt.contentType}), stt)

		text, err := tr.Transcribe(context.Background(), conversation.NewKey("telegram", "b", "1"), conversation.MediaRef{Kind: conversation.MediaVoice, ProviderID: "v"})
		if err != nil {
			t.Fatalf("%q: expected transcription, got %v", tt.contentType, err)
		}
		if text != "hello there" || stt.audio != "OggSdata" {
			t.Fatalf("%q: unexpected result %q / %q", tt.contentType, text, stt.audio)
		}
		if stt.filename != tt.filename {
			t.Fatalf("%q: expected filename %q, got %q", tt.contentType, tt.filename, stt.filename)
		}
	}
}

func TestVoiceTranscriberPropagatesOpenErrors(t *testing.T) {
	openErr := apperr.Transient("download failed", errors.New("timeout"))
	tr := NewVoiceTranscriber(channel.NewRegistry(&mediaAdapter{name: "telegram", openErr: openErr}), &fakeSTT{})

	_, err := tr.Transcribe(context.Background(), conversation.NewKey("telegram", "b", "1"), conversation.MediaRef{Kind: conversation.MediaVoice})
	if !apperr.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestOwnerKey(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.Config
		valid bool
		want  conversation.Key
	}{
		{
			name: "telegram owner",
			cfg: config.Config{
				OwnerChannel: "telegram",
				Telegram:     config.ChannelSettings{Enabled: true, ScopeID: "bot1", OwnerRecipient: "42"},
			},
			valid: true,
			want:  conversation.NewKey("telegram", "bot1", "42"),
		},
		{
			name: "disabled channel",
			cfg: config.Config{
				OwnerChannel: "messenger",
				Messenger:    config.ChannelSettings{OwnerRecipient: "42"},
			},
		},
		{
			name: "no recipient",
			cfg: config.Config{
				OwnerChannel: "instagram",
				Instagram:    config.ChannelSettings{Enabled: true},
			},
		},
		{
			name: "telegram scope from token",
			cfg: config.Config{
				OwnerChannel: "telegram",
				Telegram:     config.ChannelSettings{Enabled: true, AccessToken: "777:secret", OwnerRecipient: "42"},
			},
			valid: true,
			want:  conversation.NewKey("telegram", "777", "42"),
		},
		{name: "no owner channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			key := OwnerKey(&cfg)
			if key.Valid() != tt.valid {
				t.Fatalf("expected valid=%v, got %+v", tt.valid, key)
			}
			if tt.valid && key != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, key)
			}
		})
	}
}

func TestNewChannelRegistryRegistersEnabledChannels(t *testing.T) {
	cfg := &config.Config{
		Telegram:  config.ChannelSettings{Enabled: true, AccessToken: "123:abc"},
		Messenger: config.ChannelSettings{Enabled: true, AppSecret: "s", AccessToken: "t"},
	}

	names := NewChannelRegistry(cfg, logger.New("development")).Names()
	if len(names) != 2 || names[0] != "messenger" || names[1] != "telegram" {
		t.Fatalf("unexpected channels %v", names)
	}
}

func TestNewConversationBackendFileAndErrors(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewConversationBackend(&config.Config{StoreBackend: config.StoreBackendFile, StoreDir: dir}, nil)
	if err != nil || backend == nil {
		t.Fatalf("expected file backend, got %v", err)
	}
	if _, err := NewConversationBackend(&config.Config{StoreBackend: config.StoreBackendPostgres}, nil); err == nil {
		t.Fatal("expected postgres without a pool to fail")
	}
	if _, err := NewLeadRepository(&config.Config{StoreBackend: "sqlite"}, nil); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
	repo, err := NewLeadRepository(&config.Config{StoreBackend: config.StoreBackendFile, StoreDir: dir}, nil)
	if err != nil || repo == nil {
		t.Fatalf("expected file lead repository, got %v", err)
	}
}

func TestNewRedisClientWithoutURL(t *testing.T) {
	client, err := NewRedisClient(&config.Config{})
	if err != nil || client != nil {
		t.Fatalf("expected no client without url, got %v / %v", client, err)
	}
}
