// Package adapters bridges the conversation engine to infrastructure:
// object storage, speech-to-text, and the constructors the binaries share.
package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"salesbot_backend/internal/adapters/storage"
	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/platform/apperr"
)

// ResolverLookup finds the channel able to open a media reference.
type ResolverLookup interface {
	Get(name string) (channel.Adapter, bool)
}

var defaultContentTypes = map[conversation.MediaKind]string{
	conversation.MediaImage: "image/jpeg",
	conversation.MediaVoice: "audio/ogg",
	conversation.MediaVideo: "video/mp4",
	conversation.MediaFile:  "application/pdf",
}

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"audio/ogg":       ".ogg",
	"audio/opus":      ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"audio/aac":       ".m4a",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/webm":      ".webm",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"application/pdf": ".pdf",
}

// MediaArchiver copies provider-hosted attachments into the media bucket and
// replaces the reference with a presigned URL.
type MediaArchiver struct {
	resolvers ResolverLookup
	store     storage.MediaStore
	now       func() time.Time
}

func NewMediaArchiver(resolvers ResolverLookup, store storage.MediaStore) *MediaArchiver {
	return &MediaArchiver{resolvers: resolvers, store: store, now: time.Now}
}

// Archive implements orchestrator.MediaArchiver.
func (a *MediaArchiver) Archive(ctx context.Context, key conversation.Key, ref conversation.MediaRef) (conversation.MediaRef, error) {
	data, contentType, err := readMedia(ctx, a.resolvers, key, ref, a.store.MaxFileSize())
	if err != nil {
		return ref, err
	}
	if err := a.store.ValidateFileSize(int64(len(data))); err != nil {
		return ref, apperr.Validation(err.Error())
	}
	if err := a.store.ValidateContentType(contentType); err != nil {
		return ref, apperr.Validation(err.Error())
	}

	fileKey, err := a.store.Put(ctx, storage.Object{
		Folder:      path.Join(key.Channel, key.ExternalID, a.now().UTC().Format("2006-01-02")),
		FileName:    string(ref.Kind) + extensionFor(contentType),
		ContentType: contentType,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		Metadata: map[string]string{
			"channel":      key.Channel,
			"conversation": key.String(),
		},
	})
	if err != nil {
		return ref, err
	}
	presigned, err := a.store.PresignGet(ctx, fileKey)
	if err != nil {
		return ref, err
	}

	return conversation.MediaRef{Kind: ref.Kind, URL: presigned.URL, ProviderID: fileKey}, nil
}

// readMedia opens ref through its channel and reads at most maxSize bytes.
func readMedia(ctx context.Context, resolvers ResolverLookup, key conversation.Key, ref conversation.MediaRef, maxSize int64) ([]byte, string, error) {
	adapter, ok := resolvers.Get(key.Channel)
	if !ok {
		return nil, "", apperr.NotFound("unknown channel " + key.Channel)
	}
	resolver, ok := adapter.(channel.MediaResolver)
	if !ok {
		return nil, "", apperr.BadRequest("channel " + key.Channel + " cannot open media")
	}

	body, contentType, err := resolver.OpenMedia(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	reader := io.Reader(body)
	if maxSize > 0 {
		reader = io.LimitReader(body, maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, "", apperr.Validation(fmt.Sprintf("media exceeds %d bytes", maxSize))
	}

	return data, detectContentType(ref.Kind, contentType, data), nil
}

func detectContentType(kind conversation.MediaKind, declared string, data []byte) string {
	normalized := storage.NormalizeContentType(declared)
	if normalized != "" && normalized != "application/octet-stream" {
		return normalized
	}
	if len(data) > 0 {
		if sniffed := storage.NormalizeContentType(http.DetectContentType(data)); sniffed != "application/octet-stream" && sniffed != "text/plain" {
			return sniffed
		}
	}
	if fallback, ok := defaultContentTypes[kind]; ok {
		return fallback
	}
	return "application/octet-stream"
}

func extensionFor(contentType string) string {
	if ext, ok := extensions[storage.NormalizeContentType(contentType)]; ok {
		return ext
	}
	return ".bin"
}
