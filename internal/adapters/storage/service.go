// Package storage archives inbound media in an S3-compatible bucket.
package storage

import (
	"context"
	"io"
	"time"
)

// PresignedURL is a time-limited read link to an archived object.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Object is one upload.
type Object struct {
	Folder      string
	FileName    string
	ContentType string
	Body        io.Reader
	Size        int64
	// Metadata is stored as user metadata on the object.
	Metadata map[string]string
}

// MediaStore is the bucket the media archiver writes to.
type MediaStore interface {
	EnsureBucket(ctx context.Context) error
	// Put stores obj under a unique key inside obj.Folder and returns the key.
	Put(ctx context.Context, obj Object) (string, error)
	PresignGet(ctx context.Context, fileKey string) (*PresignedURL, error)
	ValidateContentType(contentType string) error
	ValidateFileSize(sizeBytes int64) error
	MaxFileSize() int64
}
