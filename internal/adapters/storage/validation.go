package storage

import (
	"fmt"
	"strings"
)

// AllowedContentTypes defines the inbound media types worth archiving.
var AllowedContentTypes = map[string]bool{
	// Images
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,

	// Voice notes and audio
	"audio/ogg":   true,
	"audio/opus":  true,
	"audio/mpeg":  true,
	"audio/mp4":   true,
	"audio/aac":   true,
	"audio/x-m4a": true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/webm":  true,

	// Video
	"video/mp4":       true,
	"video/webm":      true,
	"video/quicktime": true,

	// Documents
	"application/pdf": true,
}

// NormalizeContentType drops parameters such as charset and lowercases the type.
func NormalizeContentType(contentType string) string {
	normalized := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(normalized))
}

// ValidateContentType checks if the content type is allowed.
func (s *MinIOStore) ValidateContentType(contentType string) error {
	if !AllowedContentTypes[NormalizeContentType(contentType)] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

// ValidateFileSize checks if the file size is within limits.
func (s *MinIOStore) ValidateFileSize(sizeBytes int64) error {
	return validateSize(sizeBytes, s.maxFileSize)
}

func validateSize(sizeBytes, maxFileSize int64) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("file size must be greater than 0")
	}
	if maxFileSize > 0 && sizeBytes > maxFileSize {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d bytes", sizeBytes, maxFileSize)
	}
	return nil
}
