package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"salesbot_backend/platform/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PresignedURLTTL bounds how long an archived media link stays readable. The
// model fetches images within the turn that references them.
const PresignedURLTTL = time.Hour

// MinIOStore is a MediaStore bound to one bucket.
type MinIOStore struct {
	client      *minio.Client
	bucket      string
	maxFileSize int64
	now         func() time.Time
}

// NewMinIOStore connects to the media bucket named in cfg.
func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}
	if cfg.GetMinIOBucketMedia() == "" {
		return nil, fmt.Errorf("MinIO media bucket is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	return &MinIOStore{
		client:      client,
		bucket:      cfg.GetMinIOBucketMedia(),
		maxFileSize: cfg.GetMinIOMaxFileSize(),
		now:         time.Now,
	}, nil
}

// Bucket returns the bucket name.
func (s *MinIOStore) Bucket() string { return s.bucket }

// EnsureBucket creates the bucket on first start.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinIOStore) Put(ctx context.Context, obj Object) (string, error) {
	fileKey := ObjectKey(obj.Folder, obj.FileName)
	_, err := s.client.PutObject(ctx, s.bucket, fileKey, obj.Body, obj.Size, minio.PutObjectOptions{
		ContentType:  NormalizeContentType(obj.ContentType),
		UserMetadata: obj.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", fileKey, err)
	}
	return fileKey, nil
}

func (s *MinIOStore) PresignGet(ctx context.Context, fileKey string) (*PresignedURL, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, fileKey, PresignedURLTTL, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", fileKey, err)
	}
	return &PresignedURL{
		URL:       u.String(),
		FileKey:   fileKey,
		ExpiresAt: s.now().Add(PresignedURLTTL),
	}, nil
}

func (s *MinIOStore) MaxFileSize() int64 { return s.maxFileSize }

// ObjectKey joins folder and a uniquified fileName so repeated uploads never
// overwrite each other.
func ObjectKey(folder, fileName string) string {
	ext := path.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	return path.Join(folder, fmt.Sprintf("%s_%s%s", base, uuid.New().String()[:8], ext))
}
