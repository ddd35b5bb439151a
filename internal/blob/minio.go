// Package blob stores initiative images in an object bucket.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxImageBytes caps image payloads at 5 MiB.
const MaxImageBytes = 5 << 20

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

// AllowedImageType reports whether mimeType is on the upload allow-list.
func AllowedImageType(mimeType string) bool {
	_, ok := allowedImageTypes[strings.ToLower(strings.TrimSpace(mimeType))]
	return ok
}

// Store is the object-bucket surface the orchestrator depends on.
type Store interface {
	Upload(ctx context.Context, key, mimeType string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
	PublicURL(key string) string
}

// MinioStore implements Store against a MinIO (or any S3-compatible) bucket.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewMinioStore connects to the bucket and creates it if missing.
// publicBase overrides the URL prefix for stored references; when empty
// the client endpoint is used.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket, publicBase string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	if publicBase == "" {
		publicBase = client.EndpointURL().String()
	}
	return &MinioStore{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// Upload stores the payload under key and returns its public reference.
func (s *MinioStore) Upload(ctx context.Context, key, mimeType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) PublicURL(key string) string {
	return s.publicBase + "/" + s.bucket + "/" + key
}

// ObjectKey builds a collision-resistant key from the original filename.
func ObjectKey(filename string) string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitizeFilename(filename))
}

// KeyFromURL recovers the object key from a stored public reference by
// taking the trailing path segment. Returns "" when ref has no path.
func KeyFromURL(ref string) string {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	return segments[len(segments)-1]
}

func sanitizeFilename(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune('-')
		}
	}
	out := sb.String()
	if out == "" {
		out = "image"
	}
	if len(out) > 100 {
		out = out[len(out)-100:]
	}
	return out
}
