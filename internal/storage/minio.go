package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultMinIOTimeout = 10 * time.Second
	minioNoSuchKey      = "NoSuchKey"
	minioNoSuchBucket   = "NoSuchBucket"
)

var (
	errMissingEndpoint = errors.New("storage: endpoint is required")
	errMissingBucket   = errors.New("storage: bucket is required")
)

// MinIOConfig configures the S3-compatible adapter.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Timeout   time.Duration
}

// MinIOStore reads member files from an S3-compatible bucket.
type MinIOStore struct {
	client  *minio.Client
	bucket  string
	timeout time.Duration
}

// NewMinIOStore validates cfg and constructs a MinIOStore. No request is made.
func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errMissingEndpoint
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errMissingBucket
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create minio client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultMinIOTimeout
	}
	return &MinIOStore{client: client, bucket: bucket, timeout: timeout}, nil
}

// Bucket returns the configured bucket name.
func (s *MinIOStore) Bucket() string {
	return s.bucket
}

// ReadObject downloads the whole object stored under key.
func (s *MinIOStore) ReadObject(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinIOError(key, err)
	}
	defer object.Close()

	content, err := io.ReadAll(object)
	if err != nil {
		return nil, translateMinIOError(key, err)
	}
	return content, nil
}

// ListObjects lists every object under prefix whose key ends in one of suffixes.
func (s *MinIOStore) ListObjects(ctx context.Context, prefix string, suffixes []string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var listed []ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", prefix, object.Err)
		}
		if strings.HasSuffix(object.Key, "/") || !matchesSuffix(object.Key, suffixes) {
			continue
		}
		listed = append(listed, ObjectInfo{
			Key:          object.Key,
			ETag:         normalizeETag(object.ETag),
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return listed, nil
}

// Ping checks that the bucket exists and is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage: ping bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("storage: bucket %s does not exist", s.bucket)
	}
	return nil
}

func translateMinIOError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case minioNoSuchKey, minioNoSuchBucket:
		return notFound(key)
	default:
		return fmt.Errorf("storage: read %s: %w", key, err)
	}
}
