package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrObjectNotFound indicates that the requested key does not exist in the store.
var ErrObjectNotFound = errors.New("storage: object not found")

// DefaultYAMLSuffixes are the extensions of member profile files.
var DefaultYAMLSuffixes = []string{".yml", ".yaml"}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the object storage port used by the pipeline.
type ObjectStore interface {
	ReadObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string, suffixes []string) ([]ObjectInfo, error)
	Ping(ctx context.Context) error
}

// ListYAML lists member profile files under prefix.
func ListYAML(ctx context.Context, store ObjectStore, prefix string) ([]ObjectInfo, error) {
	return store.ListObjects(ctx, prefix, DefaultYAMLSuffixes)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
}

func matchesSuffix(key string, suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	for _, suffix := range suffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// ContentETag is the hex md5 digest used as the ETag of stored content,
// matching what S3-compatible stores report for single-part uploads.
func ContentETag(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

func normalizeETag(value string) string {
	return strings.Trim(value, `"`)
}
