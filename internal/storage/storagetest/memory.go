// Package storagetest provides an in-memory storage.ObjectStore for tests.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/storage"
)

type memoryObject struct {
	content      []byte
	etag         string
	lastModified time.Time
}

// MemoryStore keeps objects in a map and counts reads.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	pingErr error
	reads   int
}

var _ storage.ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores content under key and returns its ETag.
func (s *MemoryStore) Put(key string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	etag := storage.ContentETag(content)
	s.objects[key] = memoryObject{
		content:      append([]byte(nil), content...),
		etag:         etag,
		lastModified: time.Now().UTC(),
	}
	return etag
}

// Delete removes key.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
}

// SetPingError makes Ping report err; nil restores a healthy store.
func (s *MemoryStore) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// Reads returns how many ReadObject calls were served.
func (s *MemoryStore) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}

func (s *MemoryStore) ReadObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	object, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return append([]byte(nil), object.content...), nil
}

// ListObjects returns stored keys under prefix ending in one of suffixes, in
// key order. An empty suffix list matches every key.
func (s *MemoryStore) ListObjects(ctx context.Context, prefix string, suffixes []string) ([]storage.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var listed []storage.ObjectInfo
	for key, object := range s.objects {
		if !strings.HasPrefix(key, prefix) || !hasSuffix(key, suffixes) {
			continue
		}
		listed = append(listed, storage.ObjectInfo{
			Key:          key,
			ETag:         object.etag,
			Size:         int64(len(object.content)),
			LastModified: object.lastModified,
		})
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Key < listed[j].Key })
	return listed, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

func hasSuffix(key string, suffixes []string) bool {
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
