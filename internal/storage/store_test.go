package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, key, content string) string {
	t.Helper()
	target := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte(content), 0o644))
	return target
}

func TestFilesystemStore_ReadAndList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/samples/human_members/rin.yml", "name: Rin\n")
	writeFile(t, root, "data/samples/human_members/notes.txt", "ignore me")
	writeFile(t, root, "data/samples/human_members/.hidden.yml", "name: Hidden\n")
	writeFile(t, root, "data/samples/virtual_members/kasen.yaml", "name: Kasen\n")

	store, err := NewFilesystemStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	content, err := store.ReadObject(ctx, "data/samples/human_members/rin.yml")
	require.NoError(t, err)
	assert.Equal(t, "name: Rin\n", string(content))

	listed, err := ListYAML(ctx, store, "data/samples/human_members/")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "data/samples/human_members/rin.yml", listed[0].Key)
	assert.Equal(t, ContentETag([]byte("name: Rin\n")), listed[0].ETag)
	assert.Equal(t, int64(len("name: Rin\n")), listed[0].Size)

	all, err := ListYAML(ctx, store, "data/")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	missing, err := ListYAML(ctx, store, "data/test_cases/human_members/")
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, store.Ping(ctx))
}

func TestFilesystemStore_NotFoundAndTraversal(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.ReadObject(context.Background(), "data/human_members/absent.yml")
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	_, err = store.ReadObject(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, errKeyEscapes)

	_, err = NewFilesystemStore("  ")
	assert.ErrorIs(t, err, errMissingRoot)
}

type countingStore struct {
	reads int
	lists int
}

func (c *countingStore) ReadObject(context.Context, string) ([]byte, error) {
	c.reads++
	return []byte("name: A\n"), nil
}

func (c *countingStore) ListObjects(context.Context, string, []string) ([]ObjectInfo, error) {
	c.lists++
	return nil, nil
}

func (c *countingStore) Ping(context.Context) error {
	return nil
}

func TestNewRateLimited(t *testing.T) {
	store := &countingStore{}
	assert.Same(t, ObjectStore(store), NewRateLimited(store, RateLimitConfig{}))

	limited := NewRateLimited(store, RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	_, err := limited.ReadObject(context.Background(), "data/human_members/a.yml")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.ListObjects(ctx, "data/human_members/", DefaultYAMLSuffixes)
	assert.Error(t, err, "listing must share the read's token bucket")
	assert.Equal(t, 1, store.reads)
	assert.Zero(t, store.lists)

	assert.NoError(t, limited.Ping(context.Background()))
}

func TestNewMinIOStore_ValidatesConfig(t *testing.T) {
	_, err := NewMinIOStore(MinIOConfig{Bucket: "vecr-storage"})
	assert.ErrorIs(t, err, errMissingEndpoint)

	_, err = NewMinIOStore(MinIOConfig{Endpoint: "localhost:9000"})
	assert.ErrorIs(t, err, errMissingBucket)

	store, err := NewMinIOStore(MinIOConfig{Endpoint: "localhost:9000", Bucket: "vecr-storage"})
	require.NoError(t, err)
	assert.Equal(t, "vecr-storage", store.Bucket())
	assert.Equal(t, defaultMinIOTimeout, store.timeout)
}

func TestTranslateMinIOError(t *testing.T) {
	err := translateMinIOError("data/human_members/a.yml", minio.ErrorResponse{Code: "NoSuchKey"})
	assert.ErrorIs(t, err, ErrObjectNotFound)

	cause := errors.New("connection refused")
	err = translateMinIOError("data/human_members/a.yml", cause)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}
