package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
)

func TestWatcherConvert(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)
	watcher, err := NewWatcher(WatcherConfig{Store: store, Bucket: "local"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })

	filePath := writeFile(t, root, "data/human_members/rin.yml", "name: Rin\n")
	hiddenPath := writeFile(t, root, "data/human_members/.rin.yml.swp", "x")
	literalPath := writeFile(t, root, "data/human_members/りん 1.yml", "name: Rin\n")

	tests := []struct {
		name         string
		event        fsnotify.Event
		expectChange bool
		expectedName string
		expectedKey  string
	}{
		{name: "create", event: fsnotify.Event{Name: filePath, Op: fsnotify.Create}, expectChange: true, expectedName: events.EventObjectCreatedPut, expectedKey: "data/human_members/rin.yml"},
		{name: "write", event: fsnotify.Event{Name: filePath, Op: fsnotify.Write}, expectChange: true, expectedName: events.EventObjectCreatedPut, expectedKey: "data/human_members/rin.yml"},
		{name: "remove", event: fsnotify.Event{Name: filepath.Join(root, "data/human_members/gone.yml"), Op: fsnotify.Remove}, expectChange: true, expectedName: events.EventObjectRemovedDelete, expectedKey: "data/human_members/gone.yml"},
		{name: "chmod", event: fsnotify.Event{Name: filePath, Op: fsnotify.Chmod}},
		{name: "hidden", event: fsnotify.Event{Name: hiddenPath, Op: fsnotify.Write}},
		{name: "directory", event: fsnotify.Event{Name: filepath.Join(root, "data"), Op: fsnotify.Create}},
		{name: "non-ascii", event: fsnotify.Event{Name: literalPath, Op: fsnotify.Create}, expectChange: true, expectedName: events.EventObjectCreatedPut, expectedKey: "data/human_members/りん 1.yml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, ok := watcher.convert(tt.event)
			if !tt.expectChange {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.expectedName, change.EventName)
			assert.Equal(t, tt.expectedKey, change.ObjectName)
			assert.True(t, change.KeyDecoded)
			assert.Equal(t, "local", change.BucketName)
			if tt.expectedName == events.EventObjectCreatedPut {
				assert.NotEmpty(t, change.ETag)
				assert.Positive(t, change.Size)
			}
		})
	}
}

func TestWatcherRunDeliversEvents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/human_members/.keep", "")
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)
	watcher, err := NewWatcher(WatcherConfig{Store: store})
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan events.ChangeEvent, 8)
	go func() {
		_ = watcher.Run(ctx, func(_ context.Context, change events.ChangeEvent) {
			received <- change
		})
	}()

	writeFile(t, root, "data/human_members/rin.yml", "name: Rin\n")

	select {
	case change := <-received:
		assert.Equal(t, "data/human_members/rin.yml", change.ObjectName)
		assert.True(t, change.IsCreation())
	case <-ctx.Done():
		t.Fatalf("expected a change event before the deadline")
	}
}
