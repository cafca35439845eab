package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
)

var errMissingStore = errors.New("storage: filesystem store is required")

// WatcherConfig describes the dependencies of a Watcher.
type WatcherConfig struct {
	Store  *FilesystemStore
	Bucket string
	Logger *zap.Logger
}

// Watcher turns filesystem notifications under a FilesystemStore root into change events.
type Watcher struct {
	store   *FilesystemStore
	bucket  string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher subscribes to every non-hidden directory under the store root.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	watcher := &Watcher{
		store:   cfg.Store,
		bucket:  cfg.Bucket,
		logger:  logger,
		watcher: notifier,
	}
	if err := watcher.addTree(cfg.Store.Root()); err != nil {
		_ = notifier.Close()
		return nil, err
	}
	return watcher, nil
}

// Run delivers converted events to handle until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, handle func(context.Context, events.ChangeEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fsEvent, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if fsEvent.Has(fsnotify.Create) {
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() && !isHidden(fsEvent.Name) {
					if err := w.addTree(fsEvent.Name); err != nil {
						w.logger.Warn("failed to watch new directory", zap.String("path", fsEvent.Name), zap.Error(err))
					}
					continue
				}
			}
			if change, ok := w.convert(fsEvent); ok {
				handle(ctx, change)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

// Close releases the underlying notifier.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if current != root && isHidden(current) {
			return filepath.SkipDir
		}
		return w.watcher.Add(current)
	})
}

// convert maps a filesystem notification to a storage change event. Chmod,
// directory and hidden file notifications are dropped.
func (w *Watcher) convert(fsEvent fsnotify.Event) (events.ChangeEvent, bool) {
	if isHidden(fsEvent.Name) {
		return events.ChangeEvent{}, false
	}
	key, err := w.store.KeyForPath(fsEvent.Name)
	if err != nil {
		return events.ChangeEvent{}, false
	}
	change := events.ChangeEvent{
		BucketName: w.bucket,
		ObjectName: key,
		KeyDecoded: true,
		EventTime:  time.Now().UTC().Format(time.RFC3339Nano),
	}

	switch {
	case fsEvent.Has(fsnotify.Create), fsEvent.Has(fsnotify.Write):
		info, err := os.Stat(fsEvent.Name)
		if err != nil || info.IsDir() {
			return events.ChangeEvent{}, false
		}
		content, err := os.ReadFile(fsEvent.Name)
		if err != nil {
			return events.ChangeEvent{}, false
		}
		change.EventName = events.EventObjectCreatedPut
		change.ETag = ContentETag(content)
		change.Size = int64(len(content))
		return change, true
	case fsEvent.Has(fsnotify.Remove), fsEvent.Has(fsnotify.Rename):
		change.EventName = events.EventObjectRemovedDelete
		return change, true
	default:
		return events.ChangeEvent{}, false
	}
}

func isHidden(filePath string) bool {
	return strings.HasPrefix(filepath.Base(filePath), ".")
}
