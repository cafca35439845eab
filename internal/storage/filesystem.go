package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

var (
	errMissingRoot = errors.New("storage: root directory is required")
	errKeyEscapes  = errors.New("storage: key escapes the storage root")
	errRootNotADir = errors.New("storage: root is not a directory")
)

// FilesystemStore serves objects from a local directory tree. Keys are slash
// separated paths relative to the root; ETags are the MD5 of the content.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore constructs a FilesystemStore rooted at root.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, errMissingRoot
	}
	absolute, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	return &FilesystemStore{root: absolute}, nil
}

// Root returns the absolute root directory.
func (s *FilesystemStore) Root() string {
	return s.root
}

// KeyForPath maps an absolute file path under the root back to its object key.
func (s *FilesystemStore) KeyForPath(filePath string) (string, error) {
	relative, err := filepath.Rel(s.root, filePath)
	if err != nil {
		return "", err
	}
	if relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return "", errKeyEscapes
	}
	return filepath.ToSlash(relative), nil
}

func (s *FilesystemStore) resolve(key string) (string, error) {
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", errKeyEscapes
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// ReadObject reads the file stored under key.
func (s *FilesystemStore) ReadObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return content, nil
}

// ListObjects walks the directory holding prefix and returns matching regular files in key order.
func (s *FilesystemStore) ListObjects(ctx context.Context, prefix string, suffixes []string) ([]ObjectInfo, error) {
	directory := prefix
	if !strings.HasSuffix(directory, "/") {
		directory = path.Dir(directory)
	}
	start, err := s.resolve(directory)
	if err != nil {
		return nil, err
	}

	var listed []ObjectInfo
	walkErr := filepath.WalkDir(start, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			if current != start && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		key, err := s.KeyForPath(current)
		if err != nil {
			return nil
		}
		if !strings.HasPrefix(key, prefix) || !matchesSuffix(key, suffixes) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		content, err := os.ReadFile(current)
		if err != nil {
			return err
		}
		listed = append(listed, ObjectInfo{
			Key:          key,
			ETag:         ContentETag(content),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("storage: list %s: %w", prefix, walkErr)
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Key < listed[j].Key })
	return listed, nil
}

// Ping checks that the root directory exists.
func (s *FilesystemStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return errRootNotADir
	}
	return nil
}
