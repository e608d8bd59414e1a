package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps all keys in a single JSON object on disk. Reads are served
// from memory until the file's size or modification time changes.
type FileStore struct {
	mu     sync.Mutex
	path   string
	closed bool

	cached  map[string]string
	size    int64
	modTime time.Time
}

var _ Located = (*FileStore)(nil)

// OpenFile returns a store backed by the JSON file at path. The file is
// created lazily on the first Set.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: empty file path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("store: resolve %s: %w", path, err)
	}
	return &FileStore{path: abs}, nil
}

// Path returns the absolute path of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}

	values, err := s.readLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	// Reload from disk to avoid overwriting keys written by other processes.
	values, err := s.readLocked()
	if err != nil {
		return err
	}
	if cur, ok := values[key]; ok && cur == value {
		return nil
	}

	next := make(map[string]string, len(values)+1)
	for k, v := range values {
		next[k] = v
	}
	next[key] = value

	if err := s.writeLocked(next); err != nil {
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cached = nil
	s.mu.Unlock()
	return nil
}

// readLocked returns the decoded file, reusing the cached copy while the file
// metadata is unchanged. A missing file is an empty store.
func (s *FileStore) readLocked() (map[string]string, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.cached = nil
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: stat %s: %w", s.path, err)
	}
	if s.cached != nil && info.Size() == s.size && info.ModTime().Equal(s.modTime) {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	values := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			// A corrupt file is treated as empty; the next Set rewrites it.
			values = map[string]string{}
		}
	}

	s.cached = values
	s.size = info.Size()
	s.modTime = info.ModTime()
	return values, nil
}

// writeLocked writes values via a temp file and rename so readers in other
// processes never observe a partial document.
func (s *FileStore) writeLocked(values map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}

	// Invalidate rather than cache: the next read picks up the new metadata.
	s.cached = nil
	return nil
}
