package observer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/talbz/holmes-ma/internal/crawl"
)

// SnapshotCache persists the last known snapshot between runs of an
// observer. Only snapshots whose job state is terminal are ever trusted on
// load; the session enforces that rule, the cache just stores bytes.
type SnapshotCache interface {
	Load() (crawl.Snapshot, bool, error)
	Store(snap crawl.Snapshot) error
}

// FileCache stores the snapshot as JSON in a single file.
type FileCache struct {
	path string
}

// NewFileCache creates a cache at path, creating parent directories on the
// first store.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// Load reads the cached snapshot. A missing file is not an error; it simply
// reports no snapshot.
func (c *FileCache) Load() (crawl.Snapshot, bool, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return crawl.Snapshot{}, false, nil
		}
		return crawl.Snapshot{}, false, fmt.Errorf("read snapshot cache: %w", err)
	}
	var snap crawl.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return crawl.Snapshot{}, false, fmt.Errorf("decode snapshot cache: %w", err)
	}
	return snap, true, nil
}

// Store writes the snapshot atomically via a temp file rename.
func (c *FileCache) Store(snap crawl.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace snapshot cache: %w", err)
	}
	return nil
}
