package asset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DiskCache persists assets under a directory, one file per asset named by
// the hex content ID, with a JSON sidecar for metadata. It outlives the
// in-memory store for the lifetime of the session's working directory.
type DiskCache struct {
	dir string
}

type diskMeta struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDiskCache creates a DiskCache rooted at dir, creating it if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Store writes the asset's bytes and metadata sidecar. Storing an ID that
// is already on disk is a no-op.
func (c *DiskCache) Store(a *Asset) error {
	path := c.dataPath(a.ID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, a.Bytes, 0644); err != nil {
		return err
	}

	meta := diskMeta{Name: a.Name, Size: a.Size(), CreatedAt: time.Now()}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(c.metaPath(a.ID), data, 0644)
}

// Load reads an asset's bytes back from disk. The metadata sidecar is
// optional; a missing sidecar yields an empty name.
func (c *DiskCache) Load(id ID) ([]byte, string, error) {
	data, err := os.ReadFile(c.dataPath(id))
	if err != nil {
		return nil, "", ErrNotFound
	}

	var name string
	if raw, err := os.ReadFile(c.metaPath(id)); err == nil {
		var meta diskMeta
		if json.Unmarshal(raw, &meta) == nil {
			name = meta.Name
		}
	}
	return data, name, nil
}

// Cleanup removes cached assets older than maxAge.
func (c *DiskCache) Cleanup(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(c.dir, entry.Name()))
		}
	}
	return nil
}

func (c *DiskCache) dataPath(id ID) string {
	return filepath.Join(c.dir, id.String())
}

func (c *DiskCache) metaPath(id ID) string {
	return filepath.Join(c.dir, id.String()+".meta")
}
