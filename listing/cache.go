package listing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Cache persists the latest merged snapshot as a JSON side file for offline
// inspection. The monitor never reads it back.
type Cache struct {
	Fs   afero.Fs
	Path string
}

// NewCache returns a Cache on the OS filesystem.
func NewCache(path string) *Cache {
	return &Cache{Fs: afero.NewOsFs(), Path: path}
}

// cacheDocument keeps the listing response shape so the file can be diffed
// against a raw API response.
type cacheDocument struct {
	Result bool `json:"result"`
	Page   struct {
		Total int `json:"total"`
	} `json:"page"`
	List      []Entry   `json:"list"`
	Pages     int       `json:"pages"`
	Partial   bool      `json:"partial"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Write replaces the cache file atomically: the document is written to a
// temporary sibling and renamed over the target.
func (c *Cache) Write(s *Snapshot) error {
	doc := cacheDocument{Result: true, List: s.Entries, Pages: s.Pages, Partial: s.Partial, FetchedAt: s.FetchedAt}
	doc.Page.Total = s.Total
	if doc.List == nil {
		doc.List = []Entry{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(c.Path); dir != "" && dir != "." {
		if err := c.Fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp := c.Path + ".tmp"
	if err := afero.WriteFile(c.Fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := c.Fs.Rename(tmp, c.Path); err != nil {
		_ = c.Fs.Remove(tmp)
		return fmt.Errorf("rename cache: %w", err)
	}
	return nil
}

// ReadCache loads the last written snapshot. It returns os.ErrNotExist
// (wrapped) when no cycle has completed yet.
func ReadCache(fs afero.Fs, path string) (*Snapshot, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot cache: %w", err)
	}
	var doc cacheDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot cache: %w", err)
	}
	s := NewSnapshot(doc.List, doc.Page.Total)
	s.Pages = doc.Pages
	s.Partial = doc.Partial
	s.FetchedAt = doc.FetchedAt
	return s, nil
}

// Raw returns the file bytes as written.
func (c *Cache) Raw() ([]byte, error) {
	b, err := afero.ReadFile(c.Fs, c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot cache %s: %w", c.Path, os.ErrNotExist)
		}
		return nil, err
	}
	return b, nil
}
