// Package cache provides a local blob store for downloaded file content.
//
// Blobs live as files under a directory, bounded by a size ceiling with
// least-recently-used eviction. Pinned blobs are never evicted; a blob that
// is being shown to the user stays pinned until it is released. The entry
// index is kept in index.json so a later process sees the same cache.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for keys that are not cached.
var ErrNotFound = errors.New("blob not cached")

// Entry describes one cached blob.
type Entry struct {
	Key         string    `json:"key"`
	LocalPath   string    `json:"local_path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	LastAccess  time.Time `json:"last_access"`
	Pinned      bool      `json:"pinned,omitempty"`
}

const indexFile = "index.json"

// Cache manages locally cached blobs.
type Cache struct {
	dir     string
	maxSize int64 // 0 means unbounded

	mu      sync.RWMutex
	entries map[string]*Entry
	size    int64
}

// New creates a cache rooted at dir and restores the entries a previous
// process left there.
func New(dir string, maxSize int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &Cache{
		dir:     dir,
		maxSize: maxSize,
		entries: make(map[string]*Entry),
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadIndex restores entries whose blob files still exist. A corrupt index
// starts the cache empty.
func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(c.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache index: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	for _, e := range entries {
		if _, err := os.Stat(e.LocalPath); err != nil {
			continue
		}
		c.entries[e.Key] = &e
		c.size += e.Size
	}
	return nil
}

// saveLocked writes the index. Must be called with lock held. A failed
// write only costs the next process its view of the cache.
func (c *Cache) saveLocked() {
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, *entry)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	path := filepath.Join(c.dir, indexFile)
	if err := os.WriteFile(path+".tmp", data, 0o600); err != nil {
		return
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		os.Remove(path + ".tmp")
	}
}

// Put stores the content of r under key, replacing any previous blob, and
// returns a copy of the new entry. The blob is written to a temp file and
// renamed into place.
func (c *Cache) Put(key string, r io.Reader, contentType string) (Entry, error) {
	// Blob file names are opaque so keys never touch the filesystem.
	localPath := filepath.Join(c.dir, uuid.NewString())
	tempPath := localPath + ".tmp"

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return Entry{}, fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempPath)
		return Entry{}, fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return Entry{}, fmt.Errorf("rename temp file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.remove(key, old)
	}
	for c.maxSize > 0 && c.size+written > c.maxSize {
		if !c.evictOldest() {
			break
		}
	}

	entry := &Entry{
		Key:         key,
		LocalPath:   localPath,
		ContentType: contentType,
		Size:        written,
		LastAccess:  time.Now(),
	}
	c.entries[key] = entry
	c.size += written
	c.saveLocked()
	return *entry, nil
}

// Get returns a copy of the entry for key.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	entry.LastAccess = time.Now()
	return *entry, true
}

// Open returns a reader over the blob stored under key.
func (c *Cache) Open(key string) (io.ReadCloser, error) {
	entry, ok := c.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	f, err := os.Open(entry.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Evict removes an unpinned blob. Missing keys are not an error.
func (c *Cache) Evict(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if entry.Pinned {
		return fmt.Errorf("cannot evict pinned blob: %s", key)
	}
	c.remove(key, entry)
	c.saveLocked()
	return nil
}

// Release removes a blob whether or not it is pinned.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.remove(key, entry)
		c.saveLocked()
	}
}

// Pin marks a blob to never be evicted.
func (c *Cache) Pin(key string) error {
	return c.setPinned(key, true)
}

// Unpin allows a blob to be evicted.
func (c *Cache) Unpin(key string) error {
	return c.setPinned(key, false)
}

func (c *Cache) setPinned(key string, pinned bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	entry.Pinned = pinned
	c.saveLocked()
	return nil
}

// remove drops an entry and its file. Must be called with lock held.
func (c *Cache) remove(key string, entry *Entry) {
	os.Remove(entry.LocalPath)
	c.size -= entry.Size
	delete(c.entries, key)
}

// evictOldest removes the least recently used unpinned blob.
// Must be called with lock held.
func (c *Cache) evictOldest() bool {
	var oldest *Entry
	for _, entry := range c.entries {
		if entry.Pinned {
			continue
		}
		if oldest == nil || entry.LastAccess.Before(oldest.LastAccess) {
			oldest = entry
		}
	}
	if oldest == nil {
		return false
	}
	c.remove(oldest.Key, oldest)
	return true
}

// Stats returns cache statistics.
func (c *Cache) Stats() (size, maxSize int64, count int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size, c.maxSize, len(c.entries)
}

// List returns copies of all entries, most recently used first.
func (c *Cache) List() []Entry {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, *entry)
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.After(entries[j].LastAccess)
	})
	return entries
}

// Clear removes all unpinned blobs and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, entry := range c.entries {
		if entry.Pinned {
			continue
		}
		c.remove(key, entry)
		count++
	}
	c.saveLocked()
	return count
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}
