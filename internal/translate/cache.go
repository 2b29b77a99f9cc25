package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// CacheEntry is one cached translation.
type CacheEntry struct {
	Hash        string    `json:"hash"`
	Original    string    `json:"original"`
	Translation string    `json:"translation"`
	SourceLang  string    `json:"source_lang"`
	TargetLang  string    `json:"target_lang"`
	CreatedAt   time.Time `json:"created_at"`
}

type cacheFile struct {
	Version string       `json:"version"`
	Entries []CacheEntry `json:"entries"`
}

const cacheVersion = "1.0"

// Cache stores translations keyed by (text, source, target) so repeated
// blocks across pages hit the model only once. Optionally persisted to a
// JSON file between runs.
type Cache struct {
	path    string
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// NewCache creates a cache. An empty path keeps it memory-only.
func NewCache(path string) *Cache {
	return &Cache{path: path, entries: make(map[string]CacheEntry)}
}

func cacheKey(text, sourceLang, targetLang string) string {
	h := sha256.New()
	h.Write([]byte(sourceLang))
	h.Write([]byte{0})
	h.Write([]byte(targetLang))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks up a cached translation.
func (c *Cache) Get(text, sourceLang, targetLang string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[cacheKey(text, sourceLang, targetLang)]
	if !ok {
		return "", false
	}
	return entry.Translation, true
}

// Set records a translation.
func (c *Cache) Set(text, translation, sourceLang, targetLang string) {
	key := cacheKey(text, sourceLang, targetLang)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = CacheEntry{
		Hash:        key,
		Original:    text,
		Translation: translation,
		SourceLang:  sourceLang,
		TargetLang:  targetLang,
		CreatedAt:   time.Now().UTC(),
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Load reads the cache file if one exists. A missing file is not an error.
func (c *Cache) Load() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to read translation cache", err)
	}
	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to parse translation cache", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry, len(file.Entries))
	for _, e := range file.Entries {
		c.entries[e.Hash] = e
	}
	logger.Debug("translation cache loaded", logger.Int("entries", len(c.entries)))
	return nil
}

// Save writes the cache file atomically via a temp file rename.
func (c *Cache) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	entries := make([]CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(cacheFile{Version: cacheVersion, Entries: entries}, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to encode translation cache", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create cache directory", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write translation cache", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to replace translation cache", err)
	}
	return nil
}
