// Package incremental decides which pages a build must re-render, based on
// content hashing and per-template fan-out tracking. The caches it owns are
// explicit state objects: loaded once at build start, written once at build
// end, and never touched by any other component.
package incremental

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Input keys are namespaced by kind so a template and a page can never
// collide in the hash table.
const (
	KeyConfig         = "config"
	KeyPrefixTemplate = "template/"
	KeyPrefixPage     = "page/"
)

// TemplateKey returns the tracked input key for a namespaced template name.
func TemplateKey(fullName string) string { return KeyPrefixTemplate + fullName }

// PageKey returns the tracked input key for a page URL.
func PageKey(url string) string { return KeyPrefixPage + url }

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the hex SHA-256 of a file's contents.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return HashBytes(data), nil
}

// HashCache is the persisted path→hash table from the previous successful
// build. A missing cache file yields an empty table (everything is dirty).
type HashCache struct {
	path   string
	hashes map[string]string
}

const hashCacheFile = "hashes.json"

// LoadHashCache reads the cache from cacheDir. Unreadable or corrupt files
// degrade to an empty cache rather than failing the build.
func LoadHashCache(cacheDir string) *HashCache {
	c := &HashCache{
		path:   filepath.Join(cacheDir, hashCacheFile),
		hashes: make(map[string]string),
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return c
	}
	var stored map[string]string
	if err := json.Unmarshal(data, &stored); err != nil {
		return c
	}
	c.hashes = stored
	return c
}

// Empty reports whether the cache holds no entries (first build).
func (c *HashCache) Empty() bool { return len(c.hashes) == 0 }

// Lookup returns the cached hash for a tracked input key.
func (c *HashCache) Lookup(key string) (string, bool) {
	h, ok := c.hashes[key]
	return h, ok
}

// Changed reports whether the current hash differs from the cached one.
// Unknown keys count as changed.
func (c *HashCache) Changed(key, current string) bool {
	cached, ok := c.hashes[key]
	return !ok || cached != current
}

// Save replaces the persisted table wholesale with current, using a
// write-new-then-atomic-rename so a crash can never leave a partial file.
func (c *HashCache) Save(current map[string]string) error {
	return writeJSONAtomic(c.path, current)
}

// writeJSONAtomic writes v as JSON next to path and renames it into place.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
