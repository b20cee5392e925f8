// Package resource maps user-supplied local files to revocable
// blob:dualcap/<id> URLs the viewer can fetch for playback.
package resource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tiroq/dualcap/internal/metrics"
)

const URLPrefix = "blob:dualcap/"

var (
	ErrUnknownURL = errors.New("resource url not registered or already revoked")
	ErrNotFile    = errors.New("resource is not a regular file")
)

// Entry is a registered file.
type Entry struct {
	URL  string
	Path string
	Size int64
}

// LocalRegistry keeps the url→path table in memory.
type LocalRegistry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	created int
	revoked int
}

func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{entries: make(map[string]Entry)}
}

// CreateResourceURL registers path and returns a fresh URL. Registering the
// same path twice yields two distinct URLs that must each be revoked.
func (r *LocalRegistry) CreateResourceURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", path, ErrNotFile)
	}

	url := URLPrefix + uuid.NewString()

	r.mu.Lock()
	r.entries[url] = Entry{URL: url, Path: abs, Size: info.Size()}
	r.created++
	n := len(r.entries)
	r.mu.Unlock()

	metrics.ResourceURLs.Set(float64(n))
	return url, nil
}

// RevokeResourceURL forgets url. Revoking twice returns ErrUnknownURL.
func (r *LocalRegistry) RevokeResourceURL(url string) error {
	r.mu.Lock()
	if _, ok := r.entries[url]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", url, ErrUnknownURL)
	}
	delete(r.entries, url)
	r.revoked++
	n := len(r.entries)
	r.mu.Unlock()

	metrics.ResourceURLs.Set(float64(n))
	return nil
}

// Resolve returns the entry behind url.
func (r *LocalRegistry) Resolve(url string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[url]
	return e, ok
}

// ResolveID resolves the id part of a blob:dualcap/<id> URL.
func (r *LocalRegistry) ResolveID(id string) (Entry, bool) {
	if strings.Contains(id, "/") {
		return Entry{}, false
	}
	return r.Resolve(URLPrefix + id)
}

// Outstanding returns the number of URLs not yet revoked.
func (r *LocalRegistry) Outstanding() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Counts returns how many URLs were created and revoked over the lifetime.
func (r *LocalRegistry) Counts() (created, revoked int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.created, r.revoked
}

// IDFromURL strips the blob prefix; ok is false for foreign URLs.
func IDFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, URLPrefix) {
		return "", false
	}
	return strings.TrimPrefix(url, URLPrefix), true
}
