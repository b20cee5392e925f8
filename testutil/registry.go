package testutil

import (
	"errors"
	"fmt"
	"sync"
)

// MemoryRegistry is an upload.Registry that records every create and revoke.
type MemoryRegistry struct {
	mu        sync.Mutex
	next      int
	live      map[string]string
	created   []string
	revoked   []string
	CreateErr error
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{live: make(map[string]string)}
}

func (r *MemoryRegistry) CreateResourceURL(path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return "", r.CreateErr
	}
	r.next++
	url := fmt.Sprintf("blob:test/%d", r.next)
	r.live[url] = path
	r.created = append(r.created, url)
	return url, nil
}

func (r *MemoryRegistry) RevokeResourceURL(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[url]; !ok {
		return errors.New("unknown or already revoked url " + url)
	}
	delete(r.live, url)
	r.revoked = append(r.revoked, url)
	return nil
}

// Outstanding returns URLs created and not revoked.
func (r *MemoryRegistry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *MemoryRegistry) Created() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.created...)
}

func (r *MemoryRegistry) Revoked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.revoked...)
}
