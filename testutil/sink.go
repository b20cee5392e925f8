package testutil

import (
	"sync"

	"github.com/tiroq/dualcap/internal/recorder"
)

// MemorySink collects offered artifacts.
type MemorySink struct {
	mu        sync.Mutex
	artifacts []recorder.Artifact
	// Err, when set for a name, fails the offer for that artifact.
	Err map[string]error
	// Block, when set for a name, holds the offer until the channel closes.
	Block   map[string]chan struct{}
	offered chan string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		Err:     make(map[string]error),
		Block:   make(map[string]chan struct{}),
		offered: make(chan string, 16),
	}
}

func (s *MemorySink) OfferDownload(a recorder.Artifact) error {
	s.mu.Lock()
	block := s.Block[a.Name]
	err := s.Err[a.Name]
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		s.offered <- a.Name
		return err
	}

	s.mu.Lock()
	s.artifacts = append(s.artifacts, a)
	s.mu.Unlock()
	s.offered <- a.Name
	return nil
}

// Offered is signalled with the artifact name after every offer attempt.
func (s *MemorySink) Offered() <-chan string {
	return s.offered
}

func (s *MemorySink) Artifacts() []recorder.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recorder.Artifact(nil), s.artifacts...)
}

// ByName returns the last artifact offered under name.
func (s *MemorySink) ByName(name string) (recorder.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.artifacts) - 1; i >= 0; i-- {
		if s.artifacts[i].Name == name {
			return s.artifacts[i], true
		}
	}
	return recorder.Artifact{}, false
}
