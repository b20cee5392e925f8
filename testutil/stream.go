// Package testutil holds fakes for the collaborators dualcap's core consumes:
// capture devices, encoders, artifact sinks, resource registries, playback
// surfaces and a websocket viewer.
package testutil

import (
	"sync"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"
)

// FakeStream is a live stream whose payloads are pushed by the test.
type FakeStream struct {
	id    string
	label string

	mu      sync.RWMutex
	subs    map[int]func([]byte)
	nextSub int
	stops   int

	ended core.Fuse
}

func NewFakeStream(label string) *FakeStream {
	return &FakeStream{id: uuid.NewString(), label: label, subs: make(map[int]func([]byte))}
}

func (s *FakeStream) ID() string    { return s.id }
func (s *FakeStream) Label() string { return s.label }

func (s *FakeStream) Subscribe(fn func([]byte)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Emit delivers b to every subscriber in the calling goroutine.
func (s *FakeStream) Emit(b []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.subs {
		fn(b)
	}
}

func (s *FakeStream) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.ended.Break()
}

// End simulates the device going away without Stop.
func (s *FakeStream) End() {
	s.ended.Break()
}

func (s *FakeStream) Done() <-chan struct{} { return s.ended.Watch() }
func (s *FakeStream) Active() bool          { return !s.ended.IsBroken() }

// Stops returns how many times Stop was called.
func (s *FakeStream) Stops() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stops
}

// Subscribers returns the number of active subscriptions.
func (s *FakeStream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
