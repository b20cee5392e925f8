package testutil

import (
	"errors"
	"sync"

	"github.com/tiroq/dualcap/internal/recorder"
	"github.com/tiroq/dualcap/internal/source"
)

// FakeEncoder lets a test drive chunk and stop callbacks by hand.
type FakeEncoder struct {
	Handle    *source.Handle
	mediaType string
	startErr  error

	mu      sync.Mutex
	onChunk func([]byte)
	onStop  func(error)
	started bool
	stops   int
	// AutoFinish makes Stop report completion immediately.
	autoFinish bool
}

func (e *FakeEncoder) MediaType() string { return e.mediaType }

func (e *FakeEncoder) Start(onChunk func([]byte), onStop func(error)) error {
	if e.startErr != nil {
		return e.startErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("already started")
	}
	e.onChunk, e.onStop, e.started = onChunk, onStop, true
	return nil
}

func (e *FakeEncoder) Stop() {
	e.mu.Lock()
	e.stops++
	auto := e.autoFinish
	e.mu.Unlock()
	if auto {
		e.Finish(nil)
	}
}

// Chunk delivers b as if the encoder produced it.
func (e *FakeEncoder) Chunk(b []byte) {
	e.mu.Lock()
	fn := e.onChunk
	e.mu.Unlock()
	if fn != nil {
		fn(b)
	}
}

// Finish reports the terminal stop event.
func (e *FakeEncoder) Finish(err error) {
	e.mu.Lock()
	fn := e.onStop
	e.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (e *FakeEncoder) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func (e *FakeEncoder) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

// FakeEncoderProvider hands out FakeEncoders and remembers them.
type FakeEncoderProvider struct {
	MediaType  string
	AutoFinish bool
	// FailOn makes NewEncoder fail for the n-th call (1-based).
	FailOn   int
	StartErr error

	mu       sync.Mutex
	calls    int
	encoders []*FakeEncoder
}

func NewFakeEncoderProvider() *FakeEncoderProvider {
	return &FakeEncoderProvider{MediaType: "video/webm", AutoFinish: true}
}

func (p *FakeEncoderProvider) NewEncoder(h *source.Handle) (recorder.Encoder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.FailOn == p.calls {
		return nil, errors.New("encoder unavailable")
	}
	if !h.IsLive() {
		return nil, recorder.ErrNotLive
	}
	e := &FakeEncoder{Handle: h, mediaType: p.MediaType, autoFinish: p.AutoFinish, startErr: p.StartErr}
	p.encoders = append(p.encoders, e)
	return e, nil
}

// Encoders returns every encoder created so far.
func (p *FakeEncoderProvider) Encoders() []*FakeEncoder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeEncoder(nil), p.encoders...)
}
