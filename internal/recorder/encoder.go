package recorder

import (
	"errors"

	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/tiroq/dualcap/internal/source"
)

// StreamEncoder records a live stream by collecting the container payloads
// the capture process already produces. The stream is never re-encoded.
type StreamEncoder struct {
	stream    source.Stream
	mediaType string

	started atomic.Bool
	stopped core.Fuse
}

func NewStreamEncoder(stream source.Stream, mediaType string) *StreamEncoder {
	return &StreamEncoder{stream: stream, mediaType: mediaType}
}

func (e *StreamEncoder) MediaType() string {
	return e.mediaType
}

// Start subscribes to the stream. It returns at once; chunks and the final
// onStop arrive on the stream's delivery goroutine and a watcher goroutine.
func (e *StreamEncoder) Start(onChunk func([]byte), onStop func(error)) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("encoder already started")
	}
	if !e.stream.Active() {
		return ErrStreamEnded
	}

	cancel := e.stream.Subscribe(func(b []byte) {
		if e.stopped.IsBroken() {
			return
		}
		onChunk(b)
	})

	go func() {
		var err error
		select {
		case <-e.stopped.Watch():
		case <-e.stream.Done():
			err = ErrStreamEnded
		}
		// cancel waits for an in-flight delivery, so no chunk can follow onStop.
		cancel()
		onStop(err)
	}()
	return nil
}

// Stop is idempotent.
func (e *StreamEncoder) Stop() {
	e.stopped.Break()
}

// StreamEncoderProvider builds a StreamEncoder for live handles.
type StreamEncoderProvider struct {
	MediaType string
}

func (p StreamEncoderProvider) NewEncoder(h *source.Handle) (Encoder, error) {
	switch h.Kind() {
	case source.KindLive:
		return NewStreamEncoder(h.Stream(), p.MediaType), nil
	case source.KindFile:
		return nil, ErrNotLive
	default:
		return nil, ErrNoSource
	}
}
