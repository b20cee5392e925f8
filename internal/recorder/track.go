package recorder

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/frostbyte73/core"
)

// EncoderState is the lifecycle of one encoder within a recording run.
type EncoderState int

const (
	StateIdle EncoderState = iota
	StateRecording
	StateFinalizing
	StateDone
)

func (s EncoderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// track is one encoder of a run plus its chunk buffer. Each track has its own
// lock so the two encoders never contend.
type track struct {
	name string
	enc  Encoder

	mu        sync.Mutex
	state     EncoderState
	chunks    [][]byte
	startedAt time.Time
	discard   bool

	done core.Fuse
}

func newTrack(name string, enc Encoder) *track {
	return &track{name: name, enc: enc, state: StateIdle}
}

// start moves Idle → Recording and starts the encoder. finalize runs once on
// its own goroutine when the encoder reports it has stopped.
func (t *track) start(finalize func(*track, error)) error {
	t.mu.Lock()
	t.state = StateRecording
	t.startedAt = time.Now()
	t.mu.Unlock()

	var once sync.Once
	onStop := func(err error) {
		once.Do(func() {
			t.mu.Lock()
			if t.state == StateRecording {
				t.state = StateFinalizing
			}
			t.mu.Unlock()
			go finalize(t, err)
		})
	}

	if err := t.enc.Start(t.append, onStop); err != nil {
		t.mu.Lock()
		t.state = StateDone
		t.mu.Unlock()
		t.done.Break()
		return err
	}
	return nil
}

func (t *track) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)

	t.mu.Lock()
	if t.state == StateRecording || t.state == StateFinalizing {
		t.chunks = append(t.chunks, c)
	}
	t.mu.Unlock()
}

// stop requests Recording → Finalizing. Any other state is left alone.
func (t *track) stop() {
	t.mu.Lock()
	if t.state != StateRecording {
		t.mu.Unlock()
		return
	}
	t.state = StateFinalizing
	t.mu.Unlock()

	t.enc.Stop()
}

// abort stops the encoder and drops its output.
func (t *track) abort() {
	t.mu.Lock()
	t.discard = true
	t.mu.Unlock()
	t.stop()
}

// assemble concatenates the buffered chunks in arrival order.
func (t *track) assemble() (Artifact, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a := Artifact{
		Name:      t.name,
		MediaType: t.enc.MediaType(),
		Data:      bytes.Join(t.chunks, nil),
		Chunks:    len(t.chunks),
		StartedAt: t.startedAt,
		StoppedAt: time.Now(),
	}
	return a, !t.discard
}

func (t *track) markDone() {
	t.mu.Lock()
	t.state = StateDone
	t.chunks = nil
	t.mu.Unlock()
	t.done.Break()
}

func (t *track) State() EncoderState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
