// Package device turns capture tools into live sources. Each acquired device
// is one child process writing a container stream to stdout; the stream is
// fanned out to every subscriber until the process is killed.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/tiroq/dualcap/internal/metrics"
)

const readSize = 32 * 1024

// ProcessStream is a source.Stream backed by a running capture process.
type ProcessStream struct {
	id     string
	label  string
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *tailBuffer

	// mu serializes delivery with subscription changes, so a cancelled
	// subscriber never sees another chunk.
	mu     sync.Mutex
	subs   map[uint64]func([]byte)
	nextID uint64
	header []byte

	bytesRead atomic.Int64
	stopOnce  sync.Once
	firstData core.Fuse
	done      core.Fuse
	exitErr   error
}

// startProcess launches argv and starts pumping its stdout.
func startProcess(argv []string, label string) (*ProcessStream, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty device command")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	tail := newTailBuffer(2048)
	cmd.Stderr = tail
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	s := &ProcessStream{
		id:     uuid.NewString(),
		label:  label,
		cmd:    cmd,
		cancel: cancel,
		stderr: tail,
		subs:   make(map[uint64]func([]byte)),
	}
	metrics.DeviceProcesses.Inc()
	go s.pump(stdout)
	return s, nil
}

func (s *ProcessStream) pump(r io.Reader) {
	buf := make([]byte, readSize)
	counter := metrics.DeviceBytes.WithLabelValues(s.label)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.bytesRead.Add(int64(n))
			counter.Add(float64(n))
			s.deliver(chunk)
			s.firstData.Break()
		}
		if err != nil {
			break
		}
	}

	werr := s.cmd.Wait()
	s.mu.Lock()
	s.exitErr = werr
	s.mu.Unlock()
	s.cancel()
	metrics.DeviceProcesses.Dec()
	s.done.Break()
}

func (s *ProcessStream) deliver(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		s.header = chunk
	}
	for _, fn := range s.subs {
		fn(chunk)
	}
}

func (s *ProcessStream) ID() string    { return s.id }
func (s *ProcessStream) Label() string { return s.label }

// Subscribe registers fn for every later chunk. A subscriber that joins after
// the first chunk is handed that chunk first, since it carries the container
// header. fn must not call back into the stream.
func (s *ProcessStream) Subscribe(fn func([]byte)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	if s.header != nil {
		fn(s.header)
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Stop kills the capture process. Done closes once it has exited.
func (s *ProcessStream) Stop() {
	s.stopOnce.Do(s.cancel)
}

func (s *ProcessStream) Done() <-chan struct{} { return s.done.Watch() }
func (s *ProcessStream) Active() bool          { return !s.done.IsBroken() }

// BytesRead returns the number of bytes read from the process so far.
func (s *ProcessStream) BytesRead() int64 { return s.bytesRead.Load() }

// Subscribers returns the number of active subscriptions.
func (s *ProcessStream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// exitError describes why the process ended, with the tail of its stderr.
func (s *ProcessStream) exitError() error {
	s.mu.Lock()
	err := s.exitErr
	s.mu.Unlock()
	msg := s.stderr.String()
	switch {
	case err == nil && msg == "":
		return fmt.Errorf("%s exited", s.label)
	case err == nil:
		return fmt.Errorf("%s exited: %s", s.label, msg)
	case msg == "":
		return fmt.Errorf("%s: %w", s.label, err)
	default:
		return fmt.Errorf("%s: %w: %s", s.label, err, msg)
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(trimSpace(b.buf))
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == ' ' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
