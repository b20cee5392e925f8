package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/tiroq/dualcap/internal/source"
)

// ErrPermissionDenied mimics a refused permission prompt.
var ErrPermissionDenied = errors.New("NotAllowedError: permission denied")

// FakeDevices is a scripted capture.DeviceProvider that tracks which live
// handles are currently held.
type FakeDevices struct {
	mu         sync.Mutex
	CameraErr  error
	DisplayErr error
	// CameraGate and DisplayGate, when set, block the matching Acquire
	// until closed or until its ctx is done, modelling an open permission
	// prompt.
	CameraGate  chan struct{}
	DisplayGate chan struct{}

	held     map[*source.Handle]*FakeStream
	acquired []string
	released int
	streams  []*FakeStream
}

func NewFakeDevices() *FakeDevices {
	return &FakeDevices{held: make(map[*source.Handle]*FakeStream)}
}

func (d *FakeDevices) AcquireCameraAndMic(ctx context.Context) (*source.Handle, error) {
	d.mu.Lock()
	err, gate := d.CameraErr, d.CameraGate
	d.mu.Unlock()
	return d.acquire(ctx, "camera", err, gate)
}

func (d *FakeDevices) AcquireDisplay(ctx context.Context) (*source.Handle, error) {
	d.mu.Lock()
	err, gate := d.DisplayErr, d.DisplayGate
	d.mu.Unlock()
	return d.acquire(ctx, "display", err, gate)
}

func (d *FakeDevices) acquire(ctx context.Context, label string, err error, gate chan struct{}) (*source.Handle, error) {
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquired = append(d.acquired, label)
	if err != nil {
		return nil, err
	}
	s := NewFakeStream(label)
	h, _ := source.NewLive(s)
	d.held[h] = s
	d.streams = append(d.streams, s)
	return h, nil
}

func (d *FakeDevices) Release(h *source.Handle) {
	if h == nil {
		return
	}
	d.mu.Lock()
	s, ok := d.held[h]
	delete(d.held, h)
	if ok {
		d.released++
	}
	d.mu.Unlock()
	if ok {
		s.Stop()
	}
}

func (d *FakeDevices) SetErrors(camera, display error) {
	d.mu.Lock()
	d.CameraErr, d.DisplayErr = camera, display
	d.mu.Unlock()
}

// Held returns the number of live handles acquired and not released.
func (d *FakeDevices) Held() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.held)
}

// Acquired returns the acquisition order, failed attempts included.
func (d *FakeDevices) Acquired() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.acquired...)
}

// Streams returns every stream handed out, in order.
func (d *FakeDevices) Streams() []*FakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeStream(nil), d.streams...)
}

// Stream returns the stream behind h, if h was issued by d and is held.
func (d *FakeDevices) Stream(h *source.Handle) *FakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held[h]
}
