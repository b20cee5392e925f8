package device

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/config"
	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/source"
)

// CommandProvider acquires devices by spawning the configured capture tools.
// A device counts as acquired once its tool has produced output or survived
// the startup grace period; a tool that exits earlier is reported as a
// permission or device error with its stderr attached.
type CommandProvider struct {
	camera  config.DeviceCommand
	display config.DeviceCommand
	grace   time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	streams map[string]*ProcessStream
	handles map[*source.Handle]*ProcessStream
}

func NewCommandProvider(cfg config.DevicesConfig) *CommandProvider {
	return &CommandProvider{
		camera:  cfg.Camera,
		display: cfg.Display,
		grace:   time.Duration(cfg.StartupGraceMS) * time.Millisecond,
		log:     logging.WithComponent("device"),
		streams: make(map[string]*ProcessStream),
		handles: make(map[*source.Handle]*ProcessStream),
	}
}

func (p *CommandProvider) AcquireCameraAndMic(ctx context.Context) (*source.Handle, error) {
	return p.acquire(ctx, p.camera, "camera")
}

func (p *CommandProvider) AcquireDisplay(ctx context.Context) (*source.Handle, error) {
	return p.acquire(ctx, p.display, "display")
}

func (p *CommandProvider) acquire(ctx context.Context, dc config.DeviceCommand, fallback string) (*source.Handle, error) {
	label := dc.Label
	if label == "" {
		label = fallback
	}

	s, err := startProcess(dc.Command, label)
	if err != nil {
		return nil, err
	}

	if p.grace > 0 {
		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-s.firstData.Watch():
		case <-timer.C:
		case <-s.Done():
			return nil, s.exitError()
		case <-ctx.Done():
			s.Stop()
			<-s.Done()
			return nil, ctx.Err()
		}
	}
	// The tool may have exited right as the grace period ended.
	if !s.Active() && s.BytesRead() == 0 {
		return nil, s.exitError()
	}

	h, err := source.NewLive(s)
	if err != nil {
		s.Stop()
		return nil, err
	}

	p.mu.Lock()
	p.streams[s.ID()] = s
	p.handles[h] = s
	p.mu.Unlock()

	p.log.Info().Str("device", label).Str("stream_id", s.ID()).Int("pid", s.cmd.Process.Pid).Msg("device acquired")
	return h, nil
}

// Release kills the process behind h. Unknown or already released handles
// are ignored.
func (p *CommandProvider) Release(h *source.Handle) {
	if h == nil {
		return
	}
	p.mu.Lock()
	s, ok := p.handles[h]
	delete(p.handles, h)
	if ok {
		delete(p.streams, s.ID())
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	s.Stop()
	p.log.Info().Str("device", s.Label()).Int64("bytes", s.BytesRead()).Msg("device released")
}

// Lookup returns the held stream with the given ID.
func (p *CommandProvider) Lookup(id string) (source.Stream, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.streams[id]
	if !ok {
		return nil, false
	}
	return s, true
}

// Held returns the number of acquired and unreleased devices.
func (p *CommandProvider) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close releases every held device and waits for the processes to exit.
func (p *CommandProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	var all []*ProcessStream
	for h, s := range p.handles {
		all = append(all, s)
		delete(p.handles, h)
		delete(p.streams, s.ID())
	}
	p.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
	for _, s := range all {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
