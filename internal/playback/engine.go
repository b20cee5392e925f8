package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/diaglog"
	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/metrics"
	"github.com/tiroq/dualcap/internal/source"
)

// DefaultDriftThreshold is the largest tolerated gap, in seconds, between the
// master and the secondary surface.
const DefaultDriftThreshold = 0.3

// WaitingText is shown while either source is missing.
const WaitingText = "Waiting for both video sources..."

// Primary names the source shown on the main surface.
type Primary string

const (
	PrimaryCamera Primary = "camera"
	PrimaryScreen Primary = "screen"
)

// ParsePrimary accepts "camera" or "screen".
func ParsePrimary(s string) (Primary, error) {
	switch Primary(s) {
	case PrimaryCamera, PrimaryScreen:
		return Primary(s), nil
	default:
		return "", fmt.Errorf("unknown primary %q", s)
	}
}

// Layout is pure view state.
type Layout struct {
	Primary Primary
}

// Swapped returns the layout with the other source on the main surface.
func (l Layout) Swapped() Layout {
	if l.Primary == PrimaryCamera {
		return Layout{Primary: PrimaryScreen}
	}
	return Layout{Primary: PrimaryCamera}
}

// binding is what a surface currently shows.
type binding struct {
	handle *source.Handle
	opts   Options
}

// Binding is the exported view of a surface's binding.
type Binding struct {
	Handle  *source.Handle
	Options Options
}

// Option configures an Engine.
type Option func(*Engine)

// WithDriftThreshold overrides DefaultDriftThreshold.
func WithDriftThreshold(seconds float64) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.threshold = seconds
		}
	}
}

// WithLogger injects the diagnostic event logger.
func WithLogger(l *diaglog.Logger) Option {
	return func(e *Engine) { e.diag = l }
}

// Engine binds the pair to the two surfaces. It borrows handles and never
// releases them.
type Engine struct {
	surfaces  [2]Surface
	threshold float64
	log       zerolog.Logger
	diag      *diaglog.Logger

	mu     sync.Mutex
	layout Layout
	camera *source.Handle
	screen *source.Handle
	bound  [2]binding
}

// NewEngine creates an Engine over the main and pip surfaces.
func NewEngine(main, pip Surface, layout Layout, opts ...Option) *Engine {
	if layout.Primary == "" {
		layout.Primary = PrimaryCamera
	}
	e := &Engine{
		surfaces:  [2]Surface{main, pip},
		threshold: DefaultDriftThreshold,
		log:       logging.WithComponent("playback"),
		diag:      diaglog.NewNoOp(),
		layout:    layout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetSources replaces the pair and re-applies the binding rule.
func (e *Engine) SetSources(camera, screen *source.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.camera, e.screen = camera, screen
	e.render()
}

// Swap exchanges the main and pip sources and reports whether it did. There
// is no pip while waiting, so the layout is left alone then. Two swaps
// restore the layout.
func (e *Engine) Swap() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !source.Both(e.camera, e.screen) {
		return false
	}
	e.layout = e.layout.Swapped()
	e.render()
	e.log.Debug().Str("primary", string(e.layout.Primary)).Msg("layout swapped")
	e.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentPlayback,
		Event:     diaglog.EventSwap,
		Payload:   map[string]interface{}{"primary": string(e.layout.Primary)},
	})
	return true
}

// Activate handles a pointer activation of the pip region.
func (e *Engine) Activate() {
	e.Swap()
}

// HandleKey handles a key pressed while the pip region has focus. Enter and
// Space swap like a click; the return value says whether the key was used.
func (e *Engine) HandleKey(key string) bool {
	switch key {
	case "Enter", " ", "Space", "Spacebar":
		return e.Swap()
	default:
		return false
	}
}

// render applies the binding rule to both surfaces. Callers hold e.mu.
func (e *Engine) render() {
	if !source.Both(e.camera, e.screen) {
		for r := range e.surfaces {
			e.apply(Role(r), nil)
		}
		return
	}
	main, pip := e.camera, e.screen
	if e.layout.Primary == PrimaryScreen {
		main, pip = pip, main
	}
	e.apply(RoleMain, main)
	e.apply(RolePIP, pip)
}

func bindingFor(r Role, h *source.Handle) binding {
	switch h.Kind() {
	case source.KindLive:
		return binding{handle: h, opts: Options{Muted: true, Autoplay: true}}
	case source.KindFile:
		return binding{handle: h, opts: Options{Muted: true, Autoplay: true, Loop: true, Controls: r == RoleMain}}
	default:
		return binding{}
	}
}

// apply rebinds a surface only when its binding changed.
func (e *Engine) apply(r Role, h *source.Handle) {
	want := bindingFor(r, h)
	if want == e.bound[r] {
		return
	}
	s := e.surfaces[r]
	switch want.handle.Kind() {
	case source.KindLive:
		s.BindLive(want.handle.Stream(), want.opts)
	case source.KindFile:
		s.BindURL(want.handle.URL(), want.opts)
	default:
		s.Detach()
	}
	e.bound[r] = want
}

// OnTimeUpdate corrects drift when both surfaces play files. Only the main
// surface drives correction.
func (e *Engine) OnTimeUpdate(r Role) {
	if r != RoleMain {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.clockBearing() {
		return
	}
	master := e.surfaces[RoleMain].Position()
	secondary := e.surfaces[RolePIP].Position()
	drift := math.Abs(master - secondary)
	if drift <= e.threshold {
		return
	}
	e.surfaces[RolePIP].Seek(master)
	metrics.DriftCorrections.Inc()
	e.log.Debug().Float64("master", master).Float64("secondary", secondary).Msg("drift corrected")
	e.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentPlayback,
		Event:     diaglog.EventDriftCorrection,
		Payload:   map[string]interface{}{"master": master, "secondary": secondary, "drift": drift},
	})
}

// OnPlay forwards a master play to the secondary.
func (e *Engine) OnPlay(r Role) {
	if r != RoleMain {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clockBearing() {
		e.surfaces[RolePIP].Play()
	}
}

// OnPause forwards a master pause to the secondary.
func (e *Engine) OnPause(r Role) {
	if r != RoleMain {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clockBearing() {
		e.surfaces[RolePIP].Pause()
	}
}

// clockBearing reports whether both surfaces play files. Callers hold e.mu.
func (e *Engine) clockBearing() bool {
	return e.bound[RoleMain].handle.IsFile() && e.bound[RolePIP].handle.IsFile()
}

// Layout returns the current layout.
func (e *Engine) Layout() Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layout
}

// Waiting reports whether the placeholder is shown.
func (e *Engine) Waiting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !source.Both(e.camera, e.screen)
}

// Badge labels the main surface.
func (e *Engine) Badge() string {
	if e.Layout().Primary == PrimaryCamera {
		return "Camera View"
	}
	return "Screen View"
}

// Bindings returns what each surface shows.
func (e *Engine) Bindings() (main, pip Binding) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, p := e.bound[RoleMain], e.bound[RolePIP]
	return Binding{Handle: m.handle, Options: m.opts}, Binding{Handle: p.handle, Options: p.opts}
}
