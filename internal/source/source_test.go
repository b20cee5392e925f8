package source

import (
	"testing"
)

type stubStream struct{ label string }

func (s *stubStream) ID() string                    { return "stub" }
func (s *stubStream) Label() string                 { return s.label }
func (s *stubStream) Subscribe(func([]byte)) func() { return func() {} }
func (s *stubStream) Stop()                         {}
func (s *stubStream) Done() <-chan struct{}         { return nil }
func (s *stubStream) Active() bool                  { return true }

func TestNewLive(t *testing.T) {
	if _, err := NewLive(nil); err != ErrNilStream {
		t.Fatalf("NewLive(nil) err = %v, want ErrNilStream", err)
	}

	h, err := NewLive(&stubStream{label: "camera"})
	if err != nil {
		t.Fatalf("NewLive: %v", err)
	}
	if !h.IsLive() || h.IsFile() {
		t.Errorf("IsLive=%v IsFile=%v, want live only", h.IsLive(), h.IsFile())
	}
	if h.URL() != "" || h.DisplayName() != "" {
		t.Errorf("live handle leaked file fields: url=%q name=%q", h.URL(), h.DisplayName())
	}
	if h.Describe() != "live:camera" {
		t.Errorf("Describe = %q", h.Describe())
	}
}

func TestNewFile(t *testing.T) {
	if _, err := NewFile("", "x.mp4"); err != ErrEmptyURL {
		t.Fatalf("NewFile(\"\") err = %v, want ErrEmptyURL", err)
	}

	h, err := NewFile("blob:dualcap/1", "talk.mp4")
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if !h.IsFile() || h.IsLive() {
		t.Errorf("IsLive=%v IsFile=%v, want file only", h.IsLive(), h.IsFile())
	}
	if h.Stream() != nil {
		t.Error("file handle returned a stream")
	}
	if h.Kind() != KindFile || h.Kind().String() != "file" {
		t.Errorf("Kind = %v", h.Kind())
	}
}

func TestNilHandle(t *testing.T) {
	var h *Handle
	if h.IsLive() || h.IsFile() {
		t.Error("nil handle reported a variant")
	}
	if h.Describe() != "none" {
		t.Errorf("Describe = %q, want none", h.Describe())
	}
	if Both(h, &Handle{kind: KindFile, url: "u"}) {
		t.Error("Both with nil = true")
	}
}
