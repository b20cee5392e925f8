package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/dualcap/internal/surfacews"
)

// MockViewer is a websocket viewer that completes the handshake and records
// every command and view state the daemon sends.
type MockViewer struct {
	conn     *websocket.Conn
	hello    surfacews.HelloData
	viewerID string

	mu       sync.Mutex
	writeMu  sync.Mutex
	commands []surfacews.CommandData
	states   []surfacews.ViewState
	closed   bool
	done     chan struct{}
}

// DialViewer connects to a hub served at url ("http://" is rewritten to
// "ws://") and identifies as name.
func DialViewer(url, name string) (*MockViewer, error) {
	url = strings.Replace(url, "http://", "ws://", 1)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	v := &MockViewer{conn: conn, done: make(chan struct{})}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg surfacews.Message
	if err := conn.ReadJSON(&msg); err != nil || msg.Op != surfacews.OpHello {
		conn.Close()
		return nil, fmt.Errorf("expected hello: op=%d err=%v", msg.Op, err)
	}
	if err := json.Unmarshal(msg.D, &v.hello); err != nil {
		conn.Close()
		return nil, err
	}

	if err := v.send(surfacews.OpIdentify, surfacews.IdentifyData{
		ProtocolVersion: surfacews.ProtocolVersion,
		Name:            name,
	}); err != nil {
		conn.Close()
		return nil, err
	}

	if err := conn.ReadJSON(&msg); err != nil || msg.Op != surfacews.OpIdentified {
		conn.Close()
		return nil, fmt.Errorf("expected identified: op=%d err=%v", msg.Op, err)
	}
	var ident surfacews.IdentifiedData
	if err := json.Unmarshal(msg.D, &ident); err != nil {
		conn.Close()
		return nil, err
	}
	v.viewerID = ident.ViewerID
	conn.SetReadDeadline(time.Time{})

	go v.readLoop()
	return v, nil
}

func (v *MockViewer) readLoop() {
	defer close(v.done)
	for {
		var msg surfacews.Message
		if err := v.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Op {
		case surfacews.OpCommand:
			var cmd surfacews.CommandData
			if json.Unmarshal(msg.D, &cmd) == nil {
				v.mu.Lock()
				v.commands = append(v.commands, cmd)
				v.mu.Unlock()
			}
		case surfacews.OpViewState:
			var st surfacews.ViewState
			if json.Unmarshal(msg.D, &st) == nil {
				v.mu.Lock()
				v.states = append(v.states, st)
				v.mu.Unlock()
			}
		}
	}
}

func (v *MockViewer) send(op int, d interface{}) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return v.conn.WriteJSON(surfacews.Message{Op: op, D: raw})
}

// SendEvent reports a playback event or input to the daemon.
func (v *MockViewer) SendEvent(ev surfacews.EventData) error {
	return v.send(surfacews.OpEvent, ev)
}

func (v *MockViewer) Hello() surfacews.HelloData { return v.hello }
func (v *MockViewer) ViewerID() string           { return v.viewerID }

func (v *MockViewer) Commands() []surfacews.CommandData {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]surfacews.CommandData(nil), v.commands...)
}

// LastCommand returns the newest command for surface.
func (v *MockViewer) LastCommand(surface string) (surfacews.CommandData, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := len(v.commands) - 1; i >= 0; i-- {
		if v.commands[i].Surface == surface {
			return v.commands[i], true
		}
	}
	return surfacews.CommandData{}, false
}

// LastState returns the newest view state.
func (v *MockViewer) LastState() (surfacews.ViewState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.states) == 0 {
		return surfacews.ViewState{}, false
	}
	return v.states[len(v.states)-1], true
}

// Disconnected is closed when the daemon ends the session.
func (v *MockViewer) Disconnected() <-chan struct{} {
	return v.done
}

// Close ends the session and waits for the read loop.
func (v *MockViewer) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.writeMu.Lock()
	_ = v.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	v.writeMu.Unlock()
	_ = v.conn.Close()
	<-v.done
}
