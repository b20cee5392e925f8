package surfacews

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/diaglog"
	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/metrics"
	"github.com/tiroq/dualcap/internal/playback"
)

const (
	identifyTimeout = 10 * time.Second
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	sendBuffer      = 64
)

// ErrHubClosed is returned once Close has been called.
var ErrHubClosed = errors.New("viewer hub closed")

// Target receives viewer input. The mode controller and the playback engine
// both satisfy it.
type Target interface {
	playback.EventSink
	Activate()
	HandleKey(key string) bool
}

// Hub serves the viewer websocket and owns the two remote surfaces.
type Hub struct {
	sessionID string
	upgrader  websocket.Upgrader
	surfaces  [2]*RemoteSurface
	log       zerolog.Logger

	mu       sync.Mutex
	diag     *diaglog.Logger
	target   Target
	state    *ViewState
	clients  map[*client]struct{}
	closed   bool
	received int64
}

type client struct {
	id   string
	name string
	conn *websocket.Conn
	send chan []byte
	done core.Fuse
}

// NewHub creates a hub whose Hello carries sessionID.
func NewHub(sessionID string) *Hub {
	h := &Hub{
		sessionID: sessionID,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     logging.WithComponent("viewer-ws"),
		diag:    diaglog.NewNoOp(),
		clients: make(map[*client]struct{}),
	}
	h.surfaces[playback.RoleMain] = &RemoteSurface{role: playback.RoleMain, hub: h}
	h.surfaces[playback.RolePIP] = &RemoteSurface{role: playback.RolePIP, hub: h}
	return h
}

// Main returns the main surface.
func (h *Hub) Main() *RemoteSurface { return h.surfaces[playback.RoleMain] }

// PIP returns the picture-in-picture surface.
func (h *Hub) PIP() *RemoteSurface { return h.surfaces[playback.RolePIP] }

// Attach routes viewer input to t.
func (h *Hub) Attach(t Target) {
	h.mu.Lock()
	h.target = t
	h.mu.Unlock()
}

// SetLogger injects the diagnostic event logger.
func (h *Hub) SetLogger(l *diaglog.Logger) {
	h.mu.Lock()
	h.diag = l
	h.mu.Unlock()
}

// PublishState sends st to every viewer and to viewers that join later.
func (h *Hub) PublishState(st ViewState) {
	b, err := encode(OpViewState, st)
	if err != nil {
		h.log.Error().Err(err).Msg("encode view state")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = &st
	for c := range h.clients {
		h.enqueue(c, b)
	}
}

// Viewers returns the number of identified viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every viewer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.done.Break()
	}
	metrics.Viewers.Set(0)
}

func (h *Hub) broadcastCommand(cmd CommandData) {
	b, err := encode(OpCommand, cmd)
	if err != nil {
		h.log.Error().Err(err).Msg("encode command")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueue(c, b)
	}
}

// enqueue never blocks; a viewer that falls behind is dropped. Callers hold h.mu.
func (h *Hub) enqueue(c *client, b []byte) {
	select {
	case c.send <- b:
	default:
		h.log.Warn().Str("viewer", c.id).Msg("viewer too slow, disconnecting")
		delete(h.clients, c)
		metrics.Viewers.Set(float64(len(h.clients)))
		c.done.Break()
	}
}

// ServeHTTP upgrades the request and runs the viewer session until it ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go h.writeLoop(c)
	defer c.done.Break()

	hello, _ := encode(OpHello, HelloData{ProtocolVersion: ProtocolVersion, SessionID: h.sessionID})
	c.send <- hello

	if err := h.identify(c); err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("viewer handshake failed")
		return
	}
	if !h.register(c) {
		return
	}
	defer h.unregister(c)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("viewer", c.id).Msg("viewer read failed")
			}
			return
		}
		if msg.Op != OpEvent {
			continue
		}
		var ev EventData
		if err := json.Unmarshal(msg.D, &ev); err != nil {
			h.log.Debug().Err(err).Msg("bad viewer event")
			continue
		}
		h.dispatch(ev)
	}
}

func (h *Hub) identify(c *client) error {
	c.conn.SetReadDeadline(time.Now().Add(identifyTimeout))
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read identify: %w", err)
	}
	if msg.Op != OpIdentify {
		return fmt.Errorf("expected identify, got op %d", msg.Op)
	}
	var id IdentifyData
	if err := json.Unmarshal(msg.D, &id); err != nil {
		return fmt.Errorf("decode identify: %w", err)
	}
	if id.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("unsupported protocol version %d", id.ProtocolVersion)
	}
	c.name = id.Name
	return nil
}

// register adds c and replays the current surfaces and view state to it.
func (h *Hub) register(c *client) bool {
	identified, _ := encode(OpIdentified, IdentifiedData{ViewerID: c.id})
	replay := [][]byte{identified}

	// Bindings are read under h.mu: a rebind either lands before this
	// read or broadcasts to c after it joins.
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, s := range h.surfaces {
		b, err := encode(OpCommand, s.current())
		if err == nil {
			replay = append(replay, b)
		}
	}
	if h.state != nil {
		if b, err := encode(OpViewState, *h.state); err == nil {
			replay = append(replay, b)
		}
	}
	h.clients[c] = struct{}{}
	for _, b := range replay {
		h.enqueue(c, b)
	}
	metrics.Viewers.Set(float64(len(h.clients)))

	h.log.Info().Str("viewer", c.id).Str("name", c.name).Msg("viewer connected")
	h.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentViewerWS,
		Event:     diaglog.EventViewerConnect,
		SessionID: h.sessionID,
		Payload:   map[string]interface{}{"viewer": c.id, "name": c.name},
	})
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	metrics.Viewers.Set(float64(len(h.clients)))
	diag := h.diag
	h.mu.Unlock()

	if ok {
		h.log.Info().Str("viewer", c.id).Msg("viewer disconnected")
		diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentViewerWS,
			Event:     diaglog.EventViewerDisconnect,
			SessionID: h.sessionID,
			Payload:   map[string]interface{}{"viewer": c.id},
		})
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.done.Break()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.done.Break()
				return
			}
		case <-c.done.Watch():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// dispatch applies one viewer event. Input is only accepted on the pip
// region; timing is accepted from both surfaces and filtered by the target.
func (h *Hub) dispatch(ev EventData) {
	role, ok := parseSurface(ev.Surface)
	if !ok {
		return
	}

	h.mu.Lock()
	t := h.target
	h.received++
	h.mu.Unlock()
	if t == nil {
		return
	}

	switch ev.Type {
	case EventTimeUpdate:
		h.surfaces[role].report(ev.Position)
		t.OnTimeUpdate(role)
	case EventPlay:
		t.OnPlay(role)
	case EventPause:
		t.OnPause(role)
	case EventActivate:
		if role == playback.RolePIP {
			t.Activate()
		}
	case EventKey:
		if role == playback.RolePIP {
			t.HandleKey(ev.Key)
		}
	}
}

// Received returns the number of viewer events processed.
func (h *Hub) Received() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.received
}
