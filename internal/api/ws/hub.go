package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/host"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

// ErrNoClients is returned when a command has no host page to go to.
var ErrNoClients = errors.New("no host page connected")

const (
	writeWait    = 5 * time.Second
	maxInbound   = 1 << 20
	sendCapacity = 64
)

// Message types.
const (
	TypeHello        = "hello"
	TypeFrame        = "frame"
	TypeView         = "view"
	TypeTeardown     = "teardown"
	TypeCommand      = "command"
	TypeConsole      = "console"
	TypeFrameMessage = "frame-message"
	TypeKey          = "key"
	TypePing         = "ping"
	TypePong         = "pong"
)

// FrameNotice tells the host page to mount a fresh execution context.
type FrameNotice struct {
	Key        id.FrameID    `json:"key"`
	Profile    string        `json:"profile"`
	Delivery   host.Delivery `json:"delivery"`
	FullScreen bool          `json:"fullScreen"`
	View       host.View     `json:"view"`
	State      string        `json:"state,omitempty"`
	MountedAt  time.Time     `json:"mountedAt"`
}

// ConsoleNotice carries one accepted entry with the derived console state.
type ConsoleNotice struct {
	Entry    telemetry.Entry  `json:"entry"`
	Counts   telemetry.Counts `json:"counts"`
	Problems bool             `json:"problems"`
	Banner   *telemetry.Entry `json:"banner,omitempty"`
}

// Outbound is a server to host page message.
type Outbound struct {
	Type    string         `json:"type"`
	Frame   *FrameNotice   `json:"frame,omitempty"`
	View    *host.View     `json:"view,omitempty"`
	Command string         `json:"command,omitempty"`
	Target  id.FrameID     `json:"target,omitempty"`
	Console *ConsoleNotice `json:"console,omitempty"`
}

// Inbound is a host page to server message. Frame is the key the host page
// recorded for the iframe that posted Data.
type Inbound struct {
	Type  string          `json:"type"`
	Frame id.FrameID      `json:"frame,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Key   string          `json:"key,omitempty"`
}

// Options wires a hub to the preview it serves.
type Options struct {
	// Receive gets every relayed frame message.
	Receive func(frame id.FrameID, raw []byte) error
	// Key applies a host keyboard shortcut.
	Key func(key string) (bool, error)
	// Current returns the mounted frame, sent to newly connected pages.
	Current func() (host.Frame, bool)
	// View returns the current zoom view.
	View    func() host.View
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// Hub fans frame notices out to connected host pages and relays frame
// messages back. It is the telemetry Commander for scene export.
//
// Every page mounts the same frame, so only one page, the relay, is listened
// to: the oldest connected one. Frame messages from other pages are dropped
// and commands go to the relay alone.
type Hub struct {
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	relay   *client
	seq     uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	seq  uint64

	mu     sync.Mutex
	closed bool
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// offer queues data unless the client is gone or its buffer is full.
func (c *client) offer(data []byte) (sent, gone bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, true
	}
	select {
	case c.send <- data:
		return true, false
	default:
		return false, false
	}
}

// NewHub creates a hub.
func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in dev
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected host pages.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every host page. Their handlers finish on their own.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, cl := range clients {
		_ = cl.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		cl.conn.Close()
	}
}

// HandleConnection upgrades the request and serves one host page.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendCapacity)}

	h.mu.Lock()
	h.seq++
	cl.seq = h.seq
	h.clients[cl] = struct{}{}
	if h.relay == nil {
		h.relay = cl
	}
	h.mu.Unlock()
	if h.opts.Metrics != nil {
		h.opts.Metrics.IncWSConnections()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(cl)
	}()

	h.push(cl, Outbound{Type: TypeHello})
	if h.opts.Current != nil {
		if f, ok := h.opts.Current(); ok {
			h.push(cl, h.frameMessage(f))
		}
	}

	h.readLoop(cl)

	h.mu.Lock()
	delete(h.clients, cl)
	if h.relay == cl {
		h.relay = h.oldest()
	}
	h.mu.Unlock()
	cl.close()
	<-done
	conn.Close()
	if h.opts.Metrics != nil {
		h.opts.Metrics.DecWSConnections()
	}
}

func (h *Hub) readLoop(cl *client) {
	cl.conn.SetReadLimit(maxInbound)
	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		var msg Inbound
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			h.logger.Debug("Malformed host page message", zap.Error(err))
			continue
		}
		h.record("in", msg.Type)
		h.dispatch(cl, msg)
	}
}

func (h *Hub) dispatch(cl *client, msg Inbound) {
	switch msg.Type {
	case TypeFrameMessage:
		if h.opts.Receive == nil {
			return
		}
		if !h.isRelay(cl) {
			h.logger.Debug("Ignored frame message from secondary host page", zap.String("frame", msg.Frame.String()))
			return
		}
		err := h.opts.Receive(msg.Frame, msg.Data)
		switch {
		case err == nil:
		case errors.Is(err, telemetry.ErrStaleFrame), errors.Is(err, telemetry.ErrUnknownMessage):
			h.logger.Debug("Discarded frame message", zap.String("frame", msg.Frame.String()), zap.Error(err))
		default:
			h.logger.Warn("Failed to relay frame message", zap.String("frame", msg.Frame.String()), zap.Error(err))
		}
	case TypeKey:
		if h.opts.Key == nil {
			return
		}
		if _, err := h.opts.Key(msg.Key); err != nil {
			h.logger.Debug("Key not applied", zap.String("key", msg.Key), zap.Error(err))
		}
	case TypePing:
		h.push(cl, Outbound{Type: TypePong})
	default:
		h.logger.Debug("Unknown host page message", zap.String("type", msg.Type))
	}
}

func (h *Hub) writeLoop(cl *client) {
	for data := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("WebSocket write error", zap.Error(err))
			// Closing the connection unblocks the read loop.
			cl.conn.Close()
			for range cl.send {
			}
			return
		}
	}
}

// push queues msg for one client, dropping it when the client is too slow.
func (h *Hub) push(cl *client, msg Outbound) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode host page message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	h.enqueue(cl, data, msg.Type)
}

func (h *Hub) enqueue(cl *client, data []byte, kind string) {
	sent, gone := cl.offer(data)
	switch {
	case sent:
		h.record("out", kind)
	case !gone:
		h.logger.Warn("Host page too slow, dropping message", zap.String("type", kind))
	}
}

// Broadcast sends msg to every connected host page and returns how many
// received it.
func (h *Hub) Broadcast(msg Outbound) int {
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode host page message", zap.String("type", msg.Type), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		h.enqueue(cl, data, msg.Type)
	}
	return len(clients)
}

// PublishFrame announces a new frame identity. It is a host mount listener.
func (h *Hub) PublishFrame(f host.Frame) {
	h.Broadcast(h.frameMessage(f))
}

// PublishView announces a zoom change.
func (h *Hub) PublishView(v host.View) {
	h.Broadcast(Outbound{Type: TypeView, View: &v})
}

// PublishTeardown tells pages to drop their frame.
func (h *Hub) PublishTeardown() {
	h.Broadcast(Outbound{Type: TypeTeardown})
}

// PublishConsole forwards an accepted console entry.
func (h *Hub) PublishConsole(n ConsoleNotice) {
	h.Broadcast(Outbound{Type: TypeConsole, Console: &n})
}

// SendCommand posts command into the current frame through the relay page.
func (h *Hub) SendCommand(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := Outbound{Type: TypeCommand, Command: command}
	if h.opts.Current != nil {
		f, ok := h.opts.Current()
		if !ok {
			return host.ErrNothingMounted
		}
		msg.Target = f.Key
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay == nil {
		return ErrNoClients
	}
	h.enqueue(relay, data, msg.Type)
	return nil
}

// oldest returns the longest connected client. Callers hold mu.
func (h *Hub) oldest() *client {
	var out *client
	for cl := range h.clients {
		if out == nil || cl.seq < out.seq {
			out = cl
		}
	}
	return out
}

func (h *Hub) isRelay(cl *client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.relay == cl
}

func (h *Hub) frameMessage(f host.Frame) Outbound {
	view := host.ViewFor(f.Zoom)
	if h.opts.View != nil {
		view = h.opts.View()
	}
	return Outbound{Type: TypeFrame, Frame: &FrameNotice{
		Key:        f.Key,
		Profile:    string(f.Profile),
		Delivery:   f.Delivery,
		FullScreen: f.FullScreen,
		View:       view,
		State:      f.Document.State,
		MountedAt:  f.MountedAt,
	}}
}

func (h *Hub) record(direction, kind string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.RecordWSMessage(direction, kind)
	}
}
