package telemetry

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

// ErrStaleFrame is returned for messages from a superseded frame.
var ErrStaleFrame = errors.New("message from superseded frame")

// FrameCheck reports whether a frame key is the currently mounted one.
type FrameCheck func(id.FrameID) bool

// Bridge is the host-side listener: it filters frame messages against the
// current frame and routes them to the console or the export exchange.
type Bridge struct {
	console  *Console
	exchange *Exchange
	current  FrameCheck
	logger   *zap.Logger
	now      func() time.Time

	stale atomic.Int64
}

// NewBridge wires a listener to its console and exchange.
func NewBridge(console *Console, exchange *Exchange, current FrameCheck, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{console: console, exchange: exchange, current: current, logger: logger, now: time.Now}
}

// Receive handles one raw message that arrived from the frame identified by
// frame. The key comes from the host's own record of which frame delivered
// the message, never from the payload.
func (b *Bridge) Receive(frame id.FrameID, raw []byte) error {
	if !b.current(frame) {
		b.stale.Add(1)
		return ErrStaleFrame
	}

	m, err := Decode(raw)
	if err != nil {
		return err
	}

	switch {
	case m.IsConsole():
		b.console.Append(Entry{
			Level:     ParseLevel(m.Level),
			Message:   m.Message,
			Stack:     m.Stack,
			Timestamp: b.now(),
			Origin:    FromFrame,
			Frame:     frame,
		})
	case m.IsExportReply():
		if b.exchange == nil || !b.exchange.Deliver(m) {
			b.logger.Debug("Dropped unsolicited export reply", zap.String("type", m.Type))
		}
	}
	return nil
}

// Log appends a host-side entry.
func (b *Bridge) Log(level Level, format string, args ...any) {
	b.console.Append(Entry{Level: level, Message: fmt.Sprintf(format, args...), Origin: FromHost, Timestamp: b.now()})
}

// Console returns the entry store.
func (b *Bridge) Console() *Console { return b.console }

// Exchange returns the export exchange.
func (b *Bridge) Exchange() *Exchange { return b.exchange }

// Stale returns how many messages were discarded as stale.
func (b *Bridge) Stale() int64 { return b.stale.Load() }
