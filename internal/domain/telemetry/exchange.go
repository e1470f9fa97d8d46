package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrExportPending is returned when a request is already in flight.
	ErrExportPending = errors.New("scene export already in progress")
	// ErrExportTimeout is returned when the frame did not answer in time.
	ErrExportTimeout = errors.New("scene export timed out")
)

// ExportFailure is the frame's structured refusal.
type ExportFailure struct {
	Message string
}

func (e *ExportFailure) Error() string { return "scene export failed: " + e.Message }

// Commander posts the fixed command token into the current frame.
type Commander interface {
	SendCommand(ctx context.Context, command string) error
}

// CommanderFunc adapts a function to Commander.
type CommanderFunc func(ctx context.Context, command string) error

func (f CommanderFunc) SendCommand(ctx context.Context, command string) error { return f(ctx, command) }

type exportReply struct {
	data json.RawMessage
	err  error
}

// Exchange runs the one-shot scene export: one request, one reply.
type Exchange struct {
	commander Commander
	timeout   time.Duration

	mu      sync.Mutex
	pending chan exportReply
}

// NewExchange creates an exchange that sends through commander.
func NewExchange(commander Commander, timeout time.Duration) *Exchange {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Exchange{commander: commander, timeout: timeout}
}

// Request asks the frame for its scene and waits for the reply.
func (x *Exchange) Request(ctx context.Context) (json.RawMessage, error) {
	x.mu.Lock()
	if x.pending != nil {
		x.mu.Unlock()
		return nil, ErrExportPending
	}
	ch := make(chan exportReply, 1)
	x.pending = ch
	x.mu.Unlock()
	defer x.clear(ch)

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	if err := x.commander.SendCommand(ctx, ExportCommand); err != nil {
		return nil, fmt.Errorf("send export command: %w", err)
	}

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrExportTimeout
		}
		return nil, ctx.Err()
	}
}

// Deliver hands a reply to the waiting request. It reports false when no
// request is pending; late or unsolicited replies are dropped.
func (x *Exchange) Deliver(m Message) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.pending == nil {
		return false
	}
	r := exportReply{data: m.Data}
	if m.Type == TypeExportError {
		r = exportReply{err: &ExportFailure{Message: m.Message}}
	}
	x.pending <- r
	x.pending = nil
	return true
}

// Pending reports whether a request is waiting for its reply.
func (x *Exchange) Pending() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.pending != nil
}

func (x *Exchange) clear(ch chan exportReply) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.pending == ch {
		x.pending = nil
	}
}
