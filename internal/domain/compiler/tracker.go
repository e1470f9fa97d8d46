package compiler

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
)

// Request identifies one compilation input.
type Request struct {
	Source     string
	Profile    source.Profile
	ExportName string
}

func (r Request) key() string {
	return source.Hash(string(r.Profile), r.ExportName, r.Source)
}

// Outcome is what the synthesizer needs to render a compiled-component
// document: an artifact, or the reason there is none.
type Outcome struct {
	Artifact *Artifact
	Err      error
	State    State
}

// Failed reports whether the outcome carries a compilation or load failure
// rather than a pending state.
func (o Outcome) Failed() bool {
	var cerr *CompilationError
	return errors.As(o.Err, &cerr) || errors.Is(o.Err, ErrLoadFailed)
}

// Tracker owns the artifact for one preview. The last good artifact survives
// transient failures for the same input; any change of source, profile or
// export name drops it before compiling.
type Tracker struct {
	bridge *Bridge
	logger *zap.Logger

	mu       sync.Mutex
	key      string
	artifact *Artifact
	lastErr  error
}

// NewTracker creates a tracker compiling through bridge.
func NewTracker(bridge *Bridge, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{bridge: bridge, logger: logger}
}

// Resolve returns the artifact for req, compiling when needed. Loading of the
// compiler is started on first use. Blank source yields no artifact and no
// error.
func (t *Tracker) Resolve(ctx context.Context, req Request) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := req.key()
	if key != t.key {
		t.key, t.artifact, t.lastErr = key, nil, nil
	}
	if req.Profile != source.ProfileComponent {
		return Outcome{State: t.bridge.State()}
	}

	state := t.bridge.Ensure(ctx)
	if strings.TrimSpace(req.Source) == "" {
		return Outcome{State: state}
	}
	if t.artifact != nil {
		return Outcome{Artifact: t.artifact, State: state}
	}

	art, err := t.bridge.Compile(ctx, req.Source, req.ExportName)
	state = t.bridge.State()
	if err != nil {
		t.lastErr = err
		if !errors.Is(err, ErrNotReady) {
			t.logger.Debug("Component compilation failed", zap.Error(err))
		}
		return Outcome{Err: err, State: state}
	}
	t.artifact = art
	return Outcome{Artifact: art, State: state}
}

// Current returns the retained artifact and the last error.
func (t *Tracker) Current() (*Artifact, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.artifact, t.lastErr
}

// Invalidate drops the retained artifact.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.key, t.artifact, t.lastErr = "", nil, nil
}
