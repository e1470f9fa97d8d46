package compiler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
)

// DefaultLoadTimeout bounds one engine load.
const DefaultLoadTimeout = 30 * time.Second

// Bridge lazily loads a transpiler and compiles component source with it.
// Its readiness follows Uninitialized → Loading → Ready | LoadFailed, and both
// end states are final.
type Bridge struct {
	engine      Engine
	logger      *zap.Logger
	loadTimeout time.Duration

	mu        sync.Mutex
	state     State
	loadErr   error
	done      chan struct{}
	listeners []func(State)
}

// NewBridge creates an uninitialized bridge around engine.
func NewBridge(engine Engine, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		engine:      engine,
		logger:      logger.With(zap.String("engine", engine.Name())),
		loadTimeout: DefaultLoadTimeout,
		done:        make(chan struct{}),
	}
}

// OnChange registers fn to be called after every state transition. Callbacks
// run on the loading goroutine, before Wait returns.
func (b *Bridge) OnChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// State returns the current readiness.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the load failure, if any.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadErr
}

// Ensure starts loading the engine if nobody has yet. Calls while Loading, or
// after an end state, do nothing. It returns the state after the call.
func (b *Bridge) Ensure(ctx context.Context) State {
	b.mu.Lock()
	if b.state != Uninitialized {
		s := b.state
		b.mu.Unlock()
		return s
	}
	b.state = Loading
	listeners := append([]func(State){}, b.listeners...)
	b.mu.Unlock()

	b.logger.Info("Loading compiler")

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.loadTimeout)
	go func() {
		defer cancel()
		notify(listeners, Loading)
		b.finish(b.engine.Load(loadCtx))
	}()
	return Loading
}

func (b *Bridge) finish(err error) {
	b.mu.Lock()
	if err != nil {
		b.state = LoadFailed
		b.loadErr = fmt.Errorf("%w: %v", ErrLoadFailed, err)
	} else {
		b.state = Ready
	}
	state := b.state
	listeners := append([]func(State){}, b.listeners...)
	b.mu.Unlock()

	if err != nil {
		b.logger.Error("Compiler failed to load", zap.Error(err))
	} else {
		b.logger.Info("Compiler ready")
	}
	notify(listeners, state)
	close(b.done)
}

// Wait blocks until loading has ended or ctx is done. It does not start
// loading.
func (b *Bridge) Wait(ctx context.Context) (State, error) {
	select {
	case <-b.done:
		return b.State(), b.Err()
	case <-ctx.Done():
		return b.State(), ctx.Err()
	}
}

// Compile turns component source into a mountable artifact. It returns
// ErrNotReady before loading completes, the load error after a failed load,
// and a *CompilationError for rejected source.
func (b *Bridge) Compile(ctx context.Context, src, exportName string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch b.State() {
	case Ready:
	case LoadFailed:
		return nil, b.Err()
	default:
		return nil, ErrNotReady
	}

	prepared, warnings := Prepare(src)
	code, err := b.engine.Transform(prepared)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Code:       Wrap(code, exportName),
		ExportName: exportName,
		SourceHash: source.Hash(src, exportName),
		Engine:     b.engine.Name(),
		CompiledAt: time.Now(),
		Warnings:   warnings,
	}, nil
}

func notify(listeners []func(State), s State) {
	for _, fn := range listeners {
		fn(s)
	}
}
