package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/compiler"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/host"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/plan"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

// DefaultDebounce is the quiet period after the last edit before rendering.
const DefaultDebounce = 500 * time.Millisecond

var (
	ErrNoSource = errors.New("no source submitted")
	ErrClosed   = errors.New("session closed")
)

// Snapshot is the latest submitted source.
type Snapshot struct {
	Bundle        source.Bundle  `json:"bundle"`
	Profile       source.Profile `json:"profile"`
	ComponentName string         `json:"componentName,omitempty"`
	SubmittedAt   time.Time      `json:"submittedAt"`
}

// Result describes one pipeline run.
type Result struct {
	Frame        host.Frame     `json:"frame"`
	Plan         plan.Plan      `json:"plan"`
	Warnings     []string       `json:"warnings,omitempty"`
	CompileState compiler.State `json:"compileState"`
	CompileError string         `json:"compileError,omitempty"`
	Preflight    []string       `json:"preflight,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// Deps are the pipeline stages a session drives.
type Deps struct {
	Planner   *plan.Planner
	Compiler  *compiler.Bridge
	Synth     *synth.Synthesizer
	Host      *host.Host
	Telemetry *telemetry.Bridge
	// Preflight is optional.
	Preflight *Preflight
	Observer  Observer
	// Tracer is optional; each render becomes one span.
	Tracer *tracing.Tracer
}

// Options configures a session.
type Options struct {
	Debounce time.Duration
}

// Session owns one live preview: the latest source, the compiler tracker,
// the host frame and the console.
type Session struct {
	id       id.SessionID
	deps     Deps
	tracker  *compiler.Tracker
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	latest    Snapshot
	submitted bool
	pending   bool
	timer     *time.Timer
	last      *Result
	logged    string
	closed    bool

	render sync.Mutex
	wg     sync.WaitGroup
}

// New creates a session. Compiler state changes to Ready or LoadFailed
// re-render a component preview without a new edit.
func New(deps Deps, opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	s := &Session{
		id:       id.NewSessionID(),
		deps:     deps,
		tracker:  compiler.NewTracker(deps.Compiler, logger),
		debounce: opts.Debounce,
	}
	s.logger = logger.With(zap.String("session", s.id.String()))
	deps.Compiler.OnChange(s.compilerChanged)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() id.SessionID { return s.id }

// Update records a new snapshot and schedules a render once edits pause.
func (s *Session) Update(b source.Bundle, p source.Profile, componentName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.latest = Snapshot{Bundle: b, Profile: p, ComponentName: componentName, SubmittedAt: time.Now()}
	s.pending, s.submitted = true, true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.background("debounce", true) })
}

// Latest returns the most recent snapshot.
func (s *Session) Latest() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.submitted
}

// Last returns the result of the most recent render.
func (s *Session) Last() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Submit records a snapshot and renders it immediately.
func (s *Session) Submit(ctx context.Context, b source.Bundle, p source.Profile, componentName string) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrClosed
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.latest = Snapshot{Bundle: b, Profile: p, ComponentName: componentName, SubmittedAt: time.Now()}
	s.pending, s.submitted = true, true
	s.mu.Unlock()
	return s.Render(ctx)
}

// Render runs the pipeline on the latest snapshot and mounts the result.
func (s *Session) Render(ctx context.Context) (Result, error) {
	s.render.Lock()
	defer s.render.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrClosed
	}
	if !s.submitted {
		s.mu.Unlock()
		return Result{}, ErrNoSource
	}
	snap := s.latest
	s.pending = false
	s.mu.Unlock()

	span, ctx := s.startSpan(ctx)
	start := time.Now()
	mark := start
	stage := func(name string) {
		if span != nil {
			span.Stage(name, mark)
		}
		mark = time.Now()
	}

	n := source.Normalize(snap.Bundle, snap.Profile)
	stage("normalize")
	pl := s.deps.Planner.Plan(n, snap.Profile)
	stage("plan")

	var outcome compiler.Outcome
	if snap.Profile == source.ProfileComponent && !n.Complete {
		outcome = s.tracker.Resolve(ctx, compiler.Request{Source: n.Component, Profile: snap.Profile, ExportName: snap.ComponentName})
		s.deps.Observer.Compiled(outcome)
		stage("compile")
	}

	doc := s.deps.Synth.Synthesize(synth.Input{Source: n, Profile: snap.Profile, Plan: pl, Compile: outcome})
	stage("synthesize")
	frame := s.deps.Host.Mount(doc)
	stage("mount")

	res := Result{
		Frame:        frame,
		Plan:         pl,
		Warnings:     n.Warnings,
		CompileState: outcome.State,
	}
	if outcome.Artifact != nil && len(outcome.Artifact.Warnings) > 0 {
		res.Warnings = append(append([]string(nil), n.Warnings...), outcome.Artifact.Warnings...)
	}
	for _, w := range res.Warnings {
		s.deps.Telemetry.Log(telemetry.LevelWarn, "[preview] %s", w)
	}
	if outcome.Err != nil && !errors.Is(outcome.Err, compiler.ErrNotReady) {
		res.CompileError = outcome.Err.Error()
		s.logCompileError(snap, outcome.Err)
	}

	if s.deps.Preflight != nil && outcome.Artifact != nil && doc.Kind == synth.KindTemplate {
		res.Preflight = s.deps.Preflight.Check(ctx, doc)
		for _, p := range res.Preflight {
			s.deps.Telemetry.Log(telemetry.LevelWarn, "[preflight] %s", p)
		}
		stage("preflight")
	}

	res.Duration = time.Since(start)
	s.deps.Observer.Rendered(snap.Profile, doc.Kind, res.Duration)
	s.logger.Debug("Rendered preview",
		zap.String("frame", frame.Key.String()),
		zap.String("profile", string(snap.Profile)),
		zap.String("kind", string(doc.Kind)),
		zap.Duration("duration", res.Duration))
	if span != nil {
		span.SetTag("frame", frame.Key.String())
		span.SetTag("profile", string(snap.Profile))
		span.SetTag("kind", string(doc.Kind))
		span.SetTag("delivery", string(frame.Delivery.Kind))
		if res.CompileError != "" {
			span.Log("compile error", map[string]any{"error": res.CompileError})
		}
		span.Finish()
		s.deps.Tracer.Submit(span)
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return res, nil
}

func (s *Session) startSpan(ctx context.Context) (*tracing.Span, context.Context) {
	if s.deps.Tracer == nil {
		return nil, ctx
	}
	span, ctx := s.deps.Tracer.StartSpan(ctx, "render")
	span.SetTag("session", s.id.String())
	return span, ctx
}

// logCompileError logs a compilation failure once per source revision.
func (s *Session) logCompileError(snap Snapshot, err error) {
	key := source.Hash(snap.Bundle.Component, snap.ComponentName) + err.Error()
	s.mu.Lock()
	dup := s.logged == key
	s.logged = key
	s.mu.Unlock()
	if !dup {
		s.deps.Telemetry.Log(telemetry.LevelError, "%s", err.Error())
	}
}

func (s *Session) compilerChanged(state compiler.State) {
	s.deps.Observer.CompilerState(state)
	if !state.Terminal() {
		return
	}
	s.mu.Lock()
	wanted := !s.closed && s.submitted && s.latest.Profile == source.ProfileComponent
	s.mu.Unlock()
	if wanted {
		s.background("compiler "+state.String(), false)
	}
}

// background renders on its own goroutine. With onlyPending it skips when
// a foreground render already consumed the update.
func (s *Session) background(reason string, onlyPending bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if onlyPending {
			s.mu.Lock()
			pending := s.pending
			s.mu.Unlock()
			if !pending {
				return
			}
		}
		if _, err := s.Render(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Warn("Background render failed", zap.String("reason", reason), zap.Error(err))
		}
	}()
}

// Flush renders immediately if an update is waiting on the debounce timer.
func (s *Session) Flush(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	return s.Render(ctx)
}

// Wait blocks until background renders started so far have finished.
func (s *Session) Wait() { s.wg.Wait() }

// Close stops pending renders and tears down the frame.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.deps.Host.Teardown()
}
