package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/compiler"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/host"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/plan"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
)

const origin = "http://localhost:8000"

// gatedEngine is esbuild whose loading waits for release.
type gatedEngine struct {
	*compiler.Esbuild
	release chan struct{}
}

func (g *gatedEngine) Load(ctx context.Context) error {
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type countingObserver struct {
	mu       sync.Mutex
	rendered []synth.Kind
	compiled int
	states   []compiler.State
}

func (o *countingObserver) Rendered(_ source.Profile, kind synth.Kind, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rendered = append(o.rendered, kind)
}

func (o *countingObserver) Compiled(compiler.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.compiled++
}

func (o *countingObserver) CompilerState(s compiler.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

type fixture struct {
	session  *Session
	host     *host.Host
	console  *telemetry.Console
	bridge   *telemetry.Bridge
	observer *countingObserver
	mounts   *atomic.Int32
}

type setup struct {
	engine    compiler.Engine
	ready     bool
	debounce  time.Duration
	preflight bool
	tracer    *tracing.Tracer
}

func newFixture(t *testing.T, cfg setup) fixture {
	t.Helper()
	resolver := libs.NewResolver(libs.DefaultCatalog(), origin)
	sy, err := synth.New(resolver, synth.DefaultOptions(), nil)
	require.NoError(t, err)

	h := host.New(host.NewBlobStore(), host.Options{Origin: origin}, nil)
	mounts := &atomic.Int32{}
	h.OnMount(func(host.Frame) { mounts.Add(1) })

	console := telemetry.NewConsole(0)
	tb := telemetry.NewBridge(console, nil, h.IsCurrent, nil)

	if cfg.engine == nil {
		cfg.engine = compiler.NewEsbuild()
	}
	cb := compiler.NewBridge(cfg.engine, nil)
	if cfg.ready {
		cb.Ensure(context.Background())
		_, err := cb.Wait(context.Background())
		require.NoError(t, err)
	}

	obs := &countingObserver{}
	deps := Deps{
		Planner:   plan.New(resolver, nil),
		Compiler:  cb,
		Synth:     sy,
		Host:      h,
		Telemetry: tb,
		Observer:  obs,
		Tracer:    cfg.tracer,
	}
	if cfg.preflight {
		deps.Preflight = NewPreflight(resolver, 2*time.Second, nil)
	}

	s := New(deps, Options{Debounce: cfg.debounce}, nil)
	t.Cleanup(s.Close)
	return fixture{session: s, host: h, console: console, bridge: tb, observer: obs, mounts: mounts}
}

func messages(entries []telemetry.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func TestRenderWithoutSource(t *testing.T) {
	f := newFixture(t, setup{})
	_, err := f.session.Render(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)

	_, ok := f.session.Latest()
	assert.False(t, ok)
}

func TestUpdatesAreDebounced(t *testing.T) {
	f := newFixture(t, setup{debounce: 40 * time.Millisecond})

	for i := 0; i < 5; i++ {
		f.session.Update(source.Bundle{Markup: "<p>rev " + string(rune('a'+i)) + "</p>"}, source.ProfileMarkup, "")
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int32(0), f.mounts.Load())

	require.Eventually(t, func() bool { return f.mounts.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), f.mounts.Load())

	frame, ok := f.host.Current()
	require.True(t, ok)
	assert.Contains(t, frame.Document.HTML, "<p>rev e</p>")
	assert.NotContains(t, frame.Document.HTML, "<p>rev d</p>")

	snap, ok := f.session.Latest()
	require.True(t, ok)
	assert.Equal(t, source.ProfileMarkup, snap.Profile)
}

func TestFlushRendersPendingUpdate(t *testing.T) {
	f := newFixture(t, setup{debounce: time.Hour})
	f.session.Update(source.Bundle{Markup: "<h1>now</h1>"}, source.ProfileMarkup, "")

	res, err := f.session.Flush(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Frame.Document.HTML, "<h1>now</h1>")
	assert.Equal(t, int32(1), f.mounts.Load())
}

func TestSubmitMountsAndKeysTelemetry(t *testing.T) {
	f := newFixture(t, setup{})
	ctx := context.Background()

	first, err := f.session.Submit(ctx, source.Bundle{Markup: "<p>one</p>"}, source.ProfileMarkup, "")
	require.NoError(t, err)
	second, err := f.session.Submit(ctx, source.Bundle{Markup: "<p>two</p>"}, source.ProfileMarkup, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.Frame.Key, second.Frame.Key)

	raw := []byte(`{"source":"preview-console","level":"log","message":"hello"}`)
	assert.ErrorIs(t, f.bridge.Receive(first.Frame.Key, raw), telemetry.ErrStaleFrame)
	require.NoError(t, f.bridge.Receive(second.Frame.Key, raw))
	assert.Equal(t, []string{"hello"}, messages(f.console.Entries()))

	last, ok := f.session.Last()
	require.True(t, ok)
	assert.Equal(t, second.Frame.Key, last.Frame.Key)
	assert.Equal(t, []synth.Kind{synth.KindTemplate, synth.KindTemplate}, f.observer.rendered)
}

func TestNormalizerWarningsAreLogged(t *testing.T) {
	f := newFixture(t, setup{})

	res, err := f.session.Submit(context.Background(), source.Bundle{Script: "import _ from 'lodash';\nconsole.log(1);"}, source.ProfileScript, "")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)

	warns := f.console.Entries(telemetry.LevelWarn)
	require.Len(t, warns, 1)
	assert.True(t, strings.HasPrefix(warns[0].Message, "[preview] unsupported import removed"))
	assert.Equal(t, telemetry.FromHost, warns[0].Origin)
}

func TestComponentImportWarningsAreLogged(t *testing.T) {
	f := newFixture(t, setup{ready: true})

	res, err := f.session.Submit(context.Background(), source.Bundle{Component: "import _ from 'lodash';\nexport default function App() { return <div>ok</div>; }"}, source.ProfileComponent, "")
	require.NoError(t, err)
	assert.Equal(t, synth.KindTemplate, res.Frame.Document.Kind)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "lodash")

	warns := f.console.Entries(telemetry.LevelWarn)
	require.Len(t, warns, 1)
	assert.True(t, strings.HasPrefix(warns[0].Message, "[preview] unsupported import removed"))
}

func TestBlankComponentShowsEmptyPlaceholder(t *testing.T) {
	f := newFixture(t, setup{ready: true})

	res, err := f.session.Submit(context.Background(), source.Bundle{Component: "  \n"}, source.ProfileComponent, "Widget")
	require.NoError(t, err)
	assert.Equal(t, synth.KindPlaceholder, res.Frame.Document.Kind)
	assert.Equal(t, synth.StateEmpty, res.Frame.Document.State)
	assert.Contains(t, res.Frame.Document.HTML, "No component yet")
	assert.Equal(t, compiler.Ready, res.CompileState)
	assert.Empty(t, res.CompileError)
}

func TestCompileErrorLoggedOncePerRevision(t *testing.T) {
	f := newFixture(t, setup{ready: true})
	ctx := context.Background()
	broken := source.Bundle{Component: "export default function App() { return <div>; }"}

	res, err := f.session.Submit(ctx, broken, source.ProfileComponent, "")
	require.NoError(t, err)
	assert.Equal(t, synth.KindPlaceholder, res.Frame.Document.Kind)
	assert.Equal(t, synth.StateCompileFail, res.Frame.Document.State)
	assert.Contains(t, res.CompileError, "compilation failed")

	_, err = f.session.Render(ctx)
	require.NoError(t, err)
	errs := f.console.Entries(telemetry.LevelError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "compilation failed")

	fixed := source.Bundle{Component: "export default function App() { return <div>ok</div>; }"}
	res, err = f.session.Submit(ctx, fixed, source.ProfileComponent, "")
	require.NoError(t, err)
	assert.Equal(t, synth.KindTemplate, res.Frame.Document.Kind)
	assert.Empty(t, res.CompileError)
	assert.Equal(t, compiler.Ready, res.CompileState)
}

func TestCompilerReadinessReplacesPlaceholder(t *testing.T) {
	engine := &gatedEngine{Esbuild: compiler.NewEsbuild(), release: make(chan struct{})}
	f := newFixture(t, setup{engine: engine})
	ctx := context.Background()

	res, err := f.session.Submit(ctx, source.Bundle{Component: "export default function Widget() { return <div>Hi</div>; }"}, source.ProfileComponent, "")
	require.NoError(t, err)
	assert.Equal(t, synth.KindPlaceholder, res.Frame.Document.Kind)
	assert.Equal(t, synth.StateCompiling, res.Frame.Document.State)

	close(engine.release)
	require.Eventually(t, func() bool {
		frame, ok := f.host.Current()
		return ok && frame.Document.Kind == synth.KindTemplate
	}, 2*time.Second, 10*time.Millisecond)

	frame, _ := f.host.Current()
	assert.Contains(t, frame.Document.HTML, `React.createElement("div", null, "Hi")`)
	f.session.Wait()

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	assert.Contains(t, f.observer.states, compiler.Ready)
}

func TestPreflightReportsMountErrors(t *testing.T) {
	f := newFixture(t, setup{ready: true, preflight: true})
	ctx := context.Background()

	ok, err := f.session.Submit(ctx, source.Bundle{Component: "export default function App() { return <p>fine</p>; }"}, source.ProfileComponent, "")
	require.NoError(t, err)
	assert.Empty(t, ok.Preflight)

	bad := source.Bundle{Component: "function Broken() { throw new Error('kaboom'); }\nexport default function App() { return <Broken />; }"}
	res, err := f.session.Submit(ctx, bad, source.ProfileComponent, "")
	require.NoError(t, err)
	assert.Equal(t, synth.KindTemplate, res.Frame.Document.Kind)
	require.NotEmpty(t, res.Preflight)
	assert.Contains(t, res.Preflight[0], "kaboom")

	warns := messages(f.console.Entries(telemetry.LevelWarn))
	require.NotEmpty(t, warns)
	assert.Contains(t, warns[0], "[preflight]")
}

func TestCloseTearsDown(t *testing.T) {
	f := newFixture(t, setup{debounce: 10 * time.Millisecond})
	ctx := context.Background()
	_, err := f.session.Submit(ctx, source.Bundle{Markup: "<p>x</p>"}, source.ProfileMarkup, "")
	require.NoError(t, err)

	f.session.Close()
	_, ok := f.host.Current()
	assert.False(t, ok)

	f.session.Update(source.Bundle{Markup: "<p>y</p>"}, source.ProfileMarkup, "")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), f.mounts.Load())

	_, err = f.session.Render(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	f.session.Close()
}

func TestRenderIsTraced(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := tracing.New("preview", zap.New(core))
	f := newFixture(t, setup{ready: true, tracer: tracer})

	res, err := f.session.Submit(context.Background(), source.Bundle{Component: "export default function App() { return <p/>; }"}, source.ProfileComponent, "")
	require.NoError(t, err)
	tracer.Close()

	entries := logs.FilterMessage("span completed").All()
	require.Len(t, entries, 1)
	tags, ok := entries[0].ContextMap()["tags"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, res.Frame.Key.String(), tags["frame"])
	assert.Equal(t, string(synth.KindTemplate), tags["kind"])
	stages, ok := entries[0].ContextMap()["stages"].(map[string]any)
	require.True(t, ok)
	for _, stage := range []string{"normalize", "plan", "compile", "synthesize", "mount"} {
		assert.Contains(t, stages, stage)
	}

	recent := tracer.Recent("render")
	require.Len(t, recent, 1)
	assert.Equal(t, "normalize", recent[0].Stages[0].Name)
}
