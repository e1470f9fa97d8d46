package isolate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

//go:embed js/dom.js
var domScript string

var (
	ErrInterrupted = errors.New("isolate: execution interrupted")
	ErrClosed      = errors.New("isolate: frame closed")
)

// Resource is what the frame receives when it requests a URL. Unknown URLs
// fail to load.
type Resource struct {
	Body  string
	Delay time.Duration
	Fail  bool
}

// Options configures a frame.
type Options struct {
	// Origin is the document's origin; relative URLs resolve against it.
	Origin    string
	Resources map[string]Resource
	// Timeout bounds the wall-clock time of each Load, Run or Settle call.
	Timeout time.Duration
	// Budget bounds how far Settle advances the virtual clock.
	Budget time.Duration
	Logger *zap.Logger
}

// DefaultOptions returns the limits used for preflight runs.
func DefaultOptions() Options {
	return Options{
		Origin:  "http://localhost:8000",
		Timeout: 5 * time.Second,
		Budget:  30 * time.Second,
	}
}

// ConsoleLine is output written to the frame's own console, below any
// in-document instrumentation.
type ConsoleLine struct {
	Level   string
	Message string
	At      time.Duration
}

type scriptJob struct {
	el     *goja.Object
	url    string
	module bool
	done   bool
	failed bool
	body   string
}

// Frame is a headless document context: a goja VM with a minimal DOM, timers
// on a virtual clock, script and module loading from Options.Resources and a
// captured parent.postMessage channel.
type Frame struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	opts    Options
	logger  *zap.Logger
	clock   *clock
	api     *goja.Object
	noop    *goja.Program
	imports map[string]string
	modules map[string]*goja.Object
	ordered []*scriptJob

	messages [][]byte
	console  []ConsoleLine
	rejected []*goja.Promise
	fatal    error
	closed   bool
}

// New creates a frame with an empty document.
func New(opts Options) (*Frame, error) {
	def := DefaultOptions()
	if opts.Origin == "" {
		opts.Origin = def.Origin
	}
	opts.Origin = strings.TrimRight(opts.Origin, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Budget <= 0 {
		opts.Budget = def.Budget
	}
	if opts.Resources == nil {
		opts.Resources = map[string]Resource{}
	}

	f := &Frame{
		vm:      goja.New(),
		opts:    opts,
		logger:  opts.Logger,
		clock:   newClock(),
		imports: map[string]string{},
		modules: map[string]*goja.Object{},
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.vm.SetMaxCallStackSize(1024)
	f.vm.SetPromiseRejectionTracker(f.trackRejection)

	noop, err := goja.Compile("noop", "", false)
	if err != nil {
		return nil, fmt.Errorf("compile noop: %w", err)
	}
	f.noop = noop

	if err := f.setupGlobals(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Frame) setupGlobals() error {
	vm := f.vm
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	native := vm.NewObject()
	native.Set("console", func(level, msg string) {
		f.console = append(f.console, ConsoleLine{Level: level, Message: msg, At: f.clock.now})
	})
	native.Set("post", func(payload string) {
		f.messages = append(f.messages, []byte(payload))
	})
	native.Set("now", func() float64 {
		return float64(f.clock.now) / float64(time.Millisecond)
	})
	native.Set("setTimer", f.setTimer)
	native.Set("clearTimer", func(call goja.FunctionCall) goja.Value {
		f.clock.cancel(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	})
	native.Set("scriptInserted", func(call goja.FunctionCall) goja.Value {
		f.scriptInserted(call.Argument(0).ToObject(f.vm))
		return goja.Undefined()
	})
	native.Set("parseFragment", parseFragment)
	native.Set("importModule", func(spec string) goja.Value {
		return f.importFrom(f.documentURL(), spec)
	})
	native.Set("importFrom", func(referrer, spec string) goja.Value {
		return f.importFrom(referrer, spec)
	})
	native.Set("requireModule", f.requireModule)
	native.Set("location", f.location())

	if err := vm.GlobalObject().DefineDataProperty("__isolate", native, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return fmt.Errorf("install natives: %w", err)
	}

	ctor, err := vm.RunScript("dom.js", domScript)
	if err != nil {
		return fmt.Errorf("load dom: %w", err)
	}
	build, ok := goja.AssertFunction(ctor)
	if !ok {
		return fmt.Errorf("load dom: unexpected %s", ctor.ExportType())
	}
	api, err := build(goja.Undefined(), vm.GlobalObject(), native)
	if err != nil {
		return fmt.Errorf("load dom: %w", err)
	}
	f.api = api.ToObject(vm)
	return nil
}

func (f *Frame) location() *goja.Object {
	loc := f.vm.NewObject()
	u, err := url.Parse(f.documentURL())
	if err != nil {
		u = &url.URL{}
	}
	loc.Set("href", f.documentURL())
	loc.Set("origin", f.opts.Origin)
	loc.Set("protocol", u.Scheme+":")
	loc.Set("host", u.Host)
	loc.Set("hostname", u.Hostname())
	loc.Set("port", u.Port())
	loc.Set("pathname", u.Path)
	loc.Set("search", "")
	loc.Set("hash", "")
	return loc
}

func (f *Frame) documentURL() string { return f.opts.Origin + "/" }

// guard interrupts the VM when ctx ends or the wall-clock limit passes. The
// returned release waits for the watcher to exit before clearing, so a late
// interrupt cannot leak into the next call.
func (f *Frame) guard(ctx context.Context) func() {
	timer := time.NewTimer(f.opts.Timeout)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-timer.C:
			f.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			f.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()
	return func() {
		timer.Stop()
		close(done)
		<-exited
		f.vm.ClearInterrupt()
	}
}

// Load parses doc into the frame and runs its parser-inserted scripts in
// document order: classic scripts immediately, module scripts after parsing.
// DOMContentLoaded fires once the module scripts ran; load fires on the
// next turn of the clock.
func (f *Frame) Load(ctx context.Context, doc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	stop := f.guard(ctx)
	defer stop()

	tree, err := parseDocument(doc)
	if err != nil {
		return err
	}
	scripts, err := f.callAPI("load", f.vm.ToValue(tree))
	if err != nil {
		return fmt.Errorf("build document: %w", err)
	}

	var deferred []*goja.Object
	for _, el := range f.elements(scripts) {
		if f.fatal != nil {
			return f.fatal
		}
		switch typ := strings.ToLower(strings.TrimSpace(f.attr(el, "type"))); typ {
		case "importmap":
			f.readImportMap(el.Get("textContent").String())
		case "module":
			deferred = append(deferred, el)
		case "", "text/javascript", "application/javascript":
			f.runParsed(el)
		default:
			f.logger.Debug("Skipping script", zap.String("type", typ))
		}
	}
	for _, el := range deferred {
		if f.fatal != nil {
			return f.fatal
		}
		f.runParsed(el)
	}
	if _, err := f.callAPI("ready", f.vm.ToValue("interactive")); err != nil {
		f.handle(err)
	}
	f.afterTask()
	f.clock.schedule(0, 0, func() {
		if _, err := f.callAPI("ready", f.vm.ToValue("complete")); err != nil {
			f.handle(err)
		}
	})
	return f.fatal
}

// runParsed executes a parser-inserted script synchronously.
func (f *Frame) runParsed(el *goja.Object) {
	module := strings.EqualFold(f.attr(el, "type"), "module")
	src := f.attr(el, "src")
	if src == "" {
		f.runSource(el, f.documentURL(), el.Get("textContent").String(), module)
		return
	}
	abs := f.absolute(src)
	res, ok := f.opts.Resources[abs]
	f.execute(&scriptJob{el: el, url: abs, module: module, done: true, failed: !ok || res.Fail, body: res.Body})
}

func (f *Frame) readImportMap(text string) {
	var m struct {
		Imports map[string]string `json:"imports"`
	}
	if err := sonic.UnmarshalString(text, &m); err != nil {
		f.report(f.vm.NewTypeError("Failed to parse import map: " + err.Error()))
		return
	}
	for k, v := range m.Imports {
		f.imports[k] = f.absolute(v)
	}
}

func (f *Frame) absolute(ref string) string {
	base, err := url.Parse(f.documentURL())
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// scriptInserted starts a script added to the connected document. Scripts
// with async=false run in insertion order once each has loaded; async
// scripts run as soon as they load.
func (f *Frame) scriptInserted(el *goja.Object) {
	module := strings.EqualFold(f.attr(el, "type"), "module")
	src := f.attr(el, "src")
	if src == "" {
		f.runSource(el, f.documentURL(), el.Get("textContent").String(), module)
		return
	}
	job := &scriptJob{el: el, url: f.absolute(src), module: module}
	async := el.Get("async").ToBoolean()
	if !async {
		f.ordered = append(f.ordered, job)
	}
	res, ok := f.opts.Resources[job.url]
	f.clock.schedule(res.Delay, 0, func() {
		job.done = true
		job.failed = !ok || res.Fail
		job.body = res.Body
		if async {
			f.execute(job)
			return
		}
		for len(f.ordered) > 0 && f.ordered[0].done {
			next := f.ordered[0]
			f.ordered = f.ordered[1:]
			f.execute(next)
		}
	})
}

func (f *Frame) execute(job *scriptJob) {
	if job.failed {
		f.fire(job.el, "error")
		return
	}
	doc := f.api.Get("document").ToObject(f.vm)
	doc.Set("currentScript", job.el)
	f.runSource(job.el, job.url, job.body, job.module)
	doc.Set("currentScript", goja.Null())
	f.fire(job.el, "load")
}

func (f *Frame) runSource(el *goja.Object, name, body string, module bool) {
	if !module {
		_, err := f.vm.RunScript(name, rewriteDynamic(body))
		f.handle(err)
		return
	}
	fn, err := f.vm.RunScript(name, transformModule(body))
	if err != nil {
		f.handle(err)
		return
	}
	call, _ := goja.AssertFunction(fn)
	_, err = call(goja.Undefined(), f.vm.NewObject(), f.vm.ToValue(name))
	f.handle(err)
}

// loadModule evaluates a module once per URL and returns its namespace.
func (f *Frame) loadModule(u string) (*goja.Object, error) {
	if ns, ok := f.modules[u]; ok {
		return ns, nil
	}
	res, ok := f.opts.Resources[u]
	if !ok || res.Fail {
		return nil, fmt.Errorf("Failed to fetch dynamically imported module: %s", u)
	}
	ns := f.vm.NewObject()
	f.modules[u] = ns
	fn, err := f.vm.RunScript(u, transformModule(res.Body))
	if err != nil {
		delete(f.modules, u)
		return nil, err
	}
	call, _ := goja.AssertFunction(fn)
	if _, err := call(goja.Undefined(), ns, f.vm.ToValue(u)); err != nil {
		delete(f.modules, u)
		return nil, err
	}
	return ns, nil
}

func (f *Frame) requireModule(call goja.FunctionCall) goja.Value {
	referrer := f.documentURL()
	if r := call.Argument(1); !goja.IsUndefined(r) && !goja.IsNull(r) {
		referrer = r.String()
	}
	u, err := resolve(f.imports, call.Argument(0).String(), referrer)
	if err != nil {
		panic(f.vm.NewTypeError(err.Error()))
	}
	ns, err := f.loadModule(u)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			panic(interrupted)
		}
		panic(f.errorValue(err))
	}
	return ns
}

// importFrom resolves a dynamic import on the clock after the module's
// resource delay.
func (f *Frame) importFrom(referrer, spec string) goja.Value {
	p, resolveFn, rejectFn := f.vm.NewPromise()
	u, err := resolve(f.imports, spec, referrer)
	if err != nil {
		f.clock.schedule(0, 0, func() { rejectFn(f.vm.NewTypeError(err.Error())) })
		return f.vm.ToValue(p)
	}
	f.clock.schedule(f.opts.Resources[u].Delay, 0, func() {
		ns, err := f.loadModule(u)
		if err != nil {
			var interrupted *goja.InterruptedError
			if errors.As(err, &interrupted) {
				f.handle(err)
				return
			}
			rejectFn(f.errorValue(err))
			return
		}
		resolveFn(ns)
	})
	return f.vm.ToValue(p)
}

func (f *Frame) errorValue(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}
	return f.vm.NewTypeError(err.Error())
}

func (f *Frame) setTimer(call goja.FunctionCall) goja.Value {
	fn := call.Argument(0)
	ms := call.Argument(1).ToFloat()
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	delay := time.Duration(ms * float64(time.Millisecond))
	var every time.Duration
	if call.Argument(2).ToBoolean() {
		every = max(delay, time.Millisecond)
	}
	t := f.clock.schedule(delay, every, func() { f.invoke(fn) })
	return f.vm.ToValue(t.id)
}

func (f *Frame) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		f.rejected = append(f.rejected, p)
	case goja.PromiseRejectionHandle:
		for i, q := range f.rejected {
			if q == p {
				f.rejected = append(f.rejected[:i], f.rejected[i+1:]...)
				break
			}
		}
	}
}

// afterTask runs pending promise jobs and reports rejections nobody handled.
func (f *Frame) afterTask() {
	if _, err := f.vm.RunProgram(f.noop); err != nil {
		f.handle(err)
	}
	for len(f.rejected) > 0 && f.fatal == nil {
		batch := f.rejected
		f.rejected = nil
		for _, p := range batch {
			if _, err := f.callAPI("rejection", f.vm.ToValue(p), p.Result()); err != nil {
				f.handle(err)
			}
		}
	}
}

func (f *Frame) invoke(fn goja.Value, args ...goja.Value) {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return
	}
	_, err := call(goja.Undefined(), args...)
	f.handle(err)
}

func (f *Frame) fire(target *goja.Object, event string) {
	if _, err := f.callAPI("fire", target, f.vm.ToValue(event)); err != nil {
		f.handle(err)
	}
}

func (f *Frame) callAPI(name string, args ...goja.Value) (goja.Value, error) {
	fn, ok := goja.AssertFunction(f.api.Get(name))
	if !ok {
		return nil, fmt.Errorf("dom api %q missing", name)
	}
	return fn(f.api, args...)
}

// handle routes a script failure: interrupts stop the frame, exceptions
// become error events on the window.
func (f *Frame) handle(err error) {
	if err == nil {
		return
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if f.fatal == nil {
			f.fatal = fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
			f.logger.Warn("Frame interrupted", zap.Error(f.fatal))
		}
		return
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		f.report(ex.Value())
		return
	}
	f.report(f.vm.NewGoError(err))
}

func (f *Frame) report(v goja.Value) {
	if _, err := f.callAPI("report", v); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			f.handle(err)
			return
		}
		f.console = append(f.console, ConsoleLine{Level: "error", Message: "report failed: " + err.Error(), At: f.clock.now})
	}
}

func (f *Frame) attr(el *goja.Object, name string) string {
	get, ok := goja.AssertFunction(el.Get("getAttribute"))
	if !ok {
		return ""
	}
	v, err := get(el, f.vm.ToValue(name))
	if err != nil || v == nil || goja.IsNull(v) || goja.IsUndefined(v) {
		return ""
	}
	return v.String()
}

func (f *Frame) elements(list goja.Value) []*goja.Object {
	obj := list.ToObject(f.vm)
	n := int(obj.Get("length").ToInteger())
	out := make([]*goja.Object, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, obj.Get(strconv.Itoa(i)).ToObject(f.vm))
	}
	return out
}

// advance runs every task due at or before limit.
func (f *Frame) advance(limit time.Duration) error {
	for f.fatal == nil {
		t, ok := f.clock.next(limit)
		if !ok {
			break
		}
		t.run()
		f.afterTask()
	}
	return f.fatal
}

// Run advances the virtual clock by d, running every task that falls due.
func (f *Frame) Run(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	stop := f.guard(ctx)
	defer stop()

	limit := f.clock.now + d
	if err := f.advance(limit); err != nil {
		return err
	}
	f.clock.now = limit
	return nil
}

// Settle runs tasks until none remain or the virtual budget is spent.
// Repeating timers keep a frame busy, so Settle reports whether it went
// idle.
func (f *Frame) Settle(ctx context.Context) (idle bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, ErrClosed
	}
	stop := f.guard(ctx)
	defer stop()

	if err := f.advance(f.clock.now + f.opts.Budget); err != nil {
		return false, err
	}
	return f.clock.pending() == 0, nil
}

// Post delivers a host message to the frame's window on the next task.
func (f *Frame) Post(data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.clock.schedule(0, 0, func() {
		if _, err := f.callAPI("message", f.vm.ToValue(data), f.vm.ToValue(f.opts.Origin)); err != nil {
			f.handle(err)
		}
	})
}

// Eval runs code in the frame's global scope. Exceptions are returned, not
// reported to the document.
func (f *Frame) Eval(ctx context.Context, code string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	stop := f.guard(ctx)
	defer stop()

	v, err := f.vm.RunString(code)
	if err != nil {
		return nil, err
	}
	f.afterTask()
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, f.fatal
	}
	return v.Export(), f.fatal
}

// Messages returns every payload posted to the parent, as JSON, in order.
func (f *Frame) Messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.messages))
	copy(out, f.messages)
	return out
}

// Console returns output that reached the frame's own console.
func (f *Frame) Console() []ConsoleLine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ConsoleLine(nil), f.console...)
}

// Text returns the text content of the element with the given id.
func (f *Frame) Text(elementID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false
	}
	v, err := f.callAPI("text", f.vm.ToValue(elementID))
	if err != nil || goja.IsNull(v) {
		return "", false
	}
	return v.String(), true
}

// Now returns the virtual time elapsed since the frame was created.
func (f *Frame) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock.now
}

// Close releases the VM.
func (f *Frame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.vm = nil
	f.api = nil
	f.modules = nil
	return nil
}
