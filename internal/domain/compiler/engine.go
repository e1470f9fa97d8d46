package compiler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
)

// Engine names accepted by NewEngine.
const (
	EngineEsbuild    = "esbuild"
	EngineStandalone = "standalone"
)

// Engine turns JSX into plain script.
type Engine interface {
	Name() string
	// Load prepares the engine. It is called at most once per bridge.
	Load(ctx context.Context) error
	// Transform returns a *CompilationError for rejected source.
	Transform(src string) (string, error)
}

// ScriptSource supplies the standalone compiler script.
type ScriptSource func(ctx context.Context) ([]byte, error)

// NewEngine builds an engine by name. script is only used by the standalone
// engine.
func NewEngine(name string, script ScriptSource) (Engine, error) {
	switch name {
	case "", EngineEsbuild:
		return NewEsbuild(), nil
	case EngineStandalone:
		if script == nil {
			return nil, errors.New("standalone engine needs a compiler script source")
		}
		return NewStandalone(script), nil
	default:
		return nil, fmt.Errorf("unknown compiler engine %q", name)
	}
}

// Esbuild transpiles in-process with esbuild.
type Esbuild struct {
	options api.TransformOptions
}

// NewEsbuild returns an esbuild engine configured for classic JSX.
func NewEsbuild() *Esbuild {
	return &Esbuild{options: api.TransformOptions{
		Loader:      api.LoaderJSX,
		JSX:         api.JSXTransform,
		JSXFactory:  "React.createElement",
		JSXFragment: "React.Fragment",
		Target:      api.ES2020,
		Sourcefile:  "component.jsx",
		LogLevel:    api.LogLevelSilent,
	}}
}

func (e *Esbuild) Name() string { return EngineEsbuild }

func (e *Esbuild) Load(context.Context) error { return nil }

func (e *Esbuild) Transform(src string) (string, error) {
	res := api.Transform(src, e.options)
	if len(res.Errors) > 0 {
		cerr := &CompilationError{Engine: EngineEsbuild}
		for _, m := range res.Errors {
			d := Diagnostic{Message: m.Text}
			if m.Location != nil {
				d.Line, d.Column, d.LineText = m.Location.Line, m.Location.Column, m.Location.LineText
			}
			cerr.Diagnostics = append(cerr.Diagnostics, d)
		}
		return "", cerr
	}
	return string(res.Code), nil
}

// Standalone runs the browser build of the standalone compiler inside a goja
// VM, the same script a browser would fetch from the static root.
type Standalone struct {
	script ScriptSource

	mu        sync.Mutex
	vm        *goja.Runtime
	transform goja.Callable
	options   goja.Value
}

// NewStandalone returns an engine that loads its compiler from script.
func NewStandalone(script ScriptSource) *Standalone {
	return &Standalone{script: script}
}

func (s *Standalone) Name() string { return EngineStandalone }

func (s *Standalone) Load(ctx context.Context) error {
	code, err := s.script(ctx)
	if err != nil {
		return fmt.Errorf("fetch compiler script: %w", err)
	}

	vm := goja.New()
	vm.Set("window", vm.GlobalObject())
	vm.Set("self", vm.GlobalObject())

	stop := context.AfterFunc(ctx, func() { vm.Interrupt("compiler load cancelled") })
	defer stop()

	if _, err := vm.RunScript("compiler.js", string(code)); err != nil {
		return fmt.Errorf("evaluate compiler script: %w", err)
	}

	babel := vm.Get("Babel")
	if babel == nil || goja.IsUndefined(babel) {
		return errors.New("compiler script did not define Babel")
	}
	fn, ok := goja.AssertFunction(babel.ToObject(vm).Get("transform"))
	if !ok {
		return errors.New("Babel.transform is not a function")
	}

	opts := vm.NewObject()
	_ = opts.Set("presets", []any{"react"})
	_ = opts.Set("filename", "component.jsx")

	s.mu.Lock()
	s.vm, s.transform, s.options = vm, fn, opts
	s.mu.Unlock()
	return nil
}

func (s *Standalone) Transform(src string) (out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vm == nil {
		return "", ErrNotReady
	}

	res, err := s.transform(goja.Undefined(), s.vm.ToValue(src), s.options)
	if err != nil {
		return "", s.compilationError(err)
	}
	code := res.ToObject(s.vm).Get("code")
	if code == nil || goja.IsUndefined(code) {
		return "", &CompilationError{Engine: EngineStandalone, Diagnostics: []Diagnostic{{Message: "compiler returned no code"}}}
	}
	return code.String(), nil
}

func (s *Standalone) compilationError(err error) error {
	var jsErr *goja.Exception
	if !errors.As(err, &jsErr) {
		return err
	}
	d := Diagnostic{Message: jsErr.Value().String()}
	if obj, ok := jsErr.Value().(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			d.Message = msg.String()
		}
		if loc, ok := obj.Get("loc").(*goja.Object); ok {
			d.Line, d.Column = intProp(loc, "line"), intProp(loc, "column")
		}
	}
	return &CompilationError{Engine: EngineStandalone, Diagnostics: []Diagnostic{d}}
}

func intProp(obj *goja.Object, name string) int {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return int(v.ToInteger())
}
