package synth

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bytedance/sonic"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/compiler"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/plan"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
)

// Kind says which path produced a document.
type Kind string

const (
	KindTemplate    Kind = "template"
	KindPassthrough Kind = "passthrough"
	KindPlaceholder Kind = "placeholder"
	KindError       Kind = "error"
)

// Placeholder states, exposed as data-preview-state on placeholder documents.
const (
	StateCompiling   = "compiling"
	StateEmpty       = "no-component"
	StateCompileFail = "compile-error"
	StateUnavailable = "compiler-unavailable"
)

var (
	//go:embed templates/*.tmpl
	templateFS embed.FS

	//go:embed assets/bootstrap.js
	bootstrapJS string

	//go:embed assets/runtime.js
	runtimeJS string
)

// Bootstrap returns the console-relay script injected into every document.
func Bootstrap() string { return bootstrapJS }

// Document is a synthesized preview document.
type Document struct {
	HTML    string         `json:"-"`
	Profile source.Profile `json:"profile"`
	Kind    Kind           `json:"kind"`
	// State is the placeholder state for placeholder documents.
	State string `json:"state,omitempty"`
	// NeedsModules is the needs-module-resolution capability the host uses to
	// choose a delivery strategy.
	NeedsModules bool `json:"needsModules"`
}

// Size is the document length in bytes.
func (d Document) Size() int { return len(d.HTML) }

// Input is everything one synthesis pass depends on.
type Input struct {
	Source  source.Normalized
	Profile source.Profile
	Plan    plan.Plan
	// Compile is only read for the compiled-component profile.
	Compile compiler.Outcome
}

// Options tunes the generated runtime.
type Options struct {
	GateTimeout  time.Duration
	PollInterval time.Duration
	PollRetries  int
	Title        string
}

// DefaultOptions returns the timings used when none are configured.
func DefaultOptions() Options {
	return Options{
		GateTimeout:  8 * time.Second,
		PollInterval: 50 * time.Millisecond,
		PollRetries:  100,
		Title:        "Preview",
	}
}

// Synthesizer assembles preview documents. It is safe for concurrent use and
// deterministic: equal inputs give byte-identical documents.
type Synthesizer struct {
	resolver *libs.Resolver
	opts     Options
	logger   *zap.Logger
	tmpl     *template.Template
	csp      policy
	text     *bluemonday.Policy
}

// New creates a synthesizer resolving libraries through resolver.
func New(resolver *libs.Resolver, opts Options, logger *zap.Logger) (*Synthesizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.GateTimeout <= 0 {
		opts.GateTimeout = def.GateTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.PollRetries <= 0 {
		opts.PollRetries = def.PollRetries
	}
	if opts.Title == "" {
		opts.Title = def.Title
	}

	tmpl, err := template.New("preview").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	return &Synthesizer{
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		tmpl:     tmpl,
		csp:      newPolicy(resolver.Origin(), resolver.ExternalOrigins(), bootstrapJS),
		text:     bluemonday.StrictPolicy(),
	}, nil
}

// view is the template data for every document template.
type view struct {
	CSP       string
	Title     string
	Bootstrap string
	Runtime   string
	Layout    string
	Style     string
	ImportMap string

	Markup      string
	Script      string
	Gate        string
	GateTimeout int64
	Before      []stepView
	After       []stepView
	MountID     string

	State   string
	Heading string
	Detail  string
}

type stepView struct {
	Module      bool
	Src         string
	Fallback    string
	HasFallback bool
	Capability  string
	Global      string
	Namespace   string
	Waits       string
	Retries     int
	Interval    int64
}

// Synthesize builds the document for in. It never fails: an internal error
// yields a minimal error document.
func (s *Synthesizer) Synthesize(in Input) (doc Document) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Synthesis panicked", zap.Any("panic", r), zap.String("profile", string(in.Profile)))
			doc = s.errorDocument(in.Profile, fmt.Errorf("%v", r))
		}
	}()

	if in.Source.Complete {
		return s.passthrough(in)
	}

	var (
		d   Document
		err error
	)
	switch in.Profile {
	case source.ProfileMarkup:
		d, err = s.markup(in)
	case source.ProfileScript, source.ProfileCanvas:
		d, err = s.script(in)
	case source.ProfileComponent:
		d, err = s.component(in)
	default:
		err = fmt.Errorf("unknown runtime profile %q", in.Profile)
	}
	if err != nil {
		s.logger.Error("Synthesis failed", zap.Error(err), zap.String("profile", string(in.Profile)))
		return s.errorDocument(in.Profile, err)
	}
	return d
}

func (s *Synthesizer) markup(in Input) (Document, error) {
	v := s.base(source.ProfileMarkup, false)
	v.Style = in.Source.Style
	v.Markup = in.Source.Markup
	html, err := s.render("plain-markup", v)
	return Document{HTML: html, Profile: in.Profile, Kind: KindTemplate}, err
}

func (s *Synthesizer) script(in Input) (Document, error) {
	v := s.base(in.Profile, true)
	v.Style = in.Source.Style
	v.Markup = in.Source.Markup
	v.Script = strings.TrimRight(in.Source.Script, "\n")
	if err := s.applyPlan(&v, in.Plan); err != nil {
		return Document{}, err
	}
	html, err := s.render("vanilla-script", v)
	return Document{HTML: html, Profile: in.Profile, Kind: KindTemplate, NeedsModules: in.Plan.NeedsModuleResolution()}, err
}

func (s *Synthesizer) component(in Input) (Document, error) {
	art := in.Compile.Artifact
	if art == nil || strings.TrimSpace(in.Source.Component) == "" {
		return s.placeholder(in)
	}

	v := s.base(source.ProfileComponent, true)
	v.Style = in.Source.Style
	v.MountID = compiler.MountID
	v.Script = strings.TrimRight(source.EscapeScriptClose(art.Code), "\n")
	if err := s.applyPlan(&v, in.Plan); err != nil {
		return Document{}, err
	}
	html, err := s.render("compiled-component", v)
	return Document{HTML: html, Profile: in.Profile, Kind: KindTemplate, NeedsModules: in.Plan.NeedsModuleResolution()}, err
}

func (s *Synthesizer) placeholder(in Input) (Document, error) {
	v := s.base(source.ProfileMarkup, false)
	v.Layout = layoutPlaceholder

	var cerr *compiler.CompilationError
	switch {
	case strings.TrimSpace(in.Source.Component) == "":
		v.State, v.Heading = StateEmpty, "No component yet"
		v.Detail = "Add component source to see it rendered here."
	case errors.As(in.Compile.Err, &cerr):
		v.State, v.Heading = StateCompileFail, "Compilation failed"
		v.Detail = s.sanitize(cerr.Error())
	case errors.Is(in.Compile.Err, compiler.ErrLoadFailed) || in.Compile.State == compiler.LoadFailed:
		v.State, v.Heading = StateUnavailable, "Compiler unavailable"
		v.Detail = "The component compiler failed to load. Other runtime profiles still work."
	default:
		v.State, v.Heading = StateCompiling, "Compiling…"
	}

	html, err := s.render("placeholder", v)
	return Document{HTML: html, Profile: in.Profile, Kind: KindPlaceholder, State: v.State}, err
}

// base fills the parts every template shares.
func (s *Synthesizer) base(p source.Profile, runsCode bool) view {
	v := view{
		Title:     s.opts.Title,
		Bootstrap: bootstrapJS,
		Layout:    layoutFor(p),
		CSP:       s.csp.locked,
	}
	if runsCode {
		v.CSP = s.csp.open
		v.Runtime = runtimeJS
	}
	return v
}

func (s *Synthesizer) applyPlan(v *view, p plan.Plan) error {
	for _, st := range p.Steps {
		sv, err := s.stepView(st)
		if err != nil {
			return err
		}
		if st.Placement == plan.After {
			v.After = append(v.After, sv)
		} else {
			v.Before = append(v.Before, sv)
		}
	}
	if p.Gated() {
		gate, err := jsList(p.Gate)
		if err != nil {
			return err
		}
		v.Gate = gate
		v.GateTimeout = s.opts.GateTimeout.Milliseconds()
	}
	if len(p.ImportMap) > 0 {
		data, err := sonic.ConfigStd.Marshal(map[string]any{"imports": p.ImportMap})
		if err != nil {
			return fmt.Errorf("encode import map: %w", err)
		}
		v.ImportMap = string(data)
	}
	return nil
}

func (s *Synthesizer) stepView(st plan.Step) (stepView, error) {
	waits, err := jsList(st.Waits)
	if err != nil {
		return stepView{}, err
	}
	ns := "undefined"
	if st.Namespace != "" {
		ns = source.QuoteJS(st.Namespace)
	}
	return stepView{
		Module:      st.Mode == plan.Module,
		Src:         source.QuoteJS(st.Src),
		Fallback:    source.QuoteJS(st.Fallback),
		HasFallback: st.Fallback != "",
		Capability:  source.QuoteJS(st.Capability),
		Global:      source.QuoteJS(st.Global),
		Namespace:   ns,
		Waits:       waits,
		Retries:     s.opts.PollRetries,
		Interval:    s.opts.PollInterval.Milliseconds(),
	}, nil
}

func (s *Synthesizer) render(name string, v view) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// sanitize reduces a message to inert text for embedding in markup.
func (s *Synthesizer) sanitize(msg string) string {
	return s.text.Sanitize(msg)
}

func jsList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := sonic.ConfigStd.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(data), nil
}

// errorDocument is built without templates, since the templates may be what
// failed.
func (s *Synthesizer) errorDocument(p source.Profile, err error) Document {
	msg := "unknown error"
	if err != nil {
		msg = s.sanitize(err.Error())
	}
	html := `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="Content-Security-Policy" content="default-src 'none'; style-src 'unsafe-inline'">
<title>Preview error</title>
<style>body{margin:0;padding:24px;font-family:system-ui,sans-serif;color:#b00020;background:#fff}pre{white-space:pre-wrap;color:#333}</style>
</head>
<body data-preview-state="synthesis-error">
<h1>Preview failed to render</h1>
<pre>` + msg + `</pre>
</body>
</html>
`
	return Document{HTML: html, Profile: p, Kind: KindError}
}
