package synth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/compiler"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/plan"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
)

const origin = "http://localhost:8000"

type fixture struct {
	synth   *Synthesizer
	planner *plan.Planner
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	resolver := libs.NewResolver(libs.DefaultCatalog(), origin)
	s, err := New(resolver, DefaultOptions(), nil)
	require.NoError(t, err)
	return fixture{synth: s, planner: plan.New(resolver, nil)}
}

func (f fixture) input(b source.Bundle, p source.Profile) Input {
	n := source.Normalize(b, p)
	return Input{Source: n, Profile: p, Plan: f.planner.Plan(n, p)}
}

func (f fixture) render(b source.Bundle, p source.Profile) Document {
	return f.synth.Synthesize(f.input(b, p))
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	bundles := map[source.Profile]source.Bundle{
		source.ProfileMarkup:    {Markup: "<h1>Hi</h1>", Style: "h1{color:red}"},
		source.ProfileScript:    {Markup: "<div id=app></div>", Script: "import { OrbitControls } from 'three/addons/controls/OrbitControls.js';\nnew OrbitControls(camera, el);"},
		source.ProfileCanvas:    {Script: "function setup(){ createCanvas(200, 200); }"},
		source.ProfileComponent: {Component: "export default function App(){ return null; }"},
	}

	for p, b := range bundles {
		t.Run(string(p), func(t *testing.T) {
			in := f.input(b, p)
			first := f.synth.Synthesize(in)
			second := f.synth.Synthesize(in)
			assert.Equal(t, first.HTML, second.HTML)
			assert.NotEqual(t, KindError, first.Kind)
		})
	}
}

func TestPlainMarkupLocksScripts(t *testing.T) {
	f := newFixture(t)

	doc := f.render(source.Bundle{Markup: "<h1>Hello</h1>", Style: "h1 { color: red }", Script: "alert(1)"}, source.ProfileMarkup)

	sum := sha256.Sum256([]byte(Bootstrap()))
	hash := "'sha256-" + base64.StdEncoding.EncodeToString(sum[:]) + "'"
	assert.Equal(t, KindTemplate, doc.Kind)
	assert.Contains(t, doc.HTML, "script-src "+hash)
	assert.Contains(t, doc.HTML, "<script>"+Bootstrap()+"</script>")
	assert.Contains(t, doc.HTML, "<h1>Hello</h1>")
	assert.Contains(t, doc.HTML, "h1 { color: red }")
	assert.NotContains(t, doc.HTML, "alert(1)")
	assert.NotContains(t, doc.HTML, "window.__preview = ")
	assert.False(t, doc.NeedsModules)
}

func TestDocumentStructure(t *testing.T) {
	f := newFixture(t)
	src := "export default function App(){ return null; }"
	component := f.input(source.Bundle{Component: src}, source.ProfileComponent)
	component.Compile = readyOutcome(t, src, "App")

	docs := map[source.Profile]Document{
		source.ProfileMarkup:    f.render(source.Bundle{Markup: "<h1>Hello</h1>", Script: "alert(1)"}, source.ProfileMarkup),
		source.ProfileScript:    f.render(source.Bundle{Markup: "<h1>Hello</h1>", Script: "console.log(1)"}, source.ProfileScript),
		source.ProfileCanvas:    f.render(source.Bundle{Script: "new OrbitControls(new THREE.PerspectiveCamera(), document.body);"}, source.ProfileCanvas),
		source.ProfileComponent: f.synth.Synthesize(component),
	}

	for p, doc := range docs {
		t.Run(string(p), func(t *testing.T) {
			root, err := htmlquery.Parse(strings.NewReader(doc.HTML))
			require.NoError(t, err)

			assert.Len(t, htmlquery.Find(root, "//head/meta[@http-equiv='Content-Security-Policy']"), 1)
			assert.Len(t, htmlquery.Find(root, "//body"), 1)
			first := htmlquery.FindOne(root, "//head/script[1]")
			require.NotNil(t, first)
			assert.Equal(t, Bootstrap(), htmlquery.InnerText(first))
		})
	}

	markup, err := htmlquery.Parse(strings.NewReader(docs[source.ProfileMarkup].HTML))
	require.NoError(t, err)
	assert.Equal(t, "Hello", htmlquery.InnerText(htmlquery.FindOne(markup, "//body/h1")))
	assert.Empty(t, htmlquery.Find(markup, "//body//script"))

	canvas, err := htmlquery.Parse(strings.NewReader(docs[source.ProfileCanvas].HTML))
	require.NoError(t, err)
	assert.NotNil(t, htmlquery.FindOne(canvas, "//head/script[@type='importmap']"))
	assert.Empty(t, htmlquery.Find(canvas, "//body//script[@type='importmap']"))

	comp, err := htmlquery.Parse(strings.NewReader(docs[source.ProfileComponent].HTML))
	require.NoError(t, err)
	assert.Len(t, htmlquery.Find(comp, "//body/div[@id='root']"), 1)
}

func TestScriptWithControlsOrdersLoadsBeforeGate(t *testing.T) {
	f := newFixture(t)
	script := "import * as THREE from 'three';\nimport { OrbitControls } from 'three/examples/jsm/controls/OrbitControls.js';\nconsole.log('user code');\nnew OrbitControls(new THREE.PerspectiveCamera(), document.body);"

	doc := f.render(source.Bundle{Script: script}, source.ProfileCanvas)

	html := doc.HTML
	importMap := strings.Index(html, `<script type="importmap">{"imports":{"three":"`+origin+`/static/libs/three/three.module.js"}}</script>`)
	base := strings.Index(html, `__preview.loadClassic("`+origin+`/static/libs/three/three.min.js"`)
	addon := strings.Index(html, `import("`+origin+`/static/libs/three/examples/jsm/controls/OrbitControls.js")`)
	gate := strings.Index(html, `__preview.gate(["three","controls"], 8000, function () {`)
	user := strings.Index(html, "console.log('user code');")

	require.True(t, importMap > 0 && base > 0 && addon > 0 && gate > 0 && user > 0, html)
	assert.Less(t, importMap, strings.Index(html, "</head>"))
	assert.Less(t, base, addon)
	assert.Less(t, addon, gate)
	assert.Less(t, gate, user)
	assert.Contains(t, html, `__preview.when(["three"], function () {`)
	assert.Contains(t, html, `__preview.publish("OrbitControls", mod["OrbitControls"] || mod.default, "THREE");`)
	assert.Contains(t, html, "'unsafe-eval'")
	assert.Contains(t, html, "https://cdn.jsdelivr.net")
	assert.Contains(t, html, layoutCanvas)
	assert.True(t, doc.NeedsModules)
}

func TestScriptAndCanvasDifferOnlyInLayout(t *testing.T) {
	f := newFixture(t)
	b := source.Bundle{Script: "console.log(1)"}

	script := f.render(b, source.ProfileScript).HTML
	canvas := f.render(b, source.ProfileCanvas).HTML

	assert.Contains(t, script, layoutScript)
	assert.Contains(t, canvas, layoutCanvas)
	assert.Equal(t, script, strings.Replace(canvas, layoutCanvas, layoutScript, 1))
}

func TestCreativeLibraryLoadsAfterUserCode(t *testing.T) {
	f := newFixture(t)

	doc := f.render(source.Bundle{Script: "function setup() { createCanvas(100, 100); }"}, source.ProfileCanvas)

	user := strings.Index(doc.HTML, "function setup()")
	lib := strings.Index(doc.HTML, `__preview.loadClassic("`+origin+`/static/libs/p5/p5.min.js"`)
	require.Positive(t, user)
	require.Positive(t, lib)
	assert.Less(t, user, lib)
	assert.NotContains(t, doc.HTML, "__preview.gate(")
}

func TestUngatedScriptRunsTopLevel(t *testing.T) {
	f := newFixture(t)

	doc := f.render(source.Bundle{Script: "console.log('plain')"}, source.ProfileScript)

	assert.Contains(t, doc.HTML, "<script>\nconsole.log('plain')\n</script>")
	assert.False(t, doc.NeedsModules)
}

func readyOutcome(t *testing.T, src, name string) compiler.Outcome {
	t.Helper()
	b := compiler.NewBridge(compiler.NewEsbuild(), nil)
	tr := compiler.NewTracker(b, nil)
	b.Ensure(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := b.Wait(ctx)
	require.NoError(t, err)
	return tr.Resolve(context.Background(), compiler.Request{Source: src, Profile: source.ProfileComponent, ExportName: name})
}

func TestComponentDocument(t *testing.T) {
	f := newFixture(t)
	src := "export default function Widget(){ return <div>{\"</script>\"}</div>; }"
	in := f.input(source.Bundle{Component: src}, source.ProfileComponent)
	in.Compile = readyOutcome(t, src, "Widget")
	require.NotNil(t, in.Compile.Artifact)

	doc := f.synth.Synthesize(in)

	assert.Equal(t, KindTemplate, doc.Kind)
	assert.Contains(t, doc.HTML, `<div id="root"></div>`)
	react := strings.Index(doc.HTML, "/static/libs/react/react.production.min.js")
	reactDOM := strings.Index(doc.HTML, "/static/libs/react/react-dom.production.min.js")
	gate := strings.Index(doc.HTML, `__preview.gate(["react","react-dom"]`)
	require.True(t, react > 0 && reactDOM > 0 && gate > 0)
	assert.Less(t, react, reactDOM)
	assert.Less(t, reactDOM, gate)
	assert.Contains(t, doc.HTML, `<\/script>`)
	assert.Equal(t, 1, strings.Count(doc.HTML, "</body>"))
	assert.False(t, doc.NeedsModules)
}

func TestComponentPlaceholders(t *testing.T) {
	f := newFixture(t)

	t.Run("no component yet", func(t *testing.T) {
		doc := f.render(source.Bundle{}, source.ProfileComponent)
		assert.Equal(t, KindPlaceholder, doc.Kind)
		assert.Equal(t, StateEmpty, doc.State)
	})

	t.Run("blank source with ready compiler", func(t *testing.T) {
		in := f.input(source.Bundle{Component: " \n"}, source.ProfileComponent)
		in.Compile = compiler.Outcome{State: compiler.Ready, Artifact: &compiler.Artifact{Code: "void 0;"}}
		doc := f.synth.Synthesize(in)
		assert.Equal(t, KindPlaceholder, doc.Kind)
		assert.Equal(t, StateEmpty, doc.State)
		assert.Contains(t, doc.HTML, "No component yet")
	})

	t.Run("compiling", func(t *testing.T) {
		in := f.input(source.Bundle{Component: "function App(){}"}, source.ProfileComponent)
		in.Compile = compiler.Outcome{State: compiler.Loading, Err: compiler.ErrNotReady}
		doc := f.synth.Synthesize(in)
		assert.Equal(t, StateCompiling, doc.State)
		assert.Contains(t, doc.HTML, `data-preview-state="compiling"`)
		assert.NotContains(t, doc.HTML, "window.__preview = ")
	})

	t.Run("compile failure", func(t *testing.T) {
		src := "export default function Widget(){ return <div>Hi</div>;"
		in := f.input(source.Bundle{Component: src}, source.ProfileComponent)
		in.Compile = readyOutcome(t, src, "Widget")
		require.Error(t, in.Compile.Err)

		doc := f.synth.Synthesize(in)

		assert.Equal(t, KindPlaceholder, doc.Kind)
		assert.Equal(t, StateCompileFail, doc.State)
		assert.Contains(t, doc.HTML, "Compilation failed")
	})

	t.Run("compiler unavailable", func(t *testing.T) {
		in := f.input(source.Bundle{Component: "function App(){}"}, source.ProfileComponent)
		in.Compile = compiler.Outcome{State: compiler.LoadFailed, Err: compiler.ErrLoadFailed}
		assert.Equal(t, StateUnavailable, f.synth.Synthesize(in).State)
	})
}

func TestPlaceholderSanitizesDiagnostics(t *testing.T) {
	f := newFixture(t)
	in := f.input(source.Bundle{Component: "x"}, source.ProfileComponent)
	in.Compile = compiler.Outcome{State: compiler.Ready, Err: &compiler.CompilationError{
		Diagnostics: []compiler.Diagnostic{{Message: `<img src=x onerror=alert(1)> unexpected`}},
	}}

	doc := f.synth.Synthesize(in)

	assert.NotContains(t, doc.HTML, "<img")
	assert.Contains(t, doc.HTML, "unexpected")
}

func TestPassthroughUnchanged(t *testing.T) {
	f := newFixture(t)
	page := "<!DOCTYPE html>\n<html><head><script src=\"https://example.com/x.js\"></script></head><body>hi</body></html>"

	doc := f.render(source.Bundle{Markup: page}, source.ProfileScript)

	assert.Equal(t, KindPassthrough, doc.Kind)
	assert.Equal(t, page, doc.HTML)
	assert.False(t, doc.NeedsModules)
}

func TestPassthroughRewritesLibraryPaths(t *testing.T) {
	f := newFixture(t)
	page := `<!DOCTYPE html><html><head>
<script src="./libs/three/three.min.js"></script>
<script type="importmap">{"imports":{"three":"/static/libs/three/three.module.js"}}</script>
</head><body><script type="module">import * as THREE from "three"; console.log(1 < 2);</script></body></html>`

	doc := f.render(source.Bundle{Markup: page, Complete: true}, source.ProfileMarkup)

	assert.Equal(t, KindPassthrough, doc.Kind)
	assert.Contains(t, doc.HTML, `src="`+origin+`/static/libs/three/three.min.js"`)
	assert.Contains(t, doc.HTML, `"three":"`+origin+`/static/libs/three/three.module.js"`)
	assert.Contains(t, doc.HTML, "console.log(1 < 2);")
	assert.True(t, doc.NeedsModules)
}

func TestUnknownProfileYieldsErrorDocument(t *testing.T) {
	f := newFixture(t)

	doc := f.synth.Synthesize(Input{Profile: source.Profile("webgpu")})

	assert.Equal(t, KindError, doc.Kind)
	assert.Contains(t, doc.HTML, "Preview failed to render")
	assert.Contains(t, doc.HTML, "webgpu")
}
