package plan

import (
	"regexp"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
)

// signal is a classification outcome a marker can raise.
type signal int

const (
	sigGraphics signal = iota
	sigControls
	sigCreative
	sigSelfWired
)

// marker is one pattern → signal entry. Keep classification in this table so
// a tokenizer can replace it without touching Planner.Plan.
type marker struct {
	name    string
	pattern *regexp.Regexp
	raises  signal
}

var markers = []marker{
	{"three-namespace", regexp.MustCompile(`\bTHREE\s*\.\s*[A-Z]\w*`), sigGraphics},
	{"three-renderer", regexp.MustCompile(`\bnew\s+(?:WebGLRenderer|PerspectiveCamera|OrthographicCamera)\s*\(`), sigGraphics},
	{"orbit-controls", regexp.MustCompile(`\bOrbitControls\b`), sigControls},
	{"p5-lifecycle", regexp.MustCompile(`\bfunction\s+(?:setup|draw)\s*\(\s*\)`), sigCreative},
	{"p5-create-canvas", regexp.MustCompile(`\bcreateCanvas\s*\(`), sigCreative},
	{"p5-instance", regexp.MustCompile(`\bnew\s+p5\s*\(`), sigCreative},
	{"module-import-three", regexp.MustCompile(`(?is)<script\b[^>]*\btype\s*=\s*["']module["'][^>]*>.*?\bfrom\s*["'][^"']*three[^"']*["']`), sigSelfWired},
	{"importmap-three", regexp.MustCompile(`(?is)<script\b[^>]*\btype\s*=\s*["']importmap["'][^>]*>.*?["']three["']`), sigSelfWired},
}

// scan applies the marker table to the combined facet text and folds in the
// libraries the import shims already identified.
func scan(n source.Normalized) map[signal]bool {
	found := make(map[signal]bool)
	text := n.Combined()
	for _, m := range markers {
		if !found[m.raises] && m.pattern.MatchString(text) {
			found[m.raises] = true
		}
	}
	if n.Imports(libs.Three) {
		found[sigGraphics] = true
	}
	if n.Imports(libs.Controls) {
		found[sigControls] = true
	}
	if n.Imports(libs.P5) {
		found[sigCreative] = true
	}
	if found[sigControls] {
		found[sigGraphics] = true
	}
	return found
}
