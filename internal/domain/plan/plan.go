package plan

import (
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
)

// Mode is how a library script is loaded.
type Mode string

const (
	// Classic loads a global-scope script that defines a global.
	Classic Mode = "classic"
	// Module loads an ES module, which needs a stable origin and may import
	// other modules through the import map.
	Module Mode = "module"
)

// Placement orders a step relative to user code.
type Placement string

const (
	Before Placement = "before"
	After  Placement = "after"
)

// Capability names written to the per-frame capability registry.
const (
	CapGraphics  = "three"
	CapControls  = "controls"
	CapCreative  = "p5"
	CapUI        = "react"
	CapUIRuntime = "react-dom"
)

// Step is one script-injection descriptor.
type Step struct {
	Library   string    `json:"library"`
	Mode      Mode      `json:"mode"`
	Placement Placement `json:"placement"`
	Src       string    `json:"src"`
	// Fallback is tried once when Src fails to load.
	Fallback string `json:"fallback,omitempty"`
	// Global is the global a classic load defines, or the export a module
	// step publishes as a global.
	Global string `json:"global,omitempty"`
	// Namespace is an existing global the published export is also attached
	// to.
	Namespace string `json:"namespace,omitempty"`
	// Capability is marked ready once the step has completed.
	Capability string `json:"capability"`
	// Waits lists capabilities that must be ready before the step runs.
	Waits []string `json:"waits,omitempty"`
}

// Capabilities are the flags the synthesizer and the in-frame runtime act on.
type Capabilities struct {
	Graphics  bool `json:"graphics"`
	Controls  bool `json:"controls"`
	Creative  bool `json:"creative"`
	Component bool `json:"component"`
	// SelfWired means the source loads the graphics library itself through
	// module imports; no loader is injected for it.
	SelfWired bool `json:"selfWired"`
}

// Plan is the derived loading instruction set for one synthesis pass.
type Plan struct {
	Profile      source.Profile `json:"profile"`
	Steps        []Step         `json:"steps"`
	Capabilities Capabilities   `json:"capabilities"`
	// Gate lists the capabilities user code waits for. Empty means user code
	// runs as a plain top-level script.
	Gate []string `json:"gate,omitempty"`
	// ImportMap maps bare specifiers for module steps.
	ImportMap map[string]string `json:"importMap,omitempty"`
}

// NeedsModuleResolution reports whether the document needs a stable origin,
// which decides the delivery strategy.
func (p Plan) NeedsModuleResolution() bool {
	if p.Capabilities.SelfWired {
		return true
	}
	for _, s := range p.Steps {
		if s.Mode == Module {
			return true
		}
	}
	return false
}

// Placed returns the steps with the given placement, in plan order.
func (p Plan) Placed(at Placement) []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Placement == at {
			out = append(out, s)
		}
	}
	return out
}

// Libraries returns the planned library names in order.
func (p Plan) Libraries() []string {
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.Library)
	}
	return out
}

// Gated reports whether user code waits on the readiness gate.
func (p Plan) Gated() bool { return len(p.Gate) > 0 }
