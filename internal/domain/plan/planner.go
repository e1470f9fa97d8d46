package plan

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
)

// Planner decides which runtime libraries a preview needs and in what order
// they load relative to user code.
type Planner struct {
	resolver *libs.Resolver
	logger   *zap.Logger
}

// New creates a planner that resolves library URLs through resolver.
func New(resolver *libs.Resolver, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{resolver: resolver, logger: logger}
}

// Plan computes the dependency plan for a normalized bundle. It is a pure
// function of its inputs.
func (p *Planner) Plan(n source.Normalized, profile source.Profile) Plan {
	out := Plan{Profile: profile}
	if profile == source.ProfileMarkup {
		return out
	}

	found := scan(n)
	out.Capabilities = Capabilities{
		Graphics:  found[sigGraphics],
		Controls:  found[sigControls],
		Creative:  found[sigCreative],
		Component: profile == source.ProfileComponent,
		SelfWired: found[sigSelfWired],
	}

	if out.Capabilities.Component {
		out.Steps = append(out.Steps,
			p.classic(libs.React, CapUI),
			p.classic(libs.ReactDOM, CapUIRuntime),
		)
		out.Gate = append(out.Gate, CapUI, CapUIRuntime)
	}

	switch {
	case out.Capabilities.SelfWired:
		p.logger.Debug("source wires its own graphics imports; no loader injected")
	case out.Capabilities.Controls:
		out.Steps = append(out.Steps, p.classic(libs.Three, CapGraphics), p.controls())
		out.Gate = append(out.Gate, CapGraphics, CapControls)
		out.ImportMap = map[string]string{"three": p.resolver.Module(libs.Three)}
	case out.Capabilities.Graphics:
		out.Steps = append(out.Steps, p.classic(libs.Three, CapGraphics))
		out.Gate = append(out.Gate, CapGraphics)
	}

	// The creative library starts its lifecycle on load when setup/draw are
	// already global, so it goes after user code and user code stays top-level.
	if out.Capabilities.Creative && !out.Capabilities.Component {
		step := p.classic(libs.P5, CapCreative)
		step.Placement = After
		out.Steps = append(out.Steps, step)
		if out.Gated() {
			p.logger.Debug("creative library present; user code runs ungated", zap.Strings("dropped_gate", out.Gate))
			out.Gate = nil
		}
	}

	return out
}

func (p *Planner) classic(lib, capability string) Step {
	return Step{
		Library:    lib,
		Mode:       Classic,
		Placement:  Before,
		Src:        p.resolver.Classic(lib),
		Fallback:   p.resolver.Fallback(lib),
		Global:     p.resolver.Global(lib),
		Capability: capability,
	}
}

func (p *Planner) controls() Step {
	return Step{
		Library:    libs.Controls,
		Mode:       Module,
		Placement:  Before,
		Src:        p.resolver.Module(libs.Controls),
		Fallback:   p.resolver.ModuleFallback(libs.Controls),
		Global:     p.resolver.Global(libs.Controls),
		Namespace:  p.resolver.Global(libs.Three),
		Capability: CapControls,
		Waits:      []string{CapGraphics},
	}
}
