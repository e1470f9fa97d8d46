package session

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/compiler"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
)

// Observer receives pipeline events for metrics.
type Observer interface {
	Rendered(profile source.Profile, kind synth.Kind, d time.Duration)
	Compiled(outcome compiler.Outcome)
	CompilerState(state compiler.State)
}

type nopObserver struct{}

func (nopObserver) Rendered(source.Profile, synth.Kind, time.Duration) {}
func (nopObserver) Compiled(compiler.Outcome) {}
func (nopObserver) CompilerState(compiler.State) {}
