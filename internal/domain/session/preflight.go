package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
	"github.com/GriffinCanCode/AgentOS/preview/internal/isolate"
	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
)

// Preflight mounts a compiled component headlessly against the stub UI
// runtime and reports the errors it logged. It never blocks delivery: the
// session mounts first and only logs what preflight finds.
type Preflight struct {
	resources map[string]isolate.Resource
	origin    string
	timeout   time.Duration
	budget    time.Duration
	logger    *zap.Logger
}

// NewPreflight creates a checker serving the stub runtime at the resolver's
// UI library URLs.
func NewPreflight(resolver *libs.Resolver, timeout time.Duration, logger *zap.Logger) *Preflight {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Preflight{
		resources: isolate.UIRuntime(resolver.Classic(libs.React), resolver.Classic(libs.ReactDOM)),
		origin:    resolver.Origin(),
		timeout:   timeout,
		budget:    10 * time.Second,
		logger:    logger,
	}
}

// Check returns the error messages the document logged while mounting.
func (p *Preflight) Check(ctx context.Context, doc synth.Document) []string {
	f, err := isolate.New(isolate.Options{
		Origin:    p.origin,
		Resources: p.resources,
		Timeout:   p.timeout,
		Budget:    p.budget,
		Logger:    p.logger,
	})
	if err != nil {
		p.logger.Warn("Preflight frame unavailable", zap.Error(err))
		return nil
	}
	defer f.Close()

	var problems []string
	if err := f.Load(ctx, doc.HTML); err != nil {
		problems = append(problems, "mount aborted: "+err.Error())
	} else if _, err := f.Settle(ctx); err != nil {
		problems = append(problems, "mount aborted: "+err.Error())
	}

	for _, raw := range f.Messages() {
		m, err := telemetry.Decode(raw)
		if err != nil || !m.IsConsole() {
			continue
		}
		if telemetry.ParseLevel(m.Level) == telemetry.LevelError {
			problems = append(problems, m.Message)
		}
	}
	return problems
}
