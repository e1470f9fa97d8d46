package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
)

// Options configures a probe run.
type Options struct {
	// RemoteURL is the DevTools URL of a running browser. Empty launches a
	// local headless one.
	RemoteURL string
	// Settle is how long the page runs before messages are collected.
	Settle  time.Duration
	Timeout time.Duration
	Logger  *zap.Logger
}

func (o *Options) defaults() {
	if o.Settle <= 0 {
		o.Settle = 2 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Report is what the frame said while it ran.
type Report struct {
	URL      string              `json:"url"`
	Frame    string              `json:"frame,omitempty"`
	Messages []telemetry.Message `json:"messages"`
	// Errors are the console errors among Messages.
	Errors []string `json:"errors,omitempty"`
}

// Problems reports whether the frame logged any error.
func (r *Report) Problems() bool { return len(r.Errors) > 0 }

const (
	messagesScript = `() => JSON.stringify((window.__previewHost && window.__previewHost.messages) || [])`
	frameScript    = `() => (window.__previewHost && window.__previewHost.frame()) || ""`
)

// Run opens pageURL, lets it settle and collects the relayed frame messages.
func Run(ctx context.Context, pageURL string, opts Options) (*Report, error) {
	opts.defaults()
	log := opts.Logger

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	controlURL := opts.RemoteURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("probe: launch: %w", err)
		}
		defer l.Cleanup()
		controlURL = u
		log.Debug("Launched headless browser", zap.String("url", u))
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("probe: connect: %w", err)
	}
	defer b.Close()

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("probe: create tab: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("probe: navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		log.Warn("Page load did not complete", zap.String("url", pageURL), zap.Error(err))
	}

	select {
	case <-time.After(opts.Settle):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	res, err := page.Eval(messagesScript)
	if err != nil {
		return nil, fmt.Errorf("probe: read messages: %w", err)
	}
	report, err := buildReport(pageURL, res.Value.Str())
	if err != nil {
		return nil, err
	}
	if res, err := page.Eval(frameScript); err == nil {
		report.Frame = res.Value.Str()
	}

	log.Info("Probe finished",
		zap.String("url", pageURL),
		zap.String("frame", report.Frame),
		zap.Int("messages", len(report.Messages)),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// buildReport decodes the JSON array the host page collected.
func buildReport(pageURL, raw string) (*Report, error) {
	var items []json.RawMessage
	if err := sonic.UnmarshalString(raw, &items); err != nil {
		return nil, fmt.Errorf("probe: decode messages: %w", err)
	}
	report := &Report{URL: pageURL, Messages: make([]telemetry.Message, 0, len(items))}
	for _, item := range items {
		m, err := telemetry.Decode(item)
		if err != nil {
			continue
		}
		report.Messages = append(report.Messages, m)
		if m.IsConsole() && telemetry.ParseLevel(m.Level) == telemetry.LevelError {
			report.Errors = append(report.Errors, m.Message)
		}
	}
	return report, nil
}
