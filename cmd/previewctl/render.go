package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/compiler"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/host"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/plan"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
	"github.com/GriffinCanCode/AgentOS/preview/internal/watch"
)

var (
	renderProfile   string
	renderComponent string
	renderOrigin    string
	renderServer    string
	renderOut       string
)

var renderCmd = &cobra.Command{
	Use:   "render [dir]",
	Short: "Render a source directory into a preview document",
	Long: `Collects markup, style, script and component files from dir and renders
them under the given profile. With --server the source is submitted to a
running preview server instead of rendered locally.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderProfile, "profile", "p", string(source.ProfileMarkup),
		"Preview profile ("+profileNames()+")")
	renderCmd.Flags().StringVar(&renderComponent, "component", "", "Export name of the component to mount")
	renderCmd.Flags().StringVar(&renderOrigin, "origin", "http://localhost:8000", "Origin library URLs resolve against")
	renderCmd.Flags().StringVar(&renderServer, "server", "", "Submit to a running preview server at this URL")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Write the document here instead of stdout")
	rootCmd.AddCommand(renderCmd)
}

func profileNames() string {
	names := make([]string, 0, len(source.Profiles))
	for _, p := range source.Profiles {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

func runRender(cmd *cobra.Command, args []string) error {
	profile, err := source.ParseProfile(renderProfile)
	if err != nil {
		return err
	}
	bundle, err := watch.Collect(args[0], watch.DefaultPatterns())
	if err != nil {
		return err
	}
	if bundle.Empty() {
		return fmt.Errorf("no source files found in %s", args[0])
	}

	if renderServer != "" {
		return submit(cmd.Context(), cmd.OutOrStdout(), bundle, profile)
	}

	html, warnings, err := renderLocal(cmd.Context(), bundle, profile)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	if renderOut == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), html)
		return err
	}
	return os.WriteFile(renderOut, []byte(html), 0o644)
}

// renderLocal runs the pipeline in-process and returns the document with
// every console line the pipeline logged at warn level or above.
func renderLocal(ctx context.Context, b source.Bundle, p source.Profile) (string, []string, error) {
	logger := logging.NewFromSettings("warn", false).Logger
	if verbose {
		logger = logging.NewFromSettings("debug", true).Logger
	}

	resolver := libs.NewResolver(libs.DefaultCatalog(), renderOrigin)
	sy, err := synth.New(resolver, synth.DefaultOptions(), logger)
	if err != nil {
		return "", nil, err
	}
	h := host.New(host.NewBlobStore(), host.Options{Origin: renderOrigin}, logger)
	console := telemetry.NewConsole(0)
	cb := compiler.NewBridge(compiler.NewEsbuild(), logger)
	if p == source.ProfileComponent {
		cb.Ensure(ctx)
		if _, err := cb.Wait(ctx); err != nil {
			return "", nil, err
		}
	}

	s := session.New(session.Deps{
		Planner:   plan.New(resolver, logger),
		Compiler:  cb,
		Synth:     sy,
		Host:      h,
		Telemetry: telemetry.NewBridge(console, nil, h.IsCurrent, logger),
	}, session.Options{}, logger)
	defer s.Close()

	res, err := s.Submit(ctx, b, p, renderComponent)
	if err != nil {
		return "", nil, err
	}
	var notes []string
	for _, e := range console.Entries(telemetry.LevelWarn, telemetry.LevelError) {
		notes = append(notes, e.Message)
	}
	return res.Frame.Document.HTML, notes, nil
}

type renderRequest struct {
	Markup        string `json:"markup"`
	Style         string `json:"style"`
	Script        string `json:"script"`
	Component     string `json:"component"`
	Complete      bool   `json:"complete"`
	Profile       string `json:"profile"`
	ComponentName string `json:"componentName,omitempty"`
}

func submit(ctx context.Context, out io.Writer, b source.Bundle, p source.Profile) error {
	body, err := sonic.Marshal(renderRequest{
		Markup:        b.Markup,
		Style:         b.Style,
		Script:        b.Script,
		Component:     b.Component,
		Complete:      b.Complete,
		Profile:       string(p),
		ComponentName: renderComponent,
	})
	if err != nil {
		return err
	}

	resp, err := resty.New().
		SetTimeout(30*time.Second).
		R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(strings.TrimRight(renderServer, "/") + "/render")
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = sonic.Unmarshal(resp.Body(), &e)
		if e.Error == "" {
			e.Error = resp.Status()
		}
		return errors.New("server rejected render: " + e.Error)
	}
	_, err = out.Write(append(bytes.TrimSpace(resp.Body()), '\n'))
	return err
}
