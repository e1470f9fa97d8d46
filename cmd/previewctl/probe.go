package main

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/preview/internal/probe"
)

var (
	probeSettle  time.Duration
	probeTimeout time.Duration
	probeRemote  string
)

var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "Load a preview host page in a headless browser",
	Long: `Opens the host page at url, lets the mounted frame run and prints the
messages it posted. Exits non-zero when the frame logged an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().DurationVar(&probeSettle, "settle", 2*time.Second, "How long the page runs before messages are read")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 30*time.Second, "Overall deadline")
	probeCmd.Flags().StringVar(&probeRemote, "remote", "", "DevTools URL of a running browser")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := logging.NewFromSettings(level, verbose)

	report, err := probe.Run(cmd.Context(), args[0], probe.Options{
		RemoteURL: probeRemote,
		Settle:    probeSettle,
		Timeout:   probeTimeout,
		Logger:    logger.Component("probe"),
	})
	if err != nil {
		return err
	}

	out, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if report.Problems() {
		return fmt.Errorf("frame logged %d error(s)", len(report.Errors))
	}
	return nil
}
