package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/mklimuk/gauge/cmd/dev/cmd"
)

var (
	debug   bool
	version string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("unexpected error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dev",
		Short: "build and test tool for the gauge cli",
		Long: `dev builds the gauge cli and runs the project's checks.

A typical round before pushing:
  dev build            # dist/gauge for this machine, cgo on for the MCP2221 adapter
  dev test             # unit tests, the driver runs against the simulated BQ27427
  dev lint
  dev smoke            # dist/gauge info/read/capacity/raw block with --adapter sim

Cross builds for the NanoPi go through docker:
  dev build --os linux --arch arm --cross-os linux --cross-arch arm`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(slog.New(newLogger(debug)))
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&version, "version", "latest", "Version for build")
	rootCmd.AddCommand(
		cmd.BuildCmd(),
		cmd.TestCmd(),
		cmd.LintCmd(),
		cmd.IntegrationTestCmd(),
		cmd.SmokeCmd(),
	)
	return rootCmd
}

func newLogger(debug bool) *log.Logger {
	charm := log.NewWithOptions(os.Stdout, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "gauge",
	})
	charm.SetColorProfile(termenv.TrueColor)
	charm.SetLevel(log.InfoLevel)
	if debug {
		charm.SetLevel(log.DebugLevel)
	}
	return charm
}
