package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Run unit tests (driver, transports and simulator)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Test(); err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
}

func LintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Lint(); err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
}

func IntegrationTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration tests against a gauge on real hardware",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Integ(); err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
}

// smokeCommands are run in order against the simulated gauge.
var smokeCommands = [][]string{
	{"info"},
	{"read"},
	{"capacity"},
	{"raw", "block", "82", "0"},
}

func SmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the built cli against the simulated gauge",
		RunE: func(cmd *cobra.Command, args []string) error {
			bin, err := cmd.Flags().GetString("bin")
			if err != nil {
				return fmt.Errorf("could not get bin flag: %w", err)
			}
			if _, err := os.Stat(bin); err != nil {
				return fmt.Errorf("cli binary not found, run dev build first: %w", err)
			}
			for _, args := range smokeCommands {
				slog.Info("running", "args", args)
				run := exec.CommandContext(cmd.Context(), bin, append([]string{"--adapter", "sim"}, args...)...)
				run.Stdout = os.Stdout
				run.Stderr = os.Stderr
				if err := run.Run(); err != nil {
					return fmt.Errorf("%v failed: %w", args, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("bin", binaryPath, "path to the gauge cli binary")
	return cmd
}
