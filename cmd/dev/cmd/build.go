package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

const (
	binaryPath  = "dist/gauge"
	mainPackage = "./cmd/gauge"
	buildImage  = "gophertribe/gobuild:1.25-bookworm"
)

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the gauge cli",
		Long: `Build the gauge cli into dist/gauge.

Native builds run go build with cgo enabled (the MCP2221 adapter needs hidapi).
Any other os/arch combination is built inside a docker image.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := buildTarget(cmd)
			if err != nil {
				return err
			}
			if target.native() {
				return build.GoBuild(binaryPath, mainPackage, build.GoBuildOpts{
					Version:       target.version,
					InjectVersion: true,
					ConfigPackage: "main",
					EnableCgo:     true,
					Arch:          target.crossOrArch(),
					OS:            target.crossOrOS(),
				})
			}
			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", target.os, target.arch),
				[]string{"build", "--version", target.version, "--cross-os", target.crossOS, "--cross-arch", target.crossArch},
				build.DockerBuildOpts{
					NoCache: noCache,
					Image:   buildImage,
				})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")
	return cmd
}

type target struct {
	os, arch           string
	crossOS, crossArch string
	version            string
}

func buildTarget(cmd *cobra.Command) (target, error) {
	var t target
	flags := map[string]*string{
		"os":         &t.os,
		"arch":       &t.arch,
		"cross-os":   &t.crossOS,
		"cross-arch": &t.crossArch,
		"version":    &t.version,
	}
	for name, dst := range flags {
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return t, fmt.Errorf("could not get %s flag: %w", name, err)
		}
		*dst = v
	}
	return t, nil
}

func (t target) native() bool {
	return t.os == runtime.GOOS && t.arch == runtime.GOARCH
}

// cross compilation only applies when both cross flags are set
func (t target) cross() bool {
	return t.crossOS != "" && t.crossArch != ""
}

func (t target) crossOrOS() string {
	if t.cross() {
		return t.crossOS
	}
	return t.os
}

func (t target) crossOrArch() string {
	if t.cross() {
		return t.crossArch
	}
	return t.arch
}
