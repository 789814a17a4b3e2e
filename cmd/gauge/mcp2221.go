package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gauge/adapter"
	"github.com/mklimuk/gauge/cmd/gauge/console"
	"github.com/mklimuk/gauge/gaugectx"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 adapter maintenance",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		return mcp2221Run(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.Status(ctx)
		})
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the pending transfer and release the bus",
	Action: func(c *cli.Context) error {
		return mcp2221Run(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.ReleaseBus(ctx)
		})
	},
}

func mcp2221Run(c *cli.Context, fn func(context.Context, *adapter.MCP2221) (*adapter.MCP2221Status, error)) error {
	a := adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("adapter-index")))
	ctx := gaugectx.SetVerbose(c.Context, c.Bool("verbose"))
	status, err := fn(ctx, a)
	if err != nil {
		return console.Exit(1, "adapter communication error: %s", console.Red(err))
	}
	return encodeYAML(status)
}
