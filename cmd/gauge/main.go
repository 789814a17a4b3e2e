package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	err := newApp().Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		return 1
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "gauge"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "BQ27xxx fuel gauge cli"
	app.Flags = []cli.Flag{
		// -v belongs to the built-in version flag
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging and bus dumps",
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Value:   adapterMCP2221,
			Usage:   "bus adapter: mcp2221, generic, nanopi or sim",
		},
		&cli.StringFlag{
			Name:  "device",
			Usage: "periph I2C bus name for the generic adapter (empty picks the first bus)",
		},
		&cli.IntFlag{
			Name:  "bus",
			Value: 2,
			Usage: "I2C bus number for the nanopi adapter",
		},
		&cli.IntFlag{
			Name:  "adapter-index",
			Value: -1,
			Usage: "MCP2221 index when several adapters are connected",
		},
		&cli.IntFlag{
			Name:  "speed",
			Value: 100,
			Usage: "I2C clock in kHz for the mcp2221 and generic adapters (the gauge supports up to 400)",
		},
		&cli.StringFlag{
			Name:  "addr",
			Value: "0x55",
			Usage: "gauge I2C address",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&infoCmd,
		&readCmd,
		&monitorCmd,
		&capacityCmd,
		&chemCmd,
		&resetCmd,
		&rawCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	return app
}
