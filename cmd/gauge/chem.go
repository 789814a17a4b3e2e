package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gauge/cmd/gauge/console"
	"github.com/mklimuk/gauge/power"
)

var chemCmd = cli.Command{
	Name:  "chem",
	Usage: "battery chemistry profile",
	Subcommands: cli.Commands{
		&chemGetCmd,
		&chemSetCmd,
	},
}

var chemGetCmd = cli.Command{
	Name: "get",
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		id, err := s.gauge.GetChemID(s.ctx)
		if err != nil {
			return console.Exit(1, "could not read chem id: %s", console.Red(err))
		}
		console.PInfof(console.PictoFlask, "%s", console.White(id))
		return nil
	},
}

var chemSetCmd = cli.Command{
	Name:      "set",
	ArgsUsage: "<A4350|B4200|C4400>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(2, "expected exactly one chem id argument")
		}
		id, err := power.ParseChemID(c.Args().First())
		if err != nil {
			return console.Exit(2, "%s", console.Red(err))
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm("write chem id " + id.String() + " to the gauge?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.gauge.SetChemID(s.ctx, id); err != nil {
			return console.Exit(1, "could not set chem id: %s", console.Red(err))
		}
		console.Infof("chem id set to %s", console.Green(id))
		return nil
	},
}
