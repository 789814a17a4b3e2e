package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gauge/cmd/gauge/console"
	"github.com/mklimuk/gauge/power"
)

var resetCmd = cli.Command{
	Name:  "reset",
	Usage: "reset the gauge",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "soft", Usage: "soft reset, leaves configuration update mode"},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		if c.Bool("soft") {
			err = s.gauge.SoftReset(s.ctx)
		} else {
			err = s.gauge.Reset(s.ctx)
		}
		if err != nil {
			return console.Exit(1, "reset failed: %s", console.Red(err))
		}
		console.Infof("reset sent")
		return nil
	},
}

var rawCmd = cli.Command{
	Name:  "raw",
	Usage: "raw register access",
	Subcommands: cli.Commands{
		&rawCommandCmd,
		&rawControlCmd,
		&rawBlockCmd,
	},
}

func parseUint(c *cli.Context, i int, bits int) (uint64, error) {
	arg := c.Args().Get(i)
	v, err := strconv.ParseUint(arg, 0, bits)
	if err != nil {
		return 0, console.Exit(2, "invalid argument %q: %s", arg, console.Red(err))
	}
	return v, nil
}

var rawCommandCmd = cli.Command{
	Name:      "command",
	ArgsUsage: "<code>",
	Usage:     "read a 16-bit standard command register, e.g. raw command 0x04",
	Action: func(c *cli.Context) error {
		code, err := parseUint(c, 0, 8)
		if err != nil {
			return err
		}
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		v, err := s.gauge.ReadCommand(s.ctx, power.Command(code))
		if err != nil {
			return console.Exit(1, "read failed: %s", console.Red(err))
		}
		console.Printf("%#02x: %s (%d)\n", code, console.White(fmt.Sprintf("%#04x", v)), v)
		return nil
	},
}

var rawControlCmd = cli.Command{
	Name:      "control",
	ArgsUsage: "<subcommand>",
	Usage:     "run a control subcommand and read its result, e.g. raw control 0x0001",
	Action: func(c *cli.Context) error {
		sub, err := parseUint(c, 0, 16)
		if err != nil {
			return err
		}
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		v, err := s.gauge.ReadControl(s.ctx, power.ControlSubcommand(sub))
		if err != nil {
			return console.Exit(1, "control read failed: %s", console.Red(err))
		}
		console.Printf("%#04x: %s (%d)\n", sub, console.White(fmt.Sprintf("%#04x", v)), v)
		return nil
	},
}

var rawBlockCmd = cli.Command{
	Name:      "block",
	ArgsUsage: "<subclass> <block>",
	Usage:     "dump a 32-byte data memory block, e.g. raw block 82 0",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(2, "expected subclass and block index")
		}
		class, err := parseUint(c, 0, 8)
		if err != nil {
			return err
		}
		index, err := parseUint(c, 1, 8)
		if err != nil {
			return err
		}
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		block, err := s.gauge.ReadBlock(s.ctx, power.MemorySubclass(class), byte(index))
		if err != nil {
			return console.Exit(1, "block read failed: %s", console.Red(err))
		}
		console.Printf("%s", hex.Dump(block.Data[:]))
		if block.Valid() {
			console.Infof("checksum %#02x %s", block.Checksum, console.Green("ok"))
		} else {
			console.Warnf("checksum %#02x does not match %#02x", block.Checksum, power.BlockChecksum(block.Data[:]))
		}
		return nil
	},
}
