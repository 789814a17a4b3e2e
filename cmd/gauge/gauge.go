package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/gauge/cmd/gauge/console"
	"github.com/mklimuk/gauge/power"
)

type deviceInfo struct {
	Address       string           `yaml:"address"`
	Device        power.DeviceType `yaml:"device"`
	Firmware      string           `yaml:"firmware"`
	Chem          power.ChemID     `yaml:"chem_id"`
	ControlStatus string           `yaml:"control_status"`
	Flags         power.Flags      `yaml:"flags"`
}

var infoCmd = cli.Command{
	Name:  "info",
	Usage: "identify the gauge",
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		info, err := readInfo(s.ctx, s.gauge)
		if err != nil {
			return console.Exit(1, "gauge communication error: %s", console.Red(err))
		}
		return encodeYAML(info)
	},
}

func readInfo(ctx context.Context, g *power.BQ27xxx) (*deviceInfo, error) {
	info := &deviceInfo{Address: fmt.Sprintf("%#02x", g.Address())}
	var err error
	if info.Device, err = g.ProbeDeviceType(ctx); err != nil {
		return nil, err
	}
	fw, err := g.FirmwareVersion(ctx)
	if err != nil {
		return nil, err
	}
	info.Firmware = fmt.Sprintf("%#04x", fw)
	if info.Chem, err = g.GetChemID(ctx); err != nil {
		return nil, err
	}
	status, err := g.ControlStatus(ctx)
	if err != nil {
		return nil, err
	}
	info.ControlStatus = fmt.Sprintf("%016b", status)
	if info.Flags, err = g.GetFlags(ctx); err != nil {
		return nil, err
	}
	return info, nil
}

type fullReading struct {
	power.Reading `yaml:",inline"`
	power.Health  `yaml:",inline"`
}

var readCmd = cli.Command{
	Name:  "read",
	Usage: "read state of charge, voltage, temperature, current and flags",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yaml", Usage: "print raw values as yaml"},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		r, err := s.gauge.Snapshot(s.ctx)
		if err != nil {
			return console.Exit(1, "gauge communication error: %s", console.Red(err))
		}
		h, err := s.gauge.Health(s.ctx)
		if err != nil {
			return console.Exit(1, "gauge communication error: %s", console.Red(err))
		}
		if c.Bool("yaml") {
			return encodeYAML(fullReading{Reading: r, Health: h})
		}
		printReading(r)
		printHealth(h)
		return nil
	},
}

func printReading(r power.Reading) {
	picto := console.PictoBattery
	if r.StateOfCharge < 15 {
		picto = console.PictoLowBattery
	}
	console.PInfof(picto, "%s  %s mV", console.Level(r.StateOfCharge), console.White(r.Voltage))
	console.PInfof(console.PictoBolt, "%s mA", console.White(r.AverageCurrent))
	console.PInfof(console.PictoThermometer, " %s C", console.White(fmt.Sprintf("%.1f", r.TemperatureCelsius())))
	if r.Flags.ConfigUpdate() {
		console.Warnf("gauge is in configuration update mode (flags %#04x)", uint16(r.Flags))
	}
}

func printHealth(h power.Health) {
	console.PInfof(console.PictoBattery, "%s / %s mAh, health %s%%",
		console.White(h.RemainingCapacity), console.White(h.FullChargeCapacity), console.White(h.StateOfHealth))
	console.PInfof(console.PictoBolt, "%s mW", console.White(h.AveragePower))
}

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "read the gauge periodically until interrupted",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Value: 3 * time.Second},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt)
		defer stop()
		ticker := time.NewTicker(c.Duration("interval"))
		defer ticker.Stop()
		for {
			r, err := s.gauge.Snapshot(ctx)
			switch {
			case err != nil && ctx.Err() != nil:
				return nil
			case err != nil:
				slog.Error("gauge read failed", "error", err)
			default:
				console.Printf("%s soc=%s voltage=%dmV current=%dmA temp=%.1fC flags=%#04x\n",
					time.Now().Format(time.TimeOnly), console.Level(r.StateOfCharge), r.Voltage,
					r.AverageCurrent, r.TemperatureCelsius(), uint16(r.Flags))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

var capacityCmd = cli.Command{
	Name:  "capacity",
	Usage: "read the design capacity from data memory",
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		capacity, err := s.gauge.GetCapacity(s.ctx)
		if err != nil {
			return console.Exit(1, "could not read capacity: %s", console.Red(err))
		}
		console.PInfof(console.PictoBattery, "design capacity %s mAh", console.White(capacity))
		return nil
	},
}

func encodeYAML(v interface{}) error {
	enc := yaml.NewEncoder(console.Writer())
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}
