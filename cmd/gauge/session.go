package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/gauge"
	"github.com/mklimuk/gauge/adapter"
	"github.com/mklimuk/gauge/cmd/gauge/console"
	"github.com/mklimuk/gauge/gaugectx"
	"github.com/mklimuk/gauge/gaugesim"
	"github.com/mklimuk/gauge/i2c"
	"github.com/mklimuk/gauge/power"
)

const (
	adapterMCP2221 = "mcp2221"
	adapterGeneric = "generic"
	adapterNanoPi  = "nanopi"
	adapterSim     = "sim"
)

// session is an opened bus with a gauge driver on it.
type session struct {
	ctx   context.Context
	gauge *power.BQ27xxx
	close func() error
}

func (s *session) Close() {
	if s.close == nil {
		return
	}
	if err := s.close(); err != nil {
		slog.Warn("could not close bus", "error", err)
	}
}

func parseAddress(s string) (byte, error) {
	addr, err := strconv.ParseUint(s, 0, 7)
	if err != nil {
		return 0, fmt.Errorf("invalid I2C address %q: %w", s, err)
	}
	return byte(addr), nil
}

func openBus(ctx context.Context, c *cli.Context) (gauge.I2CBus, func() error, error) {
	switch name := c.String("adapter"); name {
	case adapterMCP2221:
		mcp := adapter.NewMCP2221(
			adapter.WithDeviceIndex(c.Int("adapter-index")),
			adapter.WithSpeed(c.Int("speed")*1000),
		)
		if err := mcp.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return mcp, nil, nil
	case adapterGeneric:
		bus, err := i2c.NewGenericBus(c.String("device"))
		if err != nil {
			return nil, nil, err
		}
		if err := bus.SetSpeed(physic.Frequency(c.Int("speed")) * physic.KiloHertz); err != nil {
			_ = bus.Close()
			return nil, nil, fmt.Errorf("could not set bus speed: %w", err)
		}
		return bus, bus.Close, nil
	case adapterNanoPi:
		bus, err := adapter.NewNanoPiBus(c.Int("bus"))
		if err != nil {
			return nil, nil, err
		}
		return bus, bus.Close, nil
	case adapterSim:
		return i2c.NewTinyGoBus(gaugesim.New()), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", name)
	}
}

// openSession reads the global flags and returns a ready gauge driver.
func openSession(c *cli.Context) (*session, error) {
	addr, err := parseAddress(c.String("addr"))
	if err != nil {
		return nil, console.Exit(2, "%s", console.Red(err))
	}
	ctx := gaugectx.SetVerbose(c.Context, c.Bool("verbose"))
	bus, closeBus, err := openBus(ctx, c)
	if err != nil {
		return nil, console.Exit(1, "could not open bus: %s", console.Red(err))
	}
	return &session{
		ctx:   ctx,
		gauge: power.NewBQ27xxx(bus, gauge.SleepDelay{}, power.WithAddress(addr)),
		close: closeBus,
	}, nil
}
