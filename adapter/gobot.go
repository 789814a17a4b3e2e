package adapter

import (
	"context"
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/gauge"
)

var _ gauge.I2CBus = &GobotBus{}

// GobotBus drives devices through a gobot I2C connector, one generic driver per address.
// Gobot has no combined write-read, so TxToAddr issues a write and a read back to back
// while holding the bus lock.
type GobotBus struct {
	mx        sync.Mutex
	connector i2c.Connector
	bus       int
	devices   map[byte]*i2c.GenericDriver
	finalize  func() error
}

func NewGobotBus(connector i2c.Connector, bus int) *GobotBus {
	return &GobotBus{
		connector: connector,
		bus:       bus,
		devices:   map[byte]*i2c.GenericDriver{},
	}
}

// NewNanoPiBus connects the NanoPi NEO I2C adaptor and returns a bus on the given bus number.
func NewNanoPiBus(bus int) (*GobotBus, error) {
	npi := nanopi.NewNeoAdaptor()
	err := npi.I2cBusAdaptor.Connect()
	if err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	b := NewGobotBus(npi, bus)
	b.finalize = npi.I2cBusAdaptor.Finalize
	return b, nil
}

func (b *GobotBus) device(address byte) (*i2c.GenericDriver, error) {
	if dev, ok := b.devices[address]; ok {
		return dev, nil
	}
	dev := i2c.NewGenericDriver(b.connector, fmt.Sprintf("gauge-%#x", address), int(address), func(c i2c.Config) {
		c.SetBus(b.bus)
	})
	if err := dev.Start(); err != nil {
		return nil, fmt.Errorf("start error: %w", err)
	}
	b.devices[address] = dev
	return dev, nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	dev, err := b.device(address)
	if err != nil {
		return err
	}
	if err := dev.Write(buffer); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	return nil
}

func (b *GobotBus) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	dev, err := b.device(address)
	if err != nil {
		return err
	}
	if err := dev.Write(w); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	if err := dev.Read(r); err != nil {
		return fmt.Errorf("read from %#x failed: %w", address, err)
	}
	return nil
}

// Close halts every device driver and finalizes the adaptor when this bus connected it.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	for addr, dev := range b.devices {
		if err := dev.Halt(); err != nil {
			return fmt.Errorf("halt %#x: %w", addr, err)
		}
		delete(b.devices, addr)
	}
	if b.finalize != nil {
		return b.finalize()
	}
	return nil
}
