package i2c

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/gauge"
	"github.com/mklimuk/gauge/gaugectx"
)

var _ gauge.I2CBus = &GenericBus{}

// GenericBus is a host I2C bus (e.g. /dev/i2c-1) opened through periph.io.
type GenericBus struct {
	mx  sync.Mutex
	bus i2c.BusCloser
}

// NewGenericBus initializes the host drivers and opens the named bus. An empty
// name opens the first available bus.
func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return NewGenericBusFrom(bus), nil
}

// NewGenericBusFrom wraps an already opened periph bus.
func NewGenericBusFrom(bus i2c.BusCloser) *GenericBus {
	return &GenericBus{bus: bus}
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.tx(ctx, address, buffer, nil)
}

// TxToAddr writes w and reads r with a repeated start, as one bus transaction.
func (b *GenericBus) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	return b.tx(ctx, address, w, r)
}

func (b *GenericBus) tx(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	err := b.bus.Tx(uint16(address), w, r)
	if err != nil {
		return fmt.Errorf("i2c transaction with %#x failed: %w", address, err)
	}
	if gaugectx.IsVerbose(ctx) {
		slog.DebugContext(ctx, "i2c tx", "addr", fmt.Sprintf("%#x", address), "w", hex.EncodeToString(w), "r", hex.EncodeToString(r))
	}
	return nil
}

// SetSpeed changes the bus clock. The gauge supports up to 400 kHz.
func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.bus.SetSpeed(f)
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
