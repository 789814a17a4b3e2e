package i2c

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/mklimuk/gauge"
)

var _ gauge.I2CBus = &TinyGoBus{}

// TinyGoBus adapts any tinygo drivers.I2C (machine.I2C on a board, or a host
// side fake) to gauge.I2CBus.
type TinyGoBus struct {
	mx  sync.Mutex
	bus drivers.I2C
}

func NewTinyGoBus(bus drivers.I2C) *TinyGoBus {
	return &TinyGoBus{bus: bus}
}

func (b *TinyGoBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.bus.Tx(uint16(address), buffer, nil); err != nil {
		return fmt.Errorf("could not write to %#x: %w", address, err)
	}
	return nil
}

func (b *TinyGoBus) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.bus.Tx(uint16(address), w, r); err != nil {
		return fmt.Errorf("could not transfer with %#x: %w", address, err)
	}
	return nil
}
