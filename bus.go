package gauge

import (
	"context"
	"fmt"
	"time"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
}

// AddressableTransceiver writes w and then reads len(r) bytes into r as a single bus
// transaction. No other transaction may run on the bus between the two halves.
type AddressableTransceiver interface {
	TxToAddr(ctx context.Context, address byte, w, r []byte) error
}

type I2CBus interface {
	AddressableWriter
	AddressableTransceiver
}

// Delayer suspends the caller for the given duration. It cannot fail; an implementation
// may return early once ctx is done.
type Delayer interface {
	Delay(ctx context.Context, d time.Duration)
}

// SleepDelay is the wall-clock Delayer.
type SleepDelay struct{}

func (SleepDelay) Delay(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
