package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGobotBus_CancelledContext(t *testing.T) {
	b := NewGobotBus(nil, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.WriteToAddr(ctx, 0x55, []byte{0x00}), context.Canceled)
	assert.ErrorIs(t, b.TxToAddr(ctx, 0x55, []byte{0x04}, make([]byte, 2)), context.Canceled)
	assert.Empty(t, b.devices)
}

func TestGobotBus_CloseFinalizes(t *testing.T) {
	b := NewGobotBus(nil, 2)
	assert.NoError(t, b.Close())

	failure := errors.New("finalize failed")
	b.finalize = func() error { return failure }
	assert.ErrorIs(t, b.Close(), failure)
}
