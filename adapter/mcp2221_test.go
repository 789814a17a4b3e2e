package adapter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferToStatus(t *testing.T) {
	buf := make([]byte, reportSize)
	buf[9], buf[10] = 0x03, 0x00
	buf[11], buf[12] = 0x02, 0x00
	buf[13] = 4
	buf[14] = 117
	buf[15] = 9
	buf[16], buf[17] = 0xAA, 0x00
	buf[25] = 1

	status := bufferToStatus(buf)
	assert.Equal(t, &MCP2221Status{
		I2CDataBufferCounter:   4,
		I2CSpeedDivider:        117,
		I2CTimeout:             9,
		CurrentAddress:         "aa00",
		LastWriteRequestedSize: 3,
		LastWriteSentSize:      2,
		ReadPending:            1,
	}, status)
}

func TestNewMCP2221_Options(t *testing.T) {
	d := NewMCP2221(WithDeviceIndex(1), WithSpeed(400_000))
	assert.Equal(t, 1, d.index)
	assert.Equal(t, 400_000, d.speedHz)
	assert.Len(t, d.request, reportSize)
}

func TestSpeedDivider(t *testing.T) {
	tests := []struct {
		hz       int
		expected byte
		err      bool
	}{
		{hz: 100_000, expected: 117},
		{hz: 400_000, expected: 27},
		{hz: 47_000, expected: 252},
		{hz: 0, err: true},
		{hz: -100, err: true},
		{hz: 46_999, err: true},
		{hz: 4_000_000, err: true},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.hz), func(t *testing.T) {
			divider, err := speedDivider(test.hz)
			if test.err {
				assert.ErrorIs(t, err, ErrInvalidSpeed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, divider)
		})
	}
}

func TestInit_RejectsSpeedBeforeOpeningDevice(t *testing.T) {
	d := NewMCP2221(WithSpeed(0))
	assert.ErrorIs(t, d.Init(context.Background()), ErrInvalidSpeed)
}
