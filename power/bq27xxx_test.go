package power

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockI2CBus is a mock implementation of gauge.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	args := m.Called(ctx, address, w, r)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(r) {
		copy(r, data)
	}
	return args.Error(1)
}

// trace renders the recorded calls as "W <hex>" for writes and "T <hex>/<n>" for write-then-read.
func (m *MockI2CBus) trace() []string {
	var res []string
	for _, call := range m.Calls {
		switch call.Method {
		case "WriteToAddr":
			res = append(res, "W "+hex.EncodeToString(call.Arguments.Get(2).([]byte)))
		case "TxToAddr":
			res = append(res, fmt.Sprintf("T %s/%d", hex.EncodeToString(call.Arguments.Get(2).([]byte)), len(call.Arguments.Get(3).([]byte))))
		}
	}
	return res
}

type countingDelay struct {
	calls int
	total time.Duration
}

func (d *countingDelay) Delay(ctx context.Context, dur time.Duration) {
	d.calls++
	d.total += dur
}

func TestBQ27xxx_ReadCommandLittleEndian(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdVoltage)}, mock.Anything).
		Return([]byte{0x34, 0x12}, nil).Once()
	g := NewBQ27xxx(bus, &countingDelay{})

	v, err := g.Voltage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)
	bus.AssertExpectations(t)
}

func TestBQ27xxx_WithAddress(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("TxToAddr", mock.Anything, byte(0x56), []byte{byte(CmdStateOfCharge)}, mock.Anything).
		Return([]byte{0x57, 0x00}, nil).Once()
	g := NewBQ27xxx(bus, &countingDelay{}, WithAddress(0x56))

	soc, err := g.StateOfCharge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(87), soc)
	assert.Equal(t, byte(0x56), g.Address())
	bus.AssertExpectations(t)
}

func TestBQ27xxx_SignedReadings(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdAverageCurrent)}, mock.Anything).
		Return([]byte{0xCE, 0xFF}, nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdAveragePower)}, mock.Anything).
		Return([]byte{0x4C, 0xFF}, nil).Once()
	g := NewBQ27xxx(bus, &countingDelay{})
	ctx := context.Background()

	current, err := g.AverageCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, int16(-50), current)

	power, err := g.AveragePower(ctx)
	require.NoError(t, err)
	assert.Equal(t, int16(-180), power)
}

func TestBQ27xxx_StateOfHealthLowByte(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdStateOfHealth)}, mock.Anything).
		Return([]byte{0x5F, 0x02}, nil).Once()
	g := NewBQ27xxx(bus, &countingDelay{})

	soh, err := g.StateOfHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(95), soh)
	bus.AssertExpectations(t)
}

func TestBQ27xxx_HealthAbortsOnFirstFailure(t *testing.T) {
	nack := errors.New("nack")
	bus := new(MockI2CBus)
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdStateOfHealth)}, mock.Anything).
		Return([]byte{0x64, 0x01}, nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdRemainingCapacity)}, mock.Anything).
		Return(nil, nack).Once()
	g := NewBQ27xxx(bus, &countingDelay{})

	h, err := g.Health(context.Background())
	assert.True(t, IsTransportError(err))
	assert.Equal(t, uint16(100), h.StateOfHealth)
	assert.Equal(t, []string{"T 20/2", "T 0c/2"}, bus.trace())
}

func TestBQ27xxx_ReadControlTransactions(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{0x00, 0x02, 0x00}).Return(nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{0x00}, mock.Anything).
		Return([]byte{0x02, 0x02}, nil).Once()
	g := NewBQ27xxx(bus, &countingDelay{})

	fw, err := g.FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0202), fw)
	assert.Equal(t, []string{"W 000200", "T 00/2"}, bus.trace())
	bus.AssertExpectations(t)
}

func TestBQ27xxx_ProbeDeviceType(t *testing.T) {
	tests := []struct {
		response []byte
		expected DeviceType
	}{
		{[]byte{0x21, 0x04}, BQ27421},
		{[]byte{0x26, 0x04}, BQ27426},
		{[]byte{0x27, 0x04}, BQ27427},
		{[]byte{0x99, 0x99}, DeviceUnknown},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.response), func(t *testing.T) {
			bus := new(MockI2CBus)
			bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{0x00, 0x01, 0x00}).Return(nil).Once()
			bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{0x00}, mock.Anything).
				Return(test.response, nil).Once()
			g := NewBQ27xxx(bus, &countingDelay{})

			dt, err := g.ProbeDeviceType(context.Background())
			require.NoError(t, err)
			assert.Equal(t, test.expected, dt)
		})
	}
}

func TestBQ27xxx_ReadControlWriteFailure(t *testing.T) {
	nack := errors.New("nack")
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nack).Once()
	g := NewBQ27xxx(bus, &countingDelay{})

	_, err := g.GetChemID(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, nack)
	bus.AssertNotCalled(t, "TxToAddr", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBQ27xxx_EnterConfigUpdateMode(t *testing.T) {
	for _, n := range []int{1, 2, 5, 10} {
		t.Run(fmt.Sprintf("bit set on poll %d", n), func(t *testing.T) {
			bus := new(MockI2CBus)
			delay := &countingDelay{}
			bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{0x00, 0x13, 0x00}).Return(nil).Once()
			if n > 1 {
				bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdFlags)}, mock.Anything).
					Return([]byte{0x08, 0x00}, nil).Times(n - 1)
			}
			bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdFlags)}, mock.Anything).
				Return([]byte{0x18, 0x00}, nil).Once()
			g := NewBQ27xxx(bus, delay)

			err := g.EnterConfigUpdateMode(context.Background())
			require.NoError(t, err)
			assert.Equal(t, n, delay.calls)
			assert.Equal(t, time.Duration(n)*500*time.Millisecond, delay.total)
			bus.AssertNumberOfCalls(t, "TxToAddr", n)
			bus.AssertExpectations(t)
		})
	}
}

func TestBQ27xxx_EnterConfigUpdateModeTimeout(t *testing.T) {
	bus := new(MockI2CBus)
	delay := &countingDelay{}
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{0x00, 0x13, 0x00}).Return(nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdFlags)}, mock.Anything).
		Return([]byte{0xEF, 0xFF}, nil)
	g := NewBQ27xxx(bus, delay)

	err := g.EnterConfigUpdateMode(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPollTimeout)
	var derr *DeviceError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, PollTimeout, derr.Kind)
	assert.False(t, IsTransportError(err))
	assert.Equal(t, 10, delay.calls)
	bus.AssertNumberOfCalls(t, "TxToAddr", 10)
}

func TestBQ27xxx_EnterConfigUpdateModeFlagsReadFailure(t *testing.T) {
	nack := errors.New("nack")
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdFlags)}, mock.Anything).
		Return([]byte{0x00, 0x00}, nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdFlags)}, mock.Anything).
		Return(nil, nack).Once()
	delay := &countingDelay{}
	g := NewBQ27xxx(bus, delay)

	err := g.EnterConfigUpdateMode(context.Background())
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, nack)
	assert.Equal(t, 2, delay.calls)
	bus.AssertExpectations(t)
}

func TestBQ27xxx_SetChemIDUnknown(t *testing.T) {
	bus := new(MockI2CBus)
	g := NewBQ27xxx(bus, &countingDelay{})

	err := g.SetChemID(context.Background(), ChemUnknown)
	assert.ErrorIs(t, err, ErrInvalidChemID)
	assert.Empty(t, bus.Calls)
}

func TestBQ27xxx_SetChemID(t *testing.T) {
	tests := []struct {
		chem     ChemID
		expected string
	}{
		{ChemA4350, "W 003000"},
		{ChemB4200, "W 003100"},
		{ChemC4400, "W 003200"},
	}
	for _, test := range tests {
		t.Run(test.chem.String(), func(t *testing.T) {
			bus := new(MockI2CBus)
			bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil)
			bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdFlags)}, mock.Anything).
				Return([]byte{0x10, 0x00}, nil).Once()
			g := NewBQ27xxx(bus, &countingDelay{})

			require.NoError(t, g.SetChemID(context.Background(), test.chem))
			assert.Equal(t, []string{"W 001300", "T 06/2", test.expected, "W 004200"}, bus.trace())
		})
	}
}

func TestBQ27xxx_GetCapacity(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil)
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdFlags)}, mock.Anything).
		Return([]byte{0x10, 0x00}, nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdBlockDataChecksum)}, mock.Anything).
		Return([]byte{0x2A}, nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdBlockDataStart) + 6}, mock.Anything).
		Return([]byte{0x10, 0x27}, nil).Once()
	g := NewBQ27xxx(bus, &countingDelay{})

	capacity, err := g.GetCapacity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(10000), capacity)
	assert.Equal(t, []string{
		"W 001300", // SET_CFGUPDATE
		"T 06/2",   // flags poll
		"W 6100",   // block data control
		"W 3e52",   // data class STATE
		"W 3f00",   // data block 6/32
		"T 60/1",   // checksum
		"T 46/2",   // block data start + 6
		"W 004200", // soft reset
	}, bus.trace())
	bus.AssertExpectations(t)
}

func TestBQ27xxx_ReadMemoryBlockSelection(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil)
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdFlags)}, mock.Anything).
		Return([]byte{0x10, 0x00}, nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdBlockDataChecksum)}, mock.Anything).
		Return([]byte{0x00}, nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdBlockDataStart) + 10}, mock.Anything).
		Return([]byte{0x01, 0x00}, nil).Once()
	g := NewBQ27xxx(bus, &countingDelay{})

	v, err := g.ReadMemory(context.Background(), SubclassDischarge, 42)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), v)
	trace := bus.trace()
	assert.Equal(t, "W 3e31", trace[3])
	assert.Equal(t, "W 3f01", trace[4])
}

func TestBQ27xxx_GetCapacityChecksumFailure(t *testing.T) {
	nack := errors.New("nack")
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil)
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdFlags)}, mock.Anything).
		Return([]byte{0x10, 0x00}, nil).Once()
	bus.On("TxToAddr", mock.Anything, byte(DefaultAddress), []byte{byte(CmdBlockDataChecksum)}, mock.Anything).
		Return(nil, nack).Once()
	g := NewBQ27xxx(bus, &countingDelay{})

	_, err := g.GetCapacity(context.Background())
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, nack)
	// no read of the value and no soft reset after the failed step
	assert.Equal(t, []string{"W 001300", "T 06/2", "W 6100", "W 3e52", "W 3f00", "T 60/1"}, bus.trace())
}

func TestBQ27xxx_ResetCommands(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil)
	g := NewBQ27xxx(bus, &countingDelay{})
	ctx := context.Background()

	require.NoError(t, g.Reset(ctx))
	require.NoError(t, g.SoftReset(ctx))
	assert.Equal(t, []string{"W 004100", "W 004200"}, bus.trace())
}

func TestBQ27xxx_SealUnsealAreNoOps(t *testing.T) {
	bus := new(MockI2CBus)
	g := NewBQ27xxx(bus, &countingDelay{})
	ctx := context.Background()

	assert.NoError(t, g.Unseal(ctx))
	assert.NoError(t, g.Seal(ctx))
	assert.Empty(t, bus.Calls)
}

func TestChemIDFromCode(t *testing.T) {
	tests := []struct {
		code     uint16
		expected ChemID
	}{
		{0x3230, ChemA4350},
		{0x1202, ChemB4200},
		{0x3142, ChemC4400},
		{0x9999, ChemUnknown},
		{0x0000, ChemUnknown},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#04x", test.code), func(t *testing.T) {
			assert.Equal(t, test.expected, ChemIDFromCode(test.code))
		})
	}
}

func TestChemID_CodeRoundTrip(t *testing.T) {
	for _, id := range []ChemID{ChemA4350, ChemB4200, ChemC4400} {
		t.Run(id.String(), func(t *testing.T) {
			assert.Equal(t, id, ChemIDFromCode(id.Code()))
			_, ok := id.Subcommand()
			assert.True(t, ok)
		})
	}
	assert.Equal(t, uint16(0), ChemUnknown.Code())
	_, ok := ChemUnknown.Subcommand()
	assert.False(t, ok)
}

func TestDeviceTypeFromCode(t *testing.T) {
	tests := []struct {
		code     uint16
		expected DeviceType
	}{
		{0x421, BQ27421},
		{0x426, BQ27426},
		{0x427, BQ27427},
		{0x425, DeviceUnknown},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#04x", test.code), func(t *testing.T) {
			assert.Equal(t, test.expected, DeviceTypeFromCode(test.code))
		})
	}
}

func TestParseChemID(t *testing.T) {
	id, err := ParseChemID("b4200")
	require.NoError(t, err)
	assert.Equal(t, ChemB4200, id)

	_, err = ParseChemID("Unknown")
	assert.Error(t, err)
}

func TestBlockChecksum(t *testing.T) {
	data := make([]byte, 32)
	data[0] = 0x20
	data[31] = 0x0A
	assert.Equal(t, byte(0xD5), BlockChecksum(data))
	assert.Equal(t, byte(0xFF), BlockChecksum(make([]byte, 32)))
}

func TestFlags(t *testing.T) {
	assert.True(t, Flags(0x0010).ConfigUpdate())
	assert.False(t, Flags(0xFFEF).ConfigUpdate())
	v, err := Flags(0x0118).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "0x0118", v)
}

func TestKelvinTenthsToCelsius(t *testing.T) {
	assert.InDelta(t, 24.95, KelvinTenthsToCelsius(2981), 0.001)
}
