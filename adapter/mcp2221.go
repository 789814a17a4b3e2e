package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/gauge"
	"github.com/mklimuk/gauge/gaugectx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// HID report command codes (MCP2221 datasheet, section 3.1)
const (
	cmdStatusSetParams  byte = 0x10
	cmdI2CWrite         byte = 0x90
	cmdI2CWriteNoStop   byte = 0x94
	cmdI2CRead          byte = 0x91
	cmdI2CReadRepeated  byte = 0x93
	cmdI2CGetData       byte = 0x40
	paramCancelTransfer byte = 0x10
	paramSetSpeed       byte = 0x20
	statusSpeedAccepted byte = 0x20
	statusEngineBusy    byte = 0x01
	statusReadError     byte = 0x41
)

const (
	reportSize        = 64
	maxReadPayload    = 60
	defaultI2CSpeedHz = 100_000
	minI2CSpeedHz     = 47_000
	maxI2CSpeedHz     = 400_000
	internalClockHz   = 12_000_000
)

var _ gauge.I2CBus = &MCP2221{}

var ErrCommandFailed = errors.New("command failed")
var ErrDeviceNotFound = errors.New("MCP2221 device not found")
var ErrInvalidSpeed = fmt.Errorf("I2C speed must be between %d and %d Hz", minI2CSpeedHz, maxI2CSpeedHz)

// MCP2221 is a Microchip MCP2221(A) USB to I2C bridge driven over HID reports.
// All transactions are serialized; TxToAddr uses a repeated start so no other
// master can slip in between the write and the read.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	index        int
	speedHz      int
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type MCP2221Option func(*MCP2221)

// WithResponseWait sets how long to wait between a HID request and its response.
func WithResponseWait(wait time.Duration) MCP2221Option {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

// WithDeviceIndex selects one adapter when several are plugged in.
func WithDeviceIndex(index int) MCP2221Option {
	return func(d *MCP2221) {
		d.index = index
	}
}

func WithSpeed(hz int) MCP2221Option {
	return func(d *MCP2221) {
		d.speedHz = hz
	}
}

func NewMCP2221(opts ...MCP2221Option) *MCP2221 {
	d := &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
		index:        -1,
		speedHz:      defaultI2CSpeedHz,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init checks the adapter is present and sets the I2C clock.
func (d *MCP2221) Init(ctx context.Context) error {
	divider, err := speedDivider(d.speedHz)
	if err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer closeDevice(dev)
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	d.request[3] = paramSetSpeed
	d.request[4] = divider
	if err := d.exchange(ctx, dev); err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	if d.response[3] != statusSpeedAccepted {
		return fmt.Errorf("set speed to %d Hz: %w", d.speedHz, ErrCommandFailed)
	}
	return nil
}

// speedDivider computes the clock divider byte sent with the set speed request.
func speedDivider(hz int) (byte, error) {
	if hz < minI2CSpeedHz || hz > maxI2CSpeedHz {
		return 0, fmt.Errorf("%d Hz: %w", hz, ErrInvalidSpeed)
	}
	return byte(internalClockHz/hz - 3), nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer closeDevice(dev)
	if err := d.write(ctx, dev, cmdI2CWrite, address, buffer); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	return nil
}

// TxToAddr writes w without a stop condition, then reads len(r) bytes after a repeated start.
func (d *MCP2221) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	if len(r) > maxReadPayload {
		return fmt.Errorf("read of %d bytes exceeds the %d bytes report payload", len(r), maxReadPayload)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer closeDevice(dev)
	if err := d.write(ctx, dev, cmdI2CWriteNoStop, address, w); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	if err := d.read(ctx, dev, cmdI2CReadRepeated, address, r); err != nil {
		return fmt.Errorf("read from %#x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) write(ctx context.Context, dev *hid.Device, cmd byte, address byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.exchange(ctx, dev); err != nil {
		return err
	}
	if d.response[1] == statusEngineBusy {
		slog.DebugContext(ctx, "adapter busy", "cmd", fmt.Sprintf("%#x", cmd))
		return gauge.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, dev *hid.Device, cmd byte, address byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 | 1
	if err := d.exchange(ctx, dev); err != nil {
		return err
	}
	if d.response[1] == statusEngineBusy {
		return gauge.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdI2CGetData
	if err := d.exchange(ctx, dev); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == statusReadError {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx, 0)
}

// ReleaseBus cancels the current I2C transfer and frees the bus.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx, paramCancelTransfer)
}

func (d *MCP2221) status(ctx context.Context, param byte) (*MCP2221Status, error) {
	dev, err := d.open()
	if err != nil {
		return nil, err
	}
	defer closeDevice(dev)
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	d.request[2] = param
	if err := d.exchange(ctx, dev); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9-10: requested I2C transfer length (LE)
		11-12: already transferred number of bytes (LE)
		13:	internal I2C data buffer counter
		14: current I2C communication speed divider
		15: current I2C timeout
		16-17: I2C address being used
		25: read pending
	*/
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}

func (d *MCP2221) open() (*hid.Device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrDeviceNotFound
	}
	idx := d.index
	if idx < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification: %d adapters found", len(devs))
		}
		idx = 0
	}
	if idx >= len(devs) {
		return nil, fmt.Errorf("no device with index %d", idx)
	}
	dev, err := devs[idx].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

func closeDevice(dev *hid.Device) {
	if err := dev.Close(); err != nil {
		slog.Warn("could not close MCP2221 device", "error", err)
	}
}

// exchange sends the request report and reads the response report.
func (d *MCP2221) exchange(ctx context.Context, dev *hid.Device) error {
	verbose := gaugectx.IsVerbose(ctx)
	if verbose {
		slog.DebugContext(ctx, "sending message to adapter", "request", hex.EncodeToString(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	select {
	case <-time.After(d.responseWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.DebugContext(ctx, "read message from adapter", "response", hex.EncodeToString(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
