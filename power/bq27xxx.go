package power

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/mklimuk/gauge"
)

const DefaultAddress = 0x55

// BQ27xxx represents a Texas Instruments BQ2742x single-cell fuel gauge.
// Tested against the BQ27427 command set; BQ27421 and BQ27426 share it.
//
// The gauge does not tolerate long transactions, so selecting a control
// subcommand and reading its result are two separate bus operations.
// A BQ27xxx is not safe for concurrent use and must own its bus exclusively:
// multi-step sequences (control reads, block memory access) are not atomic.
// Nothing read from the chip is cached, every accessor goes to the device.
//
// Usage: Instantiate with NewBQ27xxx, then call StateOfCharge(ctx), Voltage(ctx)...
type BQ27xxx struct {
	transport gauge.I2CBus
	delay     gauge.Delayer
	address   byte
	logger    *slog.Logger
}

type BQ27xxxConfig struct {
	Address byte
	Logger  *slog.Logger
}

type BQ27xxxOption func(*BQ27xxxConfig)

func WithAddress(address byte) BQ27xxxOption {
	return func(c *BQ27xxxConfig) {
		c.Address = address
	}
}

func WithLogger(logger *slog.Logger) BQ27xxxOption {
	return func(c *BQ27xxxConfig) {
		c.Logger = logger
	}
}

// NewBQ27xxx creates a gauge driver on the given bus. The default address 0x55
// is used unless WithAddress is given. A nil delay falls back to gauge.SleepDelay.
func NewBQ27xxx(trans gauge.I2CBus, delay gauge.Delayer, opts ...BQ27xxxOption) *BQ27xxx {
	config := &BQ27xxxConfig{
		Address: DefaultAddress,
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if delay == nil {
		delay = gauge.SleepDelay{}
	}
	return &BQ27xxx{
		transport: trans,
		delay:     delay,
		address:   config.Address,
		logger:    config.Logger.With("device", "bq27xxx", "addr", fmt.Sprintf("%#02x", config.Address)),
	}
}

func (g *BQ27xxx) Address() byte {
	return g.address
}

// ReadCommand reads a 16-bit little-endian value from a standard command register.
func (g *BQ27xxx) ReadCommand(ctx context.Context, cmd Command) (uint16, error) {
	resp := make([]byte, 2)
	err := g.transport.TxToAddr(ctx, g.address, []byte{byte(cmd)}, resp)
	if err != nil {
		return 0, transportError(fmt.Errorf("could not read command %#02x: %w", byte(cmd), err))
	}
	return binary.LittleEndian.Uint16(resp), nil
}

func (g *BQ27xxx) writeCommand(ctx context.Context, cmd Command, data byte) error {
	err := g.transport.WriteToAddr(ctx, g.address, []byte{byte(cmd), data})
	if err != nil {
		return transportError(fmt.Errorf("could not write command %#02x: %w", byte(cmd), err))
	}
	return nil
}

// ReadControl selects a control subcommand and reads back its 16-bit result.
func (g *BQ27xxx) ReadControl(ctx context.Context, sub ControlSubcommand) (uint16, error) {
	if err := g.WriteControl(ctx, sub); err != nil {
		return 0, err
	}
	resp := make([]byte, 2)
	err := g.transport.TxToAddr(ctx, g.address, []byte{byte(CmdControl)}, resp)
	if err != nil {
		return 0, transportError(fmt.Errorf("could not read control %#04x result: %w", uint16(sub), err))
	}
	return binary.LittleEndian.Uint16(resp), nil
}

// WriteControl sends a control subcommand without reading a response.
func (g *BQ27xxx) WriteControl(ctx context.Context, sub ControlSubcommand) error {
	req := []byte{byte(CmdControl), 0, 0}
	binary.LittleEndian.PutUint16(req[1:], uint16(sub))
	err := g.transport.WriteToAddr(ctx, g.address, req)
	if err != nil {
		return transportError(fmt.Errorf("could not write control %#04x: %w", uint16(sub), err))
	}
	return nil
}

// StateOfCharge returns the predicted remaining capacity in percent.
func (g *BQ27xxx) StateOfCharge(ctx context.Context) (uint16, error) {
	return g.ReadCommand(ctx, CmdStateOfCharge)
}

// Voltage returns the cell voltage in mV.
func (g *BQ27xxx) Voltage(ctx context.Context) (uint16, error) {
	return g.ReadCommand(ctx, CmdVoltage)
}

// Temperature returns the measured temperature in units of 0.1 K.
func (g *BQ27xxx) Temperature(ctx context.Context) (uint16, error) {
	return g.ReadCommand(ctx, CmdTemperature)
}

func (g *BQ27xxx) InternalTemperature(ctx context.Context) (uint16, error) {
	return g.ReadCommand(ctx, CmdInternalTemperature)
}

// AverageCurrent returns the average current in mA, negative while discharging.
func (g *BQ27xxx) AverageCurrent(ctx context.Context) (int16, error) {
	raw, err := g.ReadCommand(ctx, CmdAverageCurrent)
	return int16(raw), err
}

// AveragePower returns the average power in mW, negative while discharging.
func (g *BQ27xxx) AveragePower(ctx context.Context) (int16, error) {
	raw, err := g.ReadCommand(ctx, CmdAveragePower)
	return int16(raw), err
}

func (g *BQ27xxx) RemainingCapacity(ctx context.Context) (uint16, error) {
	return g.ReadCommand(ctx, CmdRemainingCapacity)
}

func (g *BQ27xxx) FullChargeCapacity(ctx context.Context) (uint16, error) {
	return g.ReadCommand(ctx, CmdFullChargeCapacity)
}

// StateOfHealth returns the state of health in percent (low byte of the register).
func (g *BQ27xxx) StateOfHealth(ctx context.Context) (uint16, error) {
	raw, err := g.ReadCommand(ctx, CmdStateOfHealth)
	return raw & 0x00FF, err
}

func (g *BQ27xxx) GetFlags(ctx context.Context) (Flags, error) {
	raw, err := g.ReadCommand(ctx, CmdFlags)
	return Flags(raw), err
}

func (g *BQ27xxx) ControlStatus(ctx context.Context) (uint16, error) {
	return g.ReadControl(ctx, CtrlStatus)
}

func (g *BQ27xxx) FirmwareVersion(ctx context.Context) (uint16, error) {
	return g.ReadControl(ctx, CtrlFWVersion)
}

// ProbeDeviceType asks the gauge for its device type code.
func (g *BQ27xxx) ProbeDeviceType(ctx context.Context) (DeviceType, error) {
	code, err := g.ReadControl(ctx, CtrlDeviceType)
	if err != nil {
		return DeviceUnknown, err
	}
	g.logger.DebugContext(ctx, "device type read", "code", fmt.Sprintf("%#04x", code))
	return DeviceTypeFromCode(code), nil
}

func (g *BQ27xxx) GetChemID(ctx context.Context) (ChemID, error) {
	code, err := g.ReadControl(ctx, CtrlChemID)
	if err != nil {
		return ChemUnknown, err
	}
	g.logger.DebugContext(ctx, "chem id read", "code", fmt.Sprintf("%#04x", code))
	return ChemIDFromCode(code), nil
}

// SetChemID reprograms the chemistry profile. The gauge is put in configuration
// update mode and soft reset afterwards. ChemUnknown is rejected before any bus traffic.
func (g *BQ27xxx) SetChemID(ctx context.Context, id ChemID) error {
	sub, ok := id.Subcommand()
	if !ok {
		return ErrInvalidChemID
	}
	if err := g.Unseal(ctx); err != nil {
		return err
	}
	if err := g.EnterConfigUpdateMode(ctx); err != nil {
		return err
	}
	g.logger.DebugContext(ctx, "writing chem id", "chem", id.String())
	if err := g.WriteControl(ctx, sub); err != nil {
		return err
	}
	return g.SoftReset(ctx)
}

// GetCapacity reads the design capacity (mAh) from the State subclass.
func (g *BQ27xxx) GetCapacity(ctx context.Context) (uint16, error) {
	return g.ReadMemory(ctx, SubclassState, 6)
}

// Reset issues a full device reset. It returns as soon as the command is sent.
func (g *BQ27xxx) Reset(ctx context.Context) error {
	g.logger.DebugContext(ctx, "performing hard reset")
	return g.WriteControl(ctx, CtrlReset)
}

// SoftReset leaves configuration update mode. It returns as soon as the command is sent.
func (g *BQ27xxx) SoftReset(ctx context.Context) error {
	g.logger.DebugContext(ctx, "performing soft reset")
	return g.WriteControl(ctx, CtrlSoftReset)
}

// Reading is one pass over the telemetry registers.
type Reading struct {
	StateOfCharge  uint16 `yaml:"soc_percent"`
	Voltage        uint16 `yaml:"voltage_mv"`
	Temperature    uint16 `yaml:"temperature_dk"`
	AverageCurrent int16  `yaml:"average_current_ma"`
	Flags          Flags  `yaml:"flags"`
}

// TemperatureCelsius converts the raw 0.1 K temperature.
func (r Reading) TemperatureCelsius() float32 {
	return KelvinTenthsToCelsius(r.Temperature)
}

func KelvinTenthsToCelsius(raw uint16) float32 {
	return float32(raw)/10 - 273.15
}

// Snapshot reads state of charge, voltage, temperature, average current and
// flags, in that order. The first failure aborts the snapshot.
func (g *BQ27xxx) Snapshot(ctx context.Context) (Reading, error) {
	var r Reading
	var err error
	if r.StateOfCharge, err = g.StateOfCharge(ctx); err != nil {
		return r, err
	}
	if r.Voltage, err = g.Voltage(ctx); err != nil {
		return r, err
	}
	if r.Temperature, err = g.Temperature(ctx); err != nil {
		return r, err
	}
	if r.AverageCurrent, err = g.AverageCurrent(ctx); err != nil {
		return r, err
	}
	if r.Flags, err = g.GetFlags(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// Health is the capacity and aging side of the gauge, read less often than a Reading.
type Health struct {
	StateOfHealth       uint16 `yaml:"soh_percent"`
	RemainingCapacity   uint16 `yaml:"remaining_capacity_mah"`
	FullChargeCapacity  uint16 `yaml:"full_charge_capacity_mah"`
	AveragePower        int16  `yaml:"average_power_mw"`
	InternalTemperature uint16 `yaml:"internal_temperature_dk"`
}

// Health reads state of health, remaining and full charge capacity, average
// power and internal temperature, in that order. The first failure aborts it.
func (g *BQ27xxx) Health(ctx context.Context) (Health, error) {
	var h Health
	var err error
	if h.StateOfHealth, err = g.StateOfHealth(ctx); err != nil {
		return h, err
	}
	if h.RemainingCapacity, err = g.RemainingCapacity(ctx); err != nil {
		return h, err
	}
	if h.FullChargeCapacity, err = g.FullChargeCapacity(ctx); err != nil {
		return h, err
	}
	if h.AveragePower, err = g.AveragePower(ctx); err != nil {
		return h, err
	}
	if h.InternalTemperature, err = g.InternalTemperature(ctx); err != nil {
		return h, err
	}
	return h, nil
}
