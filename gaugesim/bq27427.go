// Package gaugesim simulates the register file of a BQ27427 fuel gauge.
//
// Device implements tinygo.org/x/drivers.I2C, so it can be put behind
// i2c.NewTinyGoBus and driven by power.BQ27xxx without hardware:
//
//	sim := gaugesim.New(gaugesim.WithCfgUpdateDelay(2))
//	g := power.NewBQ27xxx(i2c.NewTinyGoBus(sim), gauge.SleepDelay{})
//	soc, err := g.StateOfCharge(ctx)
package gaugesim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/mklimuk/gauge/power"
)

var _ drivers.I2C = &Device{}

var (
	ErrNoDevice     = errors.New("gaugesim: no device at address (NACK)")
	ErrEmptyRequest = errors.New("gaugesim: empty request")
	ErrUnsupported  = errors.New("gaugesim: unsupported transaction")
	ErrBlockAccess  = errors.New("gaugesim: block data access outside config update mode")
)

const blockSize = 32

// Transaction is one recorded bus transaction.
type Transaction struct {
	Addr  uint16
	Write []byte
	Read  int
}

// Device is a simulated gauge. The zero value is not usable, create it with New.
type Device struct {
	mx sync.Mutex

	address   uint16
	registers map[power.Command]uint16
	control   map[power.ControlSubcommand]uint16
	memory    map[power.MemorySubclass][]byte

	flags      uint16
	selected   power.ControlSubcommand
	sealed     bool
	cfgUpdate  bool
	cfgPending bool
	cfgDelay   int // flag reads after SET_CFGUPDATE before the bit is set, <0 never
	cfgLeft    int

	blockControl byte
	dataClass    power.MemorySubclass
	dataBlock    byte

	faultAt  int
	faultErr error
	log      []Transaction
}

type Option func(*Device)

func WithAddress(address uint16) Option {
	return func(d *Device) {
		d.address = address
	}
}

// WithRegister presets the value of a standard command register.
func WithRegister(cmd power.Command, value uint16) Option {
	return func(d *Device) {
		d.registers[cmd] = value
	}
}

// WithControlResult presets the value returned for a control subcommand.
func WithControlResult(sub power.ControlSubcommand, value uint16) Option {
	return func(d *Device) {
		d.control[sub] = value
	}
}

// WithMemory stores raw bytes in data memory starting at offset.
func WithMemory(class power.MemorySubclass, offset int, data []byte) Option {
	return func(d *Device) {
		d.writeMemory(class, offset, data)
	}
}

// WithCfgUpdateDelay sets how many flags reads it takes for configuration update
// mode to show up after SET_CFGUPDATE. A negative value means never.
func WithCfgUpdateDelay(reads int) Option {
	return func(d *Device) {
		d.cfgDelay = reads
	}
}

func Sealed() Option {
	return func(d *Device) {
		d.sealed = true
	}
}

// New returns a healthy BQ27427 at 0x55 with a 3.7V cell at 87% and chem id B4200.
func New(opts ...Option) *Device {
	d := &Device{
		address: power.DefaultAddress,
		registers: map[power.Command]uint16{
			power.CmdTemperature:         2981, // 24.95 C
			power.CmdVoltage:             3700,
			power.CmdFlags:               0x0008,
			power.CmdRemainingCapacity:   870,
			power.CmdFullChargeCapacity:  1000,
			power.CmdAverageCurrent:      uint16(0xFFCE), // -50 mA
			power.CmdAveragePower:        uint16(0xFF4C), // -180 mW
			power.CmdStateOfCharge:       87,
			power.CmdInternalTemperature: 2991,
			power.CmdStateOfHealth:       0x0164,
		},
		control: map[power.ControlSubcommand]uint16{
			power.CtrlStatus:     0x0000,
			power.CtrlDeviceType: 0x0427,
			power.CtrlFWVersion:  0x0202,
			power.CtrlChemID:     power.ChemB4200.Code(),
		},
		memory:   map[power.MemorySubclass][]byte{},
		cfgDelay: 1,
	}
	// design capacity, stored so that a little-endian word read returns 1000 mAh
	d.writeMemory(power.SubclassState, 6, []byte{0xE8, 0x03})
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FailAt makes the n-th transaction from now (1-based) fail with err.
func (d *Device) FailAt(n int, err error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.faultAt = len(d.log) + n
	d.faultErr = err
}

// Transactions returns a copy of the recorded transactions.
func (d *Device) Transactions() []Transaction {
	d.mx.Lock()
	defer d.mx.Unlock()
	res := make([]Transaction, len(d.log))
	copy(res, d.log)
	return res
}

func (d *Device) ConfigUpdate() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.cfgUpdate
}

func (d *Device) ChemID() power.ChemID {
	d.mx.Lock()
	defer d.mx.Unlock()
	return power.ChemIDFromCode(d.control[power.CtrlChemID])
}

// SetRegister changes a standard command register, e.g. to simulate discharge.
func (d *Device) SetRegister(cmd power.Command, value uint16) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.registers[cmd] = value
}

// Tx implements drivers.I2C.
func (d *Device) Tx(addr uint16, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.log = append(d.log, Transaction{Addr: addr, Write: append([]byte(nil), w...), Read: len(r)})
	if d.faultAt > 0 && len(d.log) == d.faultAt {
		d.faultAt = 0
		return d.faultErr
	}
	if addr != d.address {
		return ErrNoDevice
	}
	if len(w) == 0 {
		return ErrEmptyRequest
	}
	if len(r) == 0 {
		return d.write(power.Command(w[0]), w[1:])
	}
	return d.read(power.Command(w[0]), r)
}

func (d *Device) write(cmd power.Command, data []byte) error {
	switch {
	case cmd == power.CmdControl && len(data) == 2:
		d.runControl(power.ControlSubcommand(binary.LittleEndian.Uint16(data)))
	case cmd == power.CmdBlockDataControl && len(data) == 1:
		d.blockControl = data[0]
	case cmd == power.CmdDataClass && len(data) == 1:
		d.dataClass = power.MemorySubclass(data[0])
	case cmd == power.CmdDataBlock && len(data) == 1:
		d.dataBlock = data[0]
	case cmd >= power.CmdBlockDataStart && cmd <= power.CmdBlockDataChecksum:
		if !d.blockAccess() {
			return ErrBlockAccess
		}
		if cmd == power.CmdBlockDataChecksum {
			// the gauge commits the block on checksum write, nothing to do here
			return nil
		}
		d.writeMemory(d.dataClass, d.blockOffset(cmd), data)
	default:
		return fmt.Errorf("%w: write %#02x % x", ErrUnsupported, byte(cmd), data)
	}
	return nil
}

func (d *Device) runControl(sub power.ControlSubcommand) {
	d.selected = sub
	switch sub {
	case power.CtrlSetCfgUpdate:
		if d.sealed {
			return
		}
		d.cfgPending = true
		d.cfgLeft = d.cfgDelay
	case power.CtrlSoftReset, power.CtrlReset:
		d.cfgUpdate = false
		d.cfgPending = false
	case power.CtrlSealed:
		d.sealed = true
	case power.CtrlChemA, power.CtrlChemB, power.CtrlChemC:
		if !d.cfgUpdate {
			return
		}
		for _, id := range []power.ChemID{power.ChemA4350, power.ChemB4200, power.ChemC4400} {
			if chemSub, _ := id.Subcommand(); chemSub == sub {
				d.control[power.CtrlChemID] = id.Code()
			}
		}
	}
}

func (d *Device) read(cmd power.Command, r []byte) error {
	switch {
	case cmd == power.CmdControl:
		putWord(r, d.control[d.selected])
	case cmd == power.CmdFlags:
		putWord(r, d.readFlags())
	case cmd == power.CmdBlockDataChecksum:
		if !d.blockAccess() {
			return ErrBlockAccess
		}
		block := d.block()
		var sum byte
		for _, b := range block {
			sum += b
		}
		r[0] = 0xFF - sum
	case cmd >= power.CmdBlockDataStart && cmd <= power.CmdBlockDataEnd:
		if !d.blockAccess() {
			return ErrBlockAccess
		}
		block := d.block()
		// the block pointer auto-increments and wraps at the block end
		start := int(cmd - power.CmdBlockDataStart)
		for i := range r {
			r[i] = block[(start+i)%blockSize]
		}
	default:
		value, ok := d.registers[cmd]
		if !ok {
			return fmt.Errorf("%w: read %#02x", ErrUnsupported, byte(cmd))
		}
		putWord(r, value)
	}
	return nil
}

func (d *Device) readFlags() uint16 {
	if d.cfgPending {
		d.cfgLeft--
		if d.cfgDelay >= 0 && d.cfgLeft <= 0 {
			d.cfgPending = false
			d.cfgUpdate = true
		}
	}
	flags := d.registers[power.CmdFlags]
	if d.cfgUpdate {
		flags |= uint16(power.FlagCfgUpdateMode)
	}
	return flags
}

func (d *Device) blockAccess() bool {
	return d.cfgUpdate && d.blockControl == 0
}

func (d *Device) blockOffset(cmd power.Command) int {
	return int(d.dataBlock)*blockSize + int(cmd-power.CmdBlockDataStart)
}

func (d *Device) block() []byte {
	start := int(d.dataBlock) * blockSize
	d.grow(d.dataClass, start+blockSize)
	return d.memory[d.dataClass][start : start+blockSize]
}

func (d *Device) writeMemory(class power.MemorySubclass, offset int, data []byte) {
	d.grow(class, offset+len(data))
	copy(d.memory[class][offset:], data)
}

func (d *Device) grow(class power.MemorySubclass, size int) {
	mem := d.memory[class]
	if len(mem) >= size {
		return
	}
	grown := make([]byte, size)
	copy(grown, mem)
	d.memory[class] = grown
}

func putWord(r []byte, value uint16) {
	if len(r) >= 2 {
		binary.LittleEndian.PutUint16(r, value)
		return
	}
	r[0] = byte(value)
}
