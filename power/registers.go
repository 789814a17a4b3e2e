package power

import "fmt"

// Command selects one of the gauge's standard or extended command registers.
type Command byte

const (
	CmdControl                      Command = 0x00
	CmdTemperature                  Command = 0x02
	CmdVoltage                      Command = 0x04
	CmdFlags                        Command = 0x06
	CmdNominalAvailableCapacity     Command = 0x08
	CmdFullAvailableCapacity        Command = 0x0A
	CmdRemainingCapacity            Command = 0x0C
	CmdFullChargeCapacity           Command = 0x0E
	CmdAverageCurrent               Command = 0x10
	CmdAveragePower                 Command = 0x18
	CmdStateOfCharge                Command = 0x1C
	CmdInternalTemperature          Command = 0x1E
	CmdStateOfHealth                Command = 0x20
	CmdRemainingCapacityUnfiltered  Command = 0x28
	CmdRemainingCapacityFiltered    Command = 0x2A
	CmdFullChargeCapacityUnfiltered Command = 0x2C
	CmdFullChargeCapacityFiltered   Command = 0x2E
	CmdStateOfChargeUnfiltered      Command = 0x30

	// extended commands, direct memory access
	CmdDataClass         Command = 0x3E
	CmdDataBlock         Command = 0x3F
	CmdBlockDataStart    Command = 0x40
	CmdBlockDataEnd      Command = 0x5F
	CmdBlockDataChecksum Command = 0x60
	CmdBlockDataControl  Command = 0x61
)

// ControlSubcommand is written through CmdControl to select a control function.
type ControlSubcommand uint16

const (
	CtrlStatus         ControlSubcommand = 0x0000
	CtrlDeviceType     ControlSubcommand = 0x0001
	CtrlFWVersion      ControlSubcommand = 0x0002
	CtrlDMCode         ControlSubcommand = 0x0004
	CtrlPrevMACWrite   ControlSubcommand = 0x0007
	CtrlChemID         ControlSubcommand = 0x0008
	CtrlBatInsert      ControlSubcommand = 0x000C
	CtrlBatRemove      ControlSubcommand = 0x000D
	CtrlSetCfgUpdate   ControlSubcommand = 0x0013
	CtrlSmoothSync     ControlSubcommand = 0x0019
	CtrlShutdownEnable ControlSubcommand = 0x001B
	CtrlShutdown       ControlSubcommand = 0x001C
	CtrlSealed         ControlSubcommand = 0x0020
	CtrlPulseSOCInt    ControlSubcommand = 0x0023
	CtrlChemA          ControlSubcommand = 0x0030
	CtrlChemB          ControlSubcommand = 0x0031
	CtrlChemC          ControlSubcommand = 0x0032
	CtrlReset          ControlSubcommand = 0x0041
	CtrlSoftReset      ControlSubcommand = 0x0042
)

// MemorySubclass identifies a block of data memory reachable through the
// extended commands.
type MemorySubclass byte

const (
	SubclassSafety            MemorySubclass = 2
	SubclassChargeTermination MemorySubclass = 36
	SubclassDischarge         MemorySubclass = 49
	SubclassRegisters         MemorySubclass = 64
	SubclassITCfg             MemorySubclass = 80
	SubclassCurrentThresholds MemorySubclass = 81
	SubclassState             MemorySubclass = 82
	SubclassRA0RAM            MemorySubclass = 89
	SubclassData              MemorySubclass = 104
	SubclassCCCal             MemorySubclass = 105
	SubclassCurrent           MemorySubclass = 107
	SubclassChemData          MemorySubclass = 109
	SubclassCodes             MemorySubclass = 112
)

// Flags is the content of the flags register. Only the configuration update
// bit is interpreted, the remaining bits are passed through as read.
type Flags uint16

const FlagCfgUpdateMode Flags = 1 << 4

// ConfigUpdate reports whether the gauge is in configuration update mode.
func (f Flags) ConfigUpdate() bool {
	return f&FlagCfgUpdateMode != 0
}

func (f Flags) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%#04x", uint16(f)), nil
}
