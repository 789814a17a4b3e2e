package power

import (
	"fmt"
	"strings"
)

// ChemID selects the battery charge/discharge profile used by the gauge algorithm.
type ChemID int

const (
	ChemUnknown ChemID = iota
	ChemA4350
	ChemB4200
	ChemC4400
)

const (
	chemCodeA4350 uint16 = 0x3230
	chemCodeB4200 uint16 = 0x1202
	chemCodeC4400 uint16 = 0x3142
)

// ChemIDFromCode maps the code returned by the CHEM_ID control command.
// Unrecognized codes map to ChemUnknown.
func ChemIDFromCode(code uint16) ChemID {
	switch code {
	case chemCodeA4350:
		return ChemA4350
	case chemCodeB4200:
		return ChemB4200
	case chemCodeC4400:
		return ChemC4400
	default:
		return ChemUnknown
	}
}

// ParseChemID accepts the profile names printed by String, case insensitive.
func ParseChemID(s string) (ChemID, error) {
	switch strings.ToUpper(s) {
	case "A4350", "A":
		return ChemA4350, nil
	case "B4200", "B":
		return ChemB4200, nil
	case "C4400", "C":
		return ChemC4400, nil
	}
	return ChemUnknown, fmt.Errorf("unknown chem id %q", s)
}

func (c ChemID) String() string {
	switch c {
	case ChemA4350:
		return "A4350"
	case ChemB4200:
		return "B4200"
	case ChemC4400:
		return "C4400"
	default:
		return "Unknown"
	}
}

func (c ChemID) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// Code returns the CHEM_ID control result reported for this profile, 0 for ChemUnknown.
func (c ChemID) Code() uint16 {
	switch c {
	case ChemA4350:
		return chemCodeA4350
	case ChemB4200:
		return chemCodeB4200
	case ChemC4400:
		return chemCodeC4400
	}
	return 0
}

// Subcommand returns the control subcommand programming this profile.
func (c ChemID) Subcommand() (ControlSubcommand, bool) {
	switch c {
	case ChemA4350:
		return CtrlChemA, true
	case ChemB4200:
		return CtrlChemB, true
	case ChemC4400:
		return CtrlChemC, true
	}
	return 0, false
}

type DeviceType int

const (
	DeviceUnknown DeviceType = iota
	BQ27421
	BQ27426
	BQ27427
)

// DeviceTypeFromCode maps the code returned by the DEVICE_TYPE control command.
func DeviceTypeFromCode(code uint16) DeviceType {
	switch code {
	case 0x421:
		return BQ27421
	case 0x426:
		return BQ27426
	case 0x427:
		return BQ27427
	default:
		return DeviceUnknown
	}
}

func (d DeviceType) String() string {
	switch d {
	case BQ27421:
		return "BQ27421"
	case BQ27426:
		return "BQ27426"
	case BQ27427:
		return "BQ27427"
	default:
		return "Unknown"
	}
}

func (d DeviceType) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
