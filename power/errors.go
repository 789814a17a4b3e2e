package power

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// TransportError wraps any failure reported by the bus.
	TransportError ErrorKind = iota + 1
	// PollTimeout means the flags register never showed the expected bit.
	PollTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case TransportError:
		return "transport error"
	case PollTimeout:
		return "poll timeout"
	default:
		return "unknown error"
	}
}

var ErrPollTimeout = errors.New("bq27xxx: flags poll timed out")

// ErrInvalidChemID is returned by SetChemID for ChemUnknown. Nothing is sent to the device.
var ErrInvalidChemID = errors.New("bq27xxx: cannot set unknown chem id")

// DeviceError is the error returned by every BQ27xxx operation touching the bus.
type DeviceError struct {
	Kind ErrorKind
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Kind == PollTimeout {
		return e.Err.Error()
	}
	return fmt.Sprintf("bq27xxx: %s: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// transportError converts a bus error into a DeviceError. A nil error stays nil.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Kind: TransportError, Err: err}
}

func pollTimeout() error {
	return &DeviceError{Kind: PollTimeout, Err: ErrPollTimeout}
}

// IsTransportError reports whether err carries a bus failure.
func IsTransportError(err error) bool {
	var derr *DeviceError
	return errors.As(err, &derr) && derr.Kind == TransportError
}
