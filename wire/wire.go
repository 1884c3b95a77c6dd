// Package wire defines the data shapes and error codes the remote-procedure
// boundary carries: a host-facing time/key encoding and the error-code
// vocabulary the RPC surface returns. The RPC transport itself is out of
// core scope; this package only fixes the shapes so a future transport can
// be added without touching the simulation core.
package wire

import (
	"errors"
	"fmt"

	"github.com/us-irs/asynchronix/vtime"
)

// Time is the wire encoding of vtime.MonotonicTime: (seconds, nanos) with
// nanos < 1_000_000_000, matching spec §6's "Time wire encoding" exactly.
type Time struct {
	Seconds int64  `json:"seconds" cbor:"seconds"`
	Nanos   uint32 `json:"nanos" cbor:"nanos"`
}

// ErrNanosOutOfRange is returned by DecodeTime when Nanos is not strictly
// less than one billion.
var ErrNanosOutOfRange = errors.New("wire: nanos must be less than 1_000_000_000")

// EncodeTime converts a MonotonicTime to its wire representation.
func EncodeTime(t vtime.MonotonicTime) Time {
	return Time{Seconds: t.Seconds, Nanos: t.SubsecNanos}
}

// DecodeTime converts a wire Time back to a MonotonicTime, validating the
// nanos field's range.
func DecodeTime(t Time) (vtime.MonotonicTime, error) {
	if t.Nanos >= 1_000_000_000 {
		return vtime.MonotonicTime{}, ErrNanosOutOfRange
	}
	return vtime.MonotonicTime{Seconds: t.Seconds, SubsecNanos: t.Nanos}, nil
}

// Key is the wire encoding of an action.Key's identity: two sub-fields, an
// index into the Scheduler's Action Key Registry (see
// scheduler.Scheduler.WireKey) and a generation counter, used to detect
// cancellations sent against a stale key after its slot has been reused. Mirrors the original implementation's
// EventKey{subkey1, subkey2} raw-parts scheme.
type Key struct {
	Subkey1 uint32 `json:"subkey1" cbor:"subkey1"`
	Subkey2 uint32 `json:"subkey2" cbor:"subkey2"`
}

// ErrorCode enumerates the error vocabulary the RPC boundary surfaces, per
// spec §6/§7. Core-side errors are mapped to the matching ErrorCode at the
// RPC adapter boundary, not inside the simulation core itself.
type ErrorCode string

const (
	ErrCodeSimulationNotStarted     ErrorCode = "SimulationNotStarted"
	ErrCodeSourceNotFound           ErrorCode = "SourceNotFound"
	ErrCodeSinkNotFound             ErrorCode = "SinkNotFound"
	ErrCodeInvalidMessage           ErrorCode = "InvalidMessage"
	ErrCodeInvalidTime              ErrorCode = "InvalidTime"
	ErrCodeInvalidDeadline          ErrorCode = "InvalidDeadline"
	ErrCodeInvalidPeriod            ErrorCode = "InvalidPeriod"
	ErrCodeInvalidKey               ErrorCode = "InvalidKey"
	ErrCodeMissingArgument          ErrorCode = "MissingArgument"
	ErrCodeSimulationTimeOutOfRange ErrorCode = "SimulationTimeOutOfRange"
	ErrCodeSimulationBadQuery       ErrorCode = "SimulationBadQuery"
	ErrCodeSimulationHalted         ErrorCode = "SimulationHalted"
	ErrCodeSimulationDeadlock       ErrorCode = "SimulationDeadlock"
	ErrCodeSimulationModelError     ErrorCode = "SimulationModelError"
	ErrCodeSimulationPanic          ErrorCode = "SimulationPanic"
)

// Error pairs an ErrorCode with a human-readable detail message, the shape
// a transport adapter serializes back across the RPC boundary.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("wire: %s: %s", e.Code, e.Message)
}

// NewError constructs an Error with code and a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
