package lxp_modbus

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every transport maps its failures onto these four types so
// callers (and the hybrid failover) can dispatch without knowing the channel:
//
//   - ConnectionError: endpoint unreachable or authentication failed; fatal
//     until the next Connect.
//   - ReadError: malformed frame, CRC mismatch, device exception or decode
//     failure on a read path.
//   - WriteError: a write was rejected by the device or could not be encoded.
//   - TimeoutError: no response before the per-request deadline.

type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("lxp: connection error on %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type ReadError struct {
	Op string
	// non-zero when the device answered with a Modbus exception
	ExceptionCode byte
	Err           error
}

func (e *ReadError) Error() string {
	if e.ExceptionCode != 0 {
		return fmt.Sprintf("lxp: read error on %s: device exception %s", e.Op, ExceptionCodeToString(e.ExceptionCode))
	}
	return fmt.Sprintf("lxp: read error on %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

type WriteError struct {
	Op            string
	ExceptionCode byte
	Err           error
}

func (e *WriteError) Error() string {
	if e.ExceptionCode != 0 {
		return fmt.Sprintf("lxp: write error on %s: device exception %s", e.Op, ExceptionCodeToString(e.ExceptionCode))
	}
	return fmt.Sprintf("lxp: write error on %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lxp: timeout on %s: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func IsConnectionError(err error) bool {
	var t *ConnectionError
	return errors.As(err, &t)
}

func IsReadError(err error) bool {
	var t *ReadError
	return errors.As(err, &t)
}

func IsWriteError(err error) bool {
	var t *WriteError
	return errors.As(err, &t)
}

func IsTimeoutError(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}

// standard Modbus exception codes
const (
	ExceptionIllegalFunction    = 0x01
	ExceptionIllegalDataAddress = 0x02
	ExceptionIllegalDataValue   = 0x03
	ExceptionServerFailure      = 0x04
)

func ExceptionCodeToString(code byte) string {
	switch code {
	case ExceptionIllegalFunction:
		return "illegal_function"
	case ExceptionIllegalDataAddress:
		return "illegal_data_address"
	case ExceptionIllegalDataValue:
		return "illegal_data_value"
	case ExceptionServerFailure:
		return "server_failure"
	default:
		return fmt.Sprintf("exception(0x%02x)", code)
	}
}
