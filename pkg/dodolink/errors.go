// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFrame is returned by the scanner when no frame start arrived in time.
	ErrNoFrame = errors.New("no frame")
	// ErrFrameTooLong indicates a frame exceeded MaxFrameSize before its stop byte.
	ErrFrameTooLong = errors.New("frame exceeds maximum size")
	// ErrFrameIncomplete indicates the link went quiet in the middle of a frame.
	ErrFrameIncomplete = errors.New("frame incomplete")
	// ErrMissingField indicates a segment cursor was exhausted.
	ErrMissingField = errors.New("missing field")
	// ErrNotReady is returned when a command guard rejects a command.
	ErrNotReady = errors.New("robot not ready")
	// ErrHandshakeTimeout indicates no ready signal arrived during startup.
	ErrHandshakeTimeout = errors.New("timed out waiting for ready signal")
	// ErrNoData is returned by ReadByte when nothing is buffered.
	ErrNoData = errors.New("no data available")
	// ErrQueueFull is returned when the command queue cannot take more work.
	ErrQueueFull = errors.New("command queue full")
	// ErrConnectionClosed is returned after the link or bridge has been closed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNonFinite is returned for NaN or infinite float command arguments.
	ErrNonFinite = errors.New("non-finite float argument")
)

// ErrorKind is the link error taxonomy shared by host and device.
// Values match the numeric codes the device reports in txrx frames.
type ErrorKind int

// Error kinds
const (
	KindStartByte1           ErrorKind = 1
	KindStartByte2           ErrorKind = 2
	KindTooShort             ErrorKind = 3
	KindChecksumMismatch     ErrorKind = 4
	KindMissingSequenceField ErrorKind = 5
	KindSequenceGap          ErrorKind = 6
	KindMissingCategoryField ErrorKind = 7
	KindInvalidField         ErrorKind = 8
)

// String returns the short name of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindStartByte1:
		return "StartByte1"
	case KindStartByte2:
		return "StartByte2"
	case KindTooShort:
		return "TooShort"
	case KindChecksumMismatch:
		return "ChecksumMismatch"
	case KindMissingSequenceField:
		return "MissingSequenceField"
	case KindSequenceGap:
		return "SequenceGap"
	case KindMissingCategoryField:
		return "MissingCategoryField"
	case KindInvalidField:
		return "InvalidField"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Description returns the device's wording for the error code
func (k ErrorKind) Description() string {
	switch k {
	case KindStartByte1:
		return `c1 != \x12`
	case KindStartByte2:
		return `c2 != \x34`
	case KindTooShort:
		return "packet is too short"
	case KindChecksumMismatch:
		return "checksums don't match"
	case KindMissingSequenceField:
		return "packet count segment not found"
	case KindSequenceGap:
		return "packet counts not synchronized"
	case KindMissingCategoryField:
		return "failed to find category segment"
	case KindInvalidField:
		return "invalid format"
	default:
		return "unknown error"
	}
}

// DecodeError is a per-frame failure. The frame is discarded; the session
// continues.
type DecodeError struct {
	Kind   ErrorKind
	Frame  []byte
	Detail string
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return e.Kind.Description()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Description(), e.Detail)
}

// Code returns the numeric taxonomy code
func (e *DecodeError) Code() int {
	return int(e.Kind)
}

// Is matches another *DecodeError of the same kind, so callers can write
// errors.Is(err, &DecodeError{Kind: KindTooShort}).
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

// IsKind reports whether err carries a DecodeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == kind
}

// TransportError wraps failures of the underlying byte transport. These are
// session-fatal.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeviceError is an error the device reported for one of our frames via txrx.
type DeviceError struct {
	PacketNum uint64
	Kind      ErrorKind
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	return fmt.Sprintf("device rejected packet %d: %s", e.PacketNum, e.Kind.Description())
}
