// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"strconv"

	"github.com/rs/zerolog"
)

type argKind uint8

const (
	argInt argKind = iota
	argUint
	argStr
	argFloat
)

// Arg is a single typed packet argument. Build one with Int, Uint, Str or
// Float.
type Arg struct {
	kind argKind
	i    int32
	u    uint32
	s    string
	f    float64
}

// Int creates a signed integer argument
func Int(v int32) Arg { return Arg{kind: argInt, i: v} }

// Uint creates an unsigned integer argument
func Uint(v uint32) Arg { return Arg{kind: argUint, u: v} }

// Str creates a string argument
func Str(v string) Arg { return Arg{kind: argStr, s: v} }

// Float creates a float argument, rendered with four fractional digits
func Float(v float64) Arg { return Arg{kind: argFloat, f: v} }

// String renders the argument as it appears on the wire
func (a Arg) String() string {
	switch a.kind {
	case argInt:
		return strconv.FormatInt(int64(a.i), 10)
	case argUint:
		return strconv.FormatUint(uint64(a.u), 10)
	case argFloat:
		return strconv.FormatFloat(a.f, 'f', 4, 64)
	default:
		return a.s
	}
}

// EncodeFrame builds a complete wire frame, start marker to stop byte.
func EncodeFrame(seq uint64, category string, args ...Arg) []byte {
	buf := make([]byte, 0, 32+len(category)+8*len(args))
	buf = append(buf, StartByte0, StartByte1)
	buf = strconv.AppendUint(buf, seq, 10)
	buf = append(buf, Separator)
	buf = append(buf, category...)
	for _, a := range args {
		buf = append(buf, Separator)
		buf = append(buf, a.String()...)
	}

	sum := Checksum(buf[2:])
	const hex = "0123456789abcdef"
	buf = append(buf, hex[sum>>4], hex[sum&0x0f], StopByte)
	return buf
}

// Writer is where encoded frames go
type Writer interface {
	Write(p []byte) (int, error)
}

// Encoder frames outbound packets using the session's write counter.
type Encoder struct {
	session *Session
	w       Writer
	log     zerolog.Logger

	// OnSend, if set, observes every send attempt
	OnSend func(category string, err error)
}

// NewEncoder creates an encoder writing to w
func NewEncoder(session *Session, w Writer, log zerolog.Logger) *Encoder {
	return &Encoder{session: session, w: w, log: log}
}

// Encode builds the frame for the next write sequence number without
// consuming it.
func (e *Encoder) Encode(category string, args ...Arg) []byte {
	return EncodeFrame(e.session.WriteSeq(), category, args...)
}

// Send encodes and writes a packet. The write counter advances whether or not
// the write succeeds, and the device is given WriteDelay to consume the frame.
func (e *Encoder) Send(category string, args ...Arg) error {
	seq := e.session.nextWriteSeq()
	frame := EncodeFrame(seq, category, args...)

	_, err := e.w.Write(frame)
	e.session.Clock().Sleep(WriteDelay)

	if err != nil {
		if _, ok := err.(*TransportError); !ok {
			err = &TransportError{Op: "write", Err: err}
		}
		e.log.Error().Err(err).Uint64("seq", seq).Str("category", category).Msg("failed to write packet")
	} else {
		e.log.Trace().Uint64("seq", seq).Str("category", category).Bytes("frame", frame).Msg("wrote packet")
	}
	if e.OnSend != nil {
		e.OnSend(category, err)
	}
	return err
}
