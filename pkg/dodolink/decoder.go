// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Decoder validates frames and splits them into packets. Every call to Decode
// advances the session's read counter exactly once, whether or not the frame
// was accepted.
type Decoder struct {
	session *Session
	log     zerolog.Logger
}

// NewDecoder creates a decoder bound to a session
func NewDecoder(session *Session, log zerolog.Logger) *Decoder {
	return &Decoder{
		session: session,
		log:     log,
	}
}

// Decode validates a frame (start and stop markers already removed) and
// returns its packet.
func (d *Decoder) Decode(frame []byte) (*Packet, error) {
	defer d.session.advanceRead()

	if len(frame) < MinFrameSize {
		return nil, d.fail(KindTooShort, frame, fmt.Sprintf("%d bytes", len(frame)))
	}

	body := frame[:len(frame)-checksumSize]
	digits := frame[len(frame)-checksumSize:]
	calc := Checksum(body)
	recv, err := strconv.ParseUint(string(digits), 16, 8)
	if err != nil {
		return nil, d.fail(KindChecksumMismatch, frame, fmt.Sprintf("unparsable checksum %q", digits))
	}
	if uint8(recv) != calc {
		return nil, d.fail(KindChecksumMismatch, frame, fmt.Sprintf("recv %02x != calc %02x", recv, calc))
	}

	parts := strings.Split(string(body), string(rune(Separator)))

	if parts[0] == "" {
		return nil, d.fail(KindMissingSequenceField, frame, "")
	}
	seq, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, d.fail(KindInvalidField, frame, fmt.Sprintf("sequence %q", parts[0]))
	}

	expected := d.session.ReadSeq()
	resynced := seq != expected
	if resynced {
		d.log.Warn().
			Uint64("recv", seq).
			Uint64("local", expected).
			Int("code", int(KindSequenceGap)).
			Bytes("frame", frame).
			Msg(KindSequenceGap.Description())
		d.session.resyncRead(seq)
	}

	if len(parts) < 2 || parts[1] == "" {
		return nil, d.fail(KindMissingCategoryField, frame, "")
	}

	return &Packet{
		Seq:         seq,
		Category:    parts[1],
		Fields:      NewSegments(parts[2:]),
		Raw:         bytes.Clone(frame),
		Timestamp:   d.session.Clock().Now(),
		Resynced:    resynced,
		ExpectedSeq: expected,
	}, nil
}

func (d *Decoder) fail(kind ErrorKind, frame []byte, detail string) error {
	err := &DecodeError{Kind: kind, Frame: bytes.Clone(frame), Detail: detail}
	d.log.Error().
		Int("code", int(kind)).
		Bytes("frame", frame).
		Uint64("seq", d.session.ReadSeq()).
		Msg(err.Error())
	return err
}
