// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"bytes"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Scanner extracts frames from a ByteSource. It finds the two-byte start
// marker, then captures bytes up to the stop byte. Text the device prints
// outside of frames is collected and reported as a device message.
type Scanner struct {
	src   ByteSource
	clock Clock
	log   zerolog.Logger

	StartTimeout time.Duration
	FrameTimeout time.Duration
	MaxSize      int

	// OnDeviceMessage is called with each line of out-of-band device text
	OnDeviceMessage func(msg string)

	pendingStart bool
	skipToStop   bool
	message      bytes.Buffer
	frame        bytes.Buffer
}

// NewScanner creates a scanner reading from src
func NewScanner(src ByteSource, clock Clock, log zerolog.Logger) *Scanner {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scanner{
		src:          src,
		clock:        clock,
		log:          log,
		StartTimeout: StartTimeout,
		FrameTimeout: FrameTimeout,
		MaxSize:      MaxFrameSize,
	}
}

// NextFrame returns the bytes between the next start marker and stop byte,
// exclusive. It returns ErrNoFrame when no start marker arrives within
// StartTimeout or when a line of device text ends before one does.
func (s *Scanner) NextFrame() ([]byte, error) {
	if err := s.findStart(); err != nil {
		return nil, err
	}
	return s.readBody()
}

func (s *Scanner) findStart() error {
	deadline := s.clock.Now().Add(s.StartTimeout)
	for {
		b, err := s.next(deadline)
		if err != nil {
			return err
		}

		if s.skipToStop {
			if b == StopByte {
				s.skipToStop = false
			}
			continue
		}

		if s.pendingStart {
			s.pendingStart = false
			switch b {
			case StartByte1:
				if s.message.Len() > 0 {
					s.flushMessage()
				}
				return nil
			case StartByte0:
				s.pendingStart = true
				continue
			}
		} else if b == StartByte0 {
			s.pendingStart = true
			continue
		}

		if b == StopByte {
			s.flushMessage()
			return ErrNoFrame
		}
		if s.message.Len() >= s.MaxSize {
			s.flushMessage()
		}
		s.message.WriteByte(b)
	}
}

func (s *Scanner) readBody() ([]byte, error) {
	s.frame.Reset()
	for {
		b, err := s.next(s.clock.Now().Add(s.FrameTimeout))
		if errors.Is(err, ErrNoFrame) {
			s.log.Warn().Int("len", s.frame.Len()).Bytes("frame", s.frame.Bytes()).Msg("frame incomplete, discarding")
			return nil, ErrFrameIncomplete
		}
		if err != nil {
			return nil, err
		}
		if b == StopByte {
			out := make([]byte, s.frame.Len())
			copy(out, s.frame.Bytes())
			return out, nil
		}
		if s.frame.Len() >= s.MaxSize {
			s.log.Warn().Int("max", s.MaxSize).Msg("frame too long, discarding")
			s.skipToStop = true
			return nil, ErrFrameTooLong
		}
		s.frame.WriteByte(b)
	}
}

// next polls the source for one byte until the deadline passes.
func (s *Scanner) next(deadline time.Time) (byte, error) {
	for {
		b, err := s.src.ReadByte()
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrNoData) {
			var te *TransportError
			if errors.As(err, &te) || errors.Is(err, ErrConnectionClosed) {
				return 0, err
			}
			return 0, &TransportError{Op: "read", Err: err}
		}
		if s.clock.Now().After(deadline) {
			return 0, ErrNoFrame
		}
		s.clock.Sleep(pollInterval)
	}
}

func (s *Scanner) flushMessage() {
	msg := s.message.String()
	s.message.Reset()
	s.log.Info().Str("message", msg).Msg("device message")
	if s.OnDeviceMessage != nil {
		s.OnDeviceMessage(msg)
	}
}
