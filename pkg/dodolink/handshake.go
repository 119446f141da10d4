// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HandshakeState is the progress of the startup handshake
type HandshakeState int32

// Handshake states
const (
	HandshakeIdle HandshakeState = iota
	HandshakeAwaitingReady
	HandshakeReady
	HandshakeFailed
)

// String returns the state name used in logs and the status API
func (s HandshakeState) String() string {
	switch s {
	case HandshakeIdle:
		return "idle"
	case HandshakeAwaitingReady:
		return "awaiting ready"
	case HandshakeReady:
		return "ready"
	case HandshakeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handshake asks the device to identify itself and waits for its ready
// frame. The request is repeated every ResendInterval until Timeout.
type Handshake struct {
	Timeout        time.Duration
	ResendInterval time.Duration

	session   *Session
	encoder   *Encoder
	src       ByteSource
	readFrame func() error
	log       zerolog.Logger

	state atomic.Int32
}

// NewHandshake creates a handshake. readFrame scans, decodes and dispatches a
// single frame from src; the ready frame is recognized by its effect on the
// session.
func NewHandshake(session *Session, encoder *Encoder, src ByteSource, readFrame func() error, log zerolog.Logger) *Handshake {
	return &Handshake{
		Timeout:        HandshakeTimeout,
		ResendInterval: HandshakeResend,
		session:        session,
		encoder:        encoder,
		src:            src,
		readFrame:      readFrame,
		log:            log,
	}
}

// State returns the current handshake state
func (h *Handshake) State() HandshakeState {
	return HandshakeState(h.state.Load())
}

func (h *Handshake) setState(s HandshakeState) {
	h.state.Store(int32(s))
}

func (h *Handshake) request() error {
	return h.encoder.Send(CmdHandshake, Str(HandshakeName))
}

// Run performs the handshake. It returns ErrHandshakeTimeout if no ready
// frame arrives in time, ctx.Err() on cancellation, or a *TransportError if
// the link fails.
func (h *Handshake) Run(ctx context.Context) error {
	clock := h.session.Clock()
	h.setState(HandshakeAwaitingReady)

	begin := clock.Now()
	lastWrite := begin
	if err := h.request(); err != nil {
		h.setState(HandshakeFailed)
		return err
	}

	for !h.session.RobotReady() {
		if err := ctx.Err(); err != nil {
			h.setState(HandshakeFailed)
			return err
		}
		now := clock.Now()
		if now.Sub(begin) > h.Timeout {
			h.setState(HandshakeFailed)
			h.log.Error().Dur("timeout", h.Timeout).Msg("failed to receive ready signal")
			return ErrHandshakeTimeout
		}
		if now.Sub(lastWrite) > h.ResendInterval {
			h.log.Info().Msg("writing ready request again")
			if err := h.request(); err != nil {
				h.setState(HandshakeFailed)
				return err
			}
			lastWrite = clock.Now()
		}

		if h.src.Available() > 2 {
			if err := h.readFrame(); err != nil && isFatal(err) {
				h.setState(HandshakeFailed)
				return err
			}
			continue
		}
		if err := h.src.Err(); err != nil {
			h.setState(HandshakeFailed)
			return err
		}
		clock.Sleep(pollInterval)
	}

	h.setState(HandshakeReady)
	ready := h.session.Ready()
	h.log.Info().Str("robot", ready.RobotName).Uint32("time_ms", ready.DeviceTimeMs).Msg("serial device is ready")
	return nil
}

// isFatal reports whether an error from the read path ends the session.
func isFatal(err error) bool {
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, ErrConnectionClosed)
}
