// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dodobot/serialbridge/pkg/config"
	"github.com/dodobot/serialbridge/pkg/dodolink"
)

// bridgeHooks observe the bridge from the commands that host it
type bridgeHooks struct {
	publisher       dodolink.Publisher
	onPacket        func(p *dodolink.Packet)
	onDeviceMessage func(msg string)
	onDeviceError   func(e *dodolink.DeviceError)
	onConnect       func(connInfo string)
	onDisconnect    func(err error)
}

// supervisor keeps a bridge running, reopening the connection with
// exponential backoff when the link fails. Statistics survive reconnects.
type supervisor struct {
	cfg   config.Config
	hooks bridgeHooks
	stats *dodolink.Statistics
	log   zerolog.Logger

	open             func(config.Config) (dodolink.Transport, string, error)
	minBackoff       time.Duration
	maxBackoff       time.Duration
	handshakeTimeout time.Duration

	mu       sync.RWMutex
	bridge   *dodolink.Bridge
	connInfo string
	idle     *dodolink.Session
}

func newSupervisor(c config.Config, hooks bridgeHooks, log zerolog.Logger) *supervisor {
	return &supervisor{
		cfg:        c,
		hooks:      hooks,
		stats:      dodolink.NewStatistics(nil),
		log:        log,
		open:       openTransport,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		idle:       dodolink.NewSession(nil),
	}
}

// Stats returns statistics accumulated over every connection
func (s *supervisor) Stats() *dodolink.Statistics {
	return s.stats
}

// Session returns the current connection's session
func (s *supervisor) Session() *dodolink.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bridge == nil {
		return s.idle
	}
	return s.bridge.Session()
}

// HandshakeState returns the current connection's handshake progress
func (s *supervisor) HandshakeState() dodolink.HandshakeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bridge == nil {
		return dodolink.HandshakeIdle
	}
	return s.bridge.HandshakeState()
}

// ConnInfo describes the current connection
func (s *supervisor) ConnInfo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connInfo
}

// Submit queues fn on the current bridge
func (s *supervisor) Submit(fn func(c *dodolink.Commands) error) <-chan error {
	s.mu.RLock()
	b := s.bridge
	s.mu.RUnlock()
	if b == nil {
		done := make(chan error, 1)
		done <- dodolink.ErrConnectionClosed
		return done
	}
	return b.Submit(fn)
}

// Run connects and runs the bridge until ctx is cancelled. A failure before
// the first handshake completes is returned unchanged and never retried.
// Once a session has been ready, link failures reconnect with backoff.
func (s *supervisor) Run(ctx context.Context) error {
	backoff := s.minBackoff
	established := false
	for {
		ready, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if s.hooks.onDisconnect != nil {
			s.hooks.onDisconnect(err)
		}
		if ready {
			established = true
			backoff = s.minBackoff
		}
		if !established {
			s.log.Error().Err(err).Msg("startup failed")
			return err
		}

		s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("link down")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// runOnce opens one connection and runs a bridge over it. The first result
// reports whether the handshake completed.
func (s *supervisor) runOnce(ctx context.Context) (bool, error) {
	t, info, err := s.open(s.cfg)
	if err != nil {
		return false, err
	}

	b := dodolink.New(dodolink.NewLink(t), dodolink.Config{
		LoopRate:        s.cfg.LoopRate,
		Logger:          s.log,
		Publisher:       s.hooks.publisher,
		Stats:           s.stats,
		OnPacket:        s.hooks.onPacket,
		OnDeviceMessage: s.hooks.onDeviceMessage,
		OnDeviceError:   s.hooks.onDeviceError,

		HandshakeTimeout: s.handshakeTimeout,
	})

	s.mu.Lock()
	s.bridge = b
	s.connInfo = info
	s.mu.Unlock()

	s.log.Info().Str("connection", info).Msg("link open")
	if s.hooks.onConnect != nil {
		s.hooks.onConnect(info)
	}

	err = b.Run(ctx)
	ready := b.HandshakeState() == dodolink.HandshakeReady
	if err == nil && ctx.Err() == nil {
		err = errors.New("bridge stopped")
	}
	return ready, err
}
