// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultQueueSize is the number of commands that may wait for the next tick
const DefaultQueueSize = 64

// Config configures a Bridge
type Config struct {
	// LoopRate is the polling frequency in Hz (default 120)
	LoopRate  float64
	QueueSize int
	Logger    zerolog.Logger
	Clock     Clock
	Publisher Publisher
	Stats     *Statistics

	// HandshakeTimeout overrides the ready wait (default 5s)
	HandshakeTimeout time.Duration

	// OnPacket observes every decoded packet before dispatch
	OnPacket func(p *Packet)
	// OnDeviceMessage observes out-of-band device text
	OnDeviceMessage func(msg string)
	// OnDeviceError observes errors reported by the device
	OnDeviceError func(e *DeviceError)
	// OnFrameError observes frames the scanner or decoder rejected
	OnFrameError func(err error)
}

type job struct {
	fn   func(c *Commands) error
	done chan error
}

// Bridge owns a device link: it runs the handshake, polls for frames and
// executes commands. All link I/O happens on the goroutine calling Run (or
// Setup and Poll); other goroutines use Submit.
type Bridge struct {
	*Commands

	port       Port
	cfg        Config
	session    *Session
	stats      *Statistics
	scanner    *Scanner
	decoder    *Decoder
	encoder    *Encoder
	dispatcher *Dispatcher
	handshake  *Handshake
	log        zerolog.Logger
	seqLog     zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan job
}

// New creates a bridge over a port
func New(port Port, cfg Config) *Bridge {
	if cfg.LoopRate <= 0 {
		cfg.LoopRate = DefaultLoopRate
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStatistics(cfg.Clock)
	}

	log := cfg.Logger
	session := NewSession(cfg.Clock)
	stats := cfg.Stats

	b := &Bridge{
		port:    port,
		cfg:     cfg,
		session: session,
		stats:   stats,
		log:     log,
		seqLog:  log.Sample(&zerolog.BurstSampler{Burst: 1, Period: 15 * time.Second}),
		queue:   make(chan job, cfg.QueueSize),
	}

	b.scanner = NewScanner(port, cfg.Clock, log)
	b.scanner.OnDeviceMessage = func(msg string) {
		stats.DeviceMessage()
		if cfg.OnDeviceMessage != nil {
			cfg.OnDeviceMessage(msg)
		}
	}
	b.decoder = NewDecoder(session, log)
	b.encoder = NewEncoder(session, port, log)
	b.encoder.OnSend = func(_ string, err error) {
		stats.CommandSent(err)
	}
	b.dispatcher = NewDispatcher(session, cfg.Publisher, stats, log)
	b.dispatcher.OnDeviceError = cfg.OnDeviceError
	b.Commands = NewCommands(session, b.encoder, stats, log)
	b.handshake = NewHandshake(session, b.encoder, port, b.readFrame, log)
	if cfg.HandshakeTimeout > 0 {
		b.handshake.Timeout = cfg.HandshakeTimeout
	}
	return b
}

// Session returns the link session
func (b *Bridge) Session() *Session {
	return b.session
}

// Stats returns the link statistics
func (b *Bridge) Stats() *Statistics {
	return b.stats
}

// HandshakeState returns the progress of the startup handshake
func (b *Bridge) HandshakeState() HandshakeState {
	return b.handshake.State()
}

// Setup waits for the device to become ready, then enables the robot and
// telemetry reporting.
func (b *Bridge) Setup(ctx context.Context) error {
	if err := b.Handshake(ctx); err != nil {
		return err
	}
	if err := b.SetActive(true); err != nil {
		return err
	}
	return b.SetReporting(true)
}

// Handshake waits for the device's ready signal without enabling the robot
func (b *Bridge) Handshake(ctx context.Context) error {
	return b.handshake.Run(ctx)
}

// Run sets up the link and polls it at the configured rate until ctx is
// cancelled or the transport fails. The port is closed on return.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.Close()

	if err := b.Setup(ctx); err != nil {
		return err
	}
	return b.loop(ctx)
}

// Listen polls the link without a handshake, for passive monitoring. The
// port is closed on return.
func (b *Bridge) Listen(ctx context.Context) error {
	defer b.Close()
	return b.loop(ctx)
}

func (b *Bridge) loop(ctx context.Context) error {
	period := time.Duration(float64(time.Second) / b.cfg.LoopRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("stopping bridge")
			return nil
		case <-ticker.C:
			if err := b.Poll(); err != nil {
				b.log.Error().Err(err).Msg("bridge loop stopped")
				return err
			}
		}
	}
}

// Poll runs one loop iteration: queued commands first, then every frame
// that is available. Only a fatal link error is returned.
func (b *Bridge) Poll() error {
	b.runQueued()

	if b.port.Available() > 2 {
		for b.port.Available() > 0 {
			if err := b.readFrame(); err != nil && isFatal(err) {
				return err
			}
		}
	}
	if b.port.Available() == 0 {
		if err := b.port.Err(); err != nil {
			return err
		}
	}

	b.seqLog.Info().Uint64("seq", b.session.ReadSeq()).Msg("read packet num")
	return nil
}

func (b *Bridge) runQueued() {
	for {
		select {
		case j := <-b.queue:
			j.done <- j.fn(b.Commands)
		default:
			return
		}
	}
}

// Submit queues fn to run on the polling goroutine at the next tick. The
// returned channel receives fn's result.
func (b *Bridge) Submit(fn func(c *Commands) error) <-chan error {
	done := make(chan error, 1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		done <- ErrConnectionClosed
		return done
	}
	select {
	case b.queue <- job{fn: fn, done: done}:
	default:
		done <- ErrQueueFull
	}
	return done
}

// Close closes the port and fails any commands still queued
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	for {
		select {
		case j := <-b.queue:
			j.done <- ErrConnectionClosed
		default:
			return b.port.Close()
		}
	}
}

// readFrame scans, decodes and dispatches a single frame.
func (b *Bridge) readFrame() error {
	frame, err := b.scanner.NextFrame()
	if err != nil {
		if !errors.Is(err, ErrNoFrame) && !isFatal(err) {
			b.stats.ScanError(err)
			b.frameError(err)
		}
		return err
	}

	pkt, err := b.decoder.Decode(frame)
	b.stats.Update(pkt, err)
	if err != nil {
		b.frameError(err)
		return err
	}
	if b.cfg.OnPacket != nil {
		b.cfg.OnPacket(pkt)
	}
	return b.dispatcher.Dispatch(pkt)
}

func (b *Bridge) frameError(err error) {
	if b.cfg.OnFrameError != nil {
		b.cfg.OnFrameError(err)
	}
}
