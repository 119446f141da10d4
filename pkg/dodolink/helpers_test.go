// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeClock only moves when something sleeps
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memPort is an in-memory Port. onWrite lets a test play the device.
type memPort struct {
	mu      sync.Mutex
	in      []byte
	writes  [][]byte
	err     error
	werr    error
	closed  bool
	onWrite func(p *memPort, frame []byte)
}

func (p *memPort) feed(data ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range data {
		p.in = append(p.in, d...)
	}
}

func (p *memPort) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.in)
}

func (p *memPort) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.in) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		return 0, ErrNoData
	}
	b := p.in[0]
	p.in = p.in[1:]
	return b, nil
}

func (p *memPort) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *memPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.werr != nil {
		p.mu.Unlock()
		return 0, p.werr
	}
	frame := bytes.Clone(b)
	p.writes = append(p.writes, frame)
	hook := p.onWrite
	p.mu.Unlock()

	if hook != nil {
		hook(p, frame)
	}
	return len(b), nil
}

func (p *memPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *memPort) written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// body strips the start marker and stop byte from a wire frame
func body(frame []byte) []byte {
	return frame[2 : len(frame)-1]
}

// withChecksum appends the two checksum digits to a frame body
func withChecksum(s string) []byte {
	return []byte(s + fmt.Sprintf("%02x", Checksum([]byte(s))))
}

// fields splits a written frame into seq, category and arguments
func fields(frame []byte) []string {
	b := body(frame)
	return strings.Split(string(b[:len(b)-2]), "\t")
}

// newTestSession returns a session that has completed the handshake and has
// its motors enabled
func newTestSession(clock Clock) *Session {
	s := NewSession(clock)
	s.markReady("dodobot", 1000)
	s.setRobotState(RobotState{IsActive: true, MotorsActive: true, BatteryOK: true})
	return s
}
