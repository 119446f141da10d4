// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"sync"
	"time"
)

// Clock abstracts time so link timeouts can be simulated in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall clock
func SystemClock() Clock {
	return systemClock{}
}

// ReadyState is captured from the device's first ready frame
type ReadyState struct {
	RobotName    string `json:"robot_name"`
	DeviceTimeMs uint32 `json:"device_time_ms"`
	IsReady      bool   `json:"is_ready"`
}

// RobotState mirrors the device's last state frame
type RobotState struct {
	TimeMs       uint32  `json:"time_ms"`
	IsActive     bool    `json:"is_active"`
	BatteryOK    bool    `json:"battery_ok"`
	MotorsActive bool    `json:"motors_active"`
	LoopRate     float64 `json:"loop_rate"`
}

// TimeBasis maps device milliseconds onto host time
type TimeBasis struct {
	Host   time.Time
	Device uint32
}

// Convert maps a device timestamp to host time. The difference is taken as a
// signed 32-bit value so wrapped counters still land near the basis.
func (b TimeBasis) Convert(deviceMs uint32) time.Time {
	diff := int32(deviceMs - b.Device)
	return b.Host.Add(time.Duration(diff) * time.Millisecond)
}

// Session holds the per-connection link state: sequence counters, ready
// state, robot state and time basis.
//
// Only the polling goroutine mutates a Session. Getters return copies and are
// safe to call from any goroutine.
type Session struct {
	mu sync.RWMutex

	clock    Clock
	readSeq  uint64
	writeSeq uint64
	ready    ReadyState
	robot    RobotState
	basis    TimeBasis
}

// NewSession creates a session. The time basis defaults to the creation time
// paired with device time zero until the handshake completes.
func NewSession(clock Clock) *Session {
	if clock == nil {
		clock = SystemClock()
	}
	return &Session{
		clock: clock,
		basis: TimeBasis{Host: clock.Now()},
	}
}

// Clock returns the session's clock
func (s *Session) Clock() Clock {
	return s.clock
}

// ReadSeq returns the expected sequence number of the next inbound frame
func (s *Session) ReadSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readSeq
}

// WriteSeq returns the sequence number of the next outbound frame
func (s *Session) WriteSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeSeq
}

// Ready returns a copy of the ready state
func (s *Session) Ready() ReadyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Robot returns a copy of the last reported robot state
func (s *Session) Robot() RobotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.robot
}

// Basis returns the current time basis
func (s *Session) Basis() TimeBasis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.basis
}

// DeviceTime converts a device millisecond stamp to host time
func (s *Session) DeviceTime(ms uint32) time.Time {
	return s.Basis().Convert(ms)
}

// RobotReady reports whether the handshake has completed
func (s *Session) RobotReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready.IsReady
}

// MotorsReady reports whether motion commands may be sent
func (s *Session) MotorsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready.IsReady && s.robot.IsActive && s.robot.MotorsActive
}

func (s *Session) advanceRead() {
	s.mu.Lock()
	s.readSeq++
	s.mu.Unlock()
}

func (s *Session) resyncRead(seq uint64) {
	s.mu.Lock()
	s.readSeq = seq
	s.mu.Unlock()
}

// nextWriteSeq returns the sequence number for an outbound frame and
// advances the counter.
func (s *Session) nextWriteSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.writeSeq
	s.writeSeq++
	return seq
}

// markReady records the first ready frame. Returns false if the session was
// already ready, in which case nothing changes.
func (s *Session) markReady(name string, deviceMs uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.IsReady {
		return false
	}
	s.ready = ReadyState{RobotName: name, DeviceTimeMs: deviceMs, IsReady: true}
	s.basis = TimeBasis{Host: s.clock.Now(), Device: deviceMs}
	return true
}

func (s *Session) setRobotState(state RobotState) {
	s.mu.Lock()
	s.robot = state
	s.mu.Unlock()
}
