// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// StatsSnapshot is a point-in-time copy of link statistics
type StatsSnapshot struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Inbound
	TotalFrames      uint64
	ValidPackets     uint64
	TooShort         uint64
	ChecksumErrors   uint64
	MissingSequence  uint64
	MissingCategory  uint64
	InvalidFields    uint64
	Resyncs          uint64
	FramesTooLong    uint64
	FramesIncomplete uint64
	DeviceMessages   uint64

	// Dispatch
	RecordsPublished  uint64
	RecordErrors      uint64
	PublishErrors     uint64
	UnknownCategories uint64
	DeviceErrors      uint64

	// Outbound
	CommandsSent    uint64
	CommandsDropped uint64
	WriteErrors     uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// DecodeErrors returns the number of frames rejected by the decoder
func (s StatsSnapshot) DecodeErrors() uint64 {
	return s.TooShort + s.ChecksumErrors + s.MissingSequence + s.MissingCategory + s.InvalidFields
}

// Statistics tracks link statistics and error rates. It is safe for
// concurrent use.
type Statistics struct {
	mu    sync.Mutex
	clock Clock
	s     StatsSnapshot
}

// NewStatistics creates a new statistics tracker
func NewStatistics(clock Clock) *Statistics {
	if clock == nil {
		clock = SystemClock()
	}
	now := clock.Now()
	return &Statistics{
		clock: clock,
		s:     StatsSnapshot{StartTime: now, LastUpdateTime: now},
	}
}

// Update records the outcome of one decoded frame
func (st *Statistics) Update(packet *Packet, decodeErr error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.TotalFrames++
	st.s.LastUpdateTime = st.clock.Now()

	if decodeErr != nil {
		var de *DecodeError
		if !errors.As(decodeErr, &de) {
			st.s.InvalidFields++
			return
		}
		switch de.Kind {
		case KindTooShort:
			st.s.TooShort++
		case KindChecksumMismatch:
			st.s.ChecksumErrors++
		case KindMissingSequenceField:
			st.s.MissingSequence++
		case KindMissingCategoryField:
			st.s.MissingCategory++
		default:
			st.s.InvalidFields++
		}
		return
	}

	st.s.ValidPackets++
	if packet != nil && packet.Resynced {
		st.s.Resyncs++
	}
}

// ScanError records a scanner failure
func (st *Statistics) ScanError(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch {
	case errors.Is(err, ErrFrameTooLong):
		st.s.FramesTooLong++
	case errors.Is(err, ErrFrameIncomplete):
		st.s.FramesIncomplete++
	}
}

// DeviceMessage records a line of out-of-band device text
func (st *Statistics) DeviceMessage() {
	st.mu.Lock()
	st.s.DeviceMessages++
	st.mu.Unlock()
}

// RecordPublished records a record handed to the publisher
func (st *Statistics) RecordPublished(publishErr error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.RecordsPublished++
	if publishErr != nil {
		st.s.PublishErrors++
	}
}

// RecordError records a category parse failure
func (st *Statistics) RecordError() {
	st.mu.Lock()
	st.s.RecordErrors++
	st.mu.Unlock()
}

// UnknownCategory records a frame with an unrecognized tag
func (st *Statistics) UnknownCategory() {
	st.mu.Lock()
	st.s.UnknownCategories++
	st.mu.Unlock()
}

// DeviceError records an error reported by the device in a txrx frame
func (st *Statistics) DeviceError() {
	st.mu.Lock()
	st.s.DeviceErrors++
	st.mu.Unlock()
}

// CommandSent records an outbound packet
func (st *Statistics) CommandSent(writeErr error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.CommandsSent++
	if writeErr != nil {
		st.s.WriteErrors++
	}
}

// CommandDropped records a command rejected by its guard
func (st *Statistics) CommandDropped() {
	st.mu.Lock()
	st.s.CommandsDropped++
	st.mu.Unlock()
}

// Snapshot returns a copy of the counters with rates calculated
func (st *Statistics) Snapshot() StatsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.calculateRates()
	return st.s
}

func (st *Statistics) calculateRates() {
	elapsed := st.clock.Now().Sub(st.s.StartTime).Seconds()
	if elapsed > 0 {
		st.s.PacketRate = float64(st.s.TotalFrames) / elapsed
		errorCount := st.s.DecodeErrors() + st.s.FramesTooLong + st.s.FramesIncomplete + st.s.RecordErrors
		st.s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (st *Statistics) String() string {
	s := st.Snapshot()

	var validPercent, checksumPercent, decodePercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidPackets) * 100.0 / float64(s.TotalFrames)
		checksumPercent = float64(s.ChecksumErrors) * 100.0 / float64(s.TotalFrames)
		decodePercent = float64(s.DecodeErrors()-s.ChecksumErrors) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := st.clock.Now().Sub(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, validPercent)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, checksumPercent)
	}
	if other := s.DecodeErrors() - s.ChecksumErrors; other > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", other, decodePercent)
		if s.TooShort > 0 {
			result += fmt.Sprintf("  Too Short:        %5d\n", s.TooShort)
		}
		if s.MissingSequence > 0 {
			result += fmt.Sprintf("  Missing Seq:      %5d\n", s.MissingSequence)
		}
		if s.MissingCategory > 0 {
			result += fmt.Sprintf("  Missing Category: %5d\n", s.MissingCategory)
		}
		if s.InvalidFields > 0 {
			result += fmt.Sprintf("  Invalid Format:   %5d\n", s.InvalidFields)
		}
	}
	if s.Resyncs > 0 {
		result += fmt.Sprintf("Resyncs:         %8d\n", s.Resyncs)
	}
	if s.FramesTooLong+s.FramesIncomplete > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", s.FramesTooLong+s.FramesIncomplete)
	}
	if s.RecordErrors > 0 {
		result += fmt.Sprintf("Record Errors:   %8d\n", s.RecordErrors)
	}
	if s.UnknownCategories > 0 {
		result += fmt.Sprintf("Unknown Tags:    %8d\n", s.UnknownCategories)
	}
	if s.DeviceErrors > 0 {
		result += fmt.Sprintf("Device Errors:   %8d\n", s.DeviceErrors)
	}
	if s.CommandsSent+s.CommandsDropped > 0 {
		result += fmt.Sprintf("Commands Sent:   %8d (%d dropped)\n", s.CommandsSent, s.CommandsDropped)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (st *Statistics) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.clock.Now()
	st.s = StatsSnapshot{StartTime: now, LastUpdateTime: now}
}
