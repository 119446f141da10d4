// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatistics_Update(t *testing.T) {
	clock := newFakeClock()
	s := NewStatistics(clock)

	s.Update(&Packet{}, nil)
	s.Update(&Packet{Resynced: true}, nil)
	s.Update(nil, &DecodeError{Kind: KindTooShort})
	s.Update(nil, &DecodeError{Kind: KindChecksumMismatch})
	s.Update(nil, &DecodeError{Kind: KindChecksumMismatch})
	s.Update(nil, &DecodeError{Kind: KindMissingSequenceField})
	s.Update(nil, &DecodeError{Kind: KindMissingCategoryField})
	s.Update(nil, &DecodeError{Kind: KindInvalidField})
	s.ScanError(ErrFrameTooLong)
	s.ScanError(ErrFrameIncomplete)
	s.ScanError(ErrNoFrame)

	snap := s.Snapshot()
	assert.Equal(t, uint64(8), snap.TotalFrames)
	assert.Equal(t, uint64(2), snap.ValidPackets)
	assert.Equal(t, uint64(1), snap.Resyncs)
	assert.Equal(t, uint64(1), snap.TooShort)
	assert.Equal(t, uint64(2), snap.ChecksumErrors)
	assert.Equal(t, uint64(1), snap.MissingSequence)
	assert.Equal(t, uint64(1), snap.MissingCategory)
	assert.Equal(t, uint64(1), snap.InvalidFields)
	assert.Equal(t, uint64(6), snap.DecodeErrors())
	assert.Equal(t, uint64(1), snap.FramesTooLong)
	assert.Equal(t, uint64(1), snap.FramesIncomplete)
}

func TestStatistics_Rates(t *testing.T) {
	clock := newFakeClock()
	s := NewStatistics(clock)

	for i := 0; i < 20; i++ {
		s.Update(&Packet{}, nil)
	}
	s.Update(nil, &DecodeError{Kind: KindChecksumMismatch})
	s.RecordError()
	clock.Sleep(2 * time.Second)

	snap := s.Snapshot()
	assert.InDelta(t, 10.5, snap.PacketRate, 0.001)
	assert.InDelta(t, 1.0, snap.ErrorRate, 0.001)
}

func TestStatistics_Commands(t *testing.T) {
	s := NewStatistics(newFakeClock())

	s.CommandSent(nil)
	s.CommandSent(errors.New("boom"))
	s.CommandDropped()
	s.DeviceError()
	s.DeviceMessage()
	s.UnknownCategory()
	s.RecordPublished(nil)

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.CommandsSent)
	assert.Equal(t, uint64(1), snap.WriteErrors)
	assert.Equal(t, uint64(1), snap.CommandsDropped)
	assert.Equal(t, uint64(1), snap.DeviceErrors)
	assert.Equal(t, uint64(1), snap.DeviceMessages)
	assert.Equal(t, uint64(1), snap.UnknownCategories)
	assert.Equal(t, uint64(1), snap.RecordsPublished)
}

func TestStatistics_StringAndReset(t *testing.T) {
	clock := newFakeClock()
	s := NewStatistics(clock)

	s.Update(&Packet{}, nil)
	s.Update(nil, &DecodeError{Kind: KindChecksumMismatch})
	s.Update(nil, &DecodeError{Kind: KindTooShort})
	clock.Sleep(time.Second)

	out := s.String()
	assert.Contains(t, out, "Total Frames:           3")
	assert.Contains(t, out, "Checksum Errors:        1 (33.3%)")
	assert.Contains(t, out, "  Too Short:            1")

	s.Reset()
	snap := s.Snapshot()
	assert.Equal(t, uint64(0), snap.TotalFrames)
	assert.Equal(t, clock.Now(), snap.StartTime)
}
