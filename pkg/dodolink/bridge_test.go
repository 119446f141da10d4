// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(port *memPort) (*Bridge, *recordSink, *fakeClock) {
	clock := newFakeClock()
	sink := &recordSink{}
	b := New(port, Config{
		Clock:     clock,
		Publisher: sink,
		Logger:    zerolog.Nop(),
		QueueSize: 4,
	})
	return b, sink, clock
}

func TestBridge_Setup(t *testing.T) {
	port := &memPort{onWrite: replyOnWrite(1, 500, "dodobot")}
	b, _, _ := newTestBridge(port)

	require.NoError(t, b.Setup(context.Background()))
	assert.Equal(t, HandshakeReady, b.HandshakeState())

	writes := port.written()
	require.Len(t, writes, 3)
	assert.Equal(t, []string{"0", "?", "dodobot"}, fields(writes[0]))
	assert.Equal(t, []string{"1", "<>", "1"}, fields(writes[1]))
	assert.Equal(t, []string{"2", "[]", "1"}, fields(writes[2]))
	assert.Equal(t, uint64(3), b.Stats().Snapshot().CommandsSent)
}

func TestBridge_SetupTimeout(t *testing.T) {
	port := &memPort{}
	b, _, _ := newTestBridge(port)

	assert.ErrorIs(t, b.Setup(context.Background()), ErrHandshakeTimeout)
	assert.Equal(t, HandshakeFailed, b.HandshakeState())
}

func TestBridge_PollDispatches(t *testing.T) {
	port := &memPort{onWrite: replyOnWrite(1, 500, "dodobot")}
	b, sink, _ := newTestBridge(port)
	require.NoError(t, b.Setup(context.Background()))

	var packets []string
	b.cfg.OnPacket = func(p *Packet) { packets = append(packets, p.Category) }

	port.feed(
		EncodeFrame(1, CategoryState, Uint(600), Int(1), Int(1), Int(1), Float(120)),
		EncodeFrame(2, CategoryEncoder, Uint(610), Int(5), Int(6), Float(1), Float(2)),
		[]byte("debug text\n"),
		EncodeFrame(3, CategoryBattery, Uint(620), Float(300), Str(""), Float(12.1)),
	)
	require.NoError(t, b.Poll())

	assert.Equal(t, []string{"state", "enc", "batt"}, packets)
	require.Len(t, sink.records, 2)
	assert.IsType(t, DriveRecord{}, sink.records[0])
	assert.IsType(t, BatteryRecord{}, sink.records[1])
	assert.True(t, b.Session().MotorsReady())
	assert.Equal(t, uint64(4), b.Session().ReadSeq())

	snap := b.Stats().Snapshot()
	assert.Equal(t, uint64(4), snap.ValidPackets)
	assert.Equal(t, uint64(1), snap.DeviceMessages)
}

func TestBridge_PollSkipsSmallBacklog(t *testing.T) {
	port := &memPort{}
	b, _, _ := newTestBridge(port)

	port.feed([]byte{StartByte0, StartByte1})
	require.NoError(t, b.Poll())
	assert.Equal(t, 2, port.Available())
}

func TestBridge_SubmitRunsOnPoll(t *testing.T) {
	port := &memPort{}
	b, _, _ := newTestBridge(port)

	done := b.Submit(func(c *Commands) error { return c.SetReporting(false) })
	assert.Empty(t, port.written())

	require.NoError(t, b.Poll())
	require.NoError(t, <-done)
	require.Len(t, port.written(), 1)
	assert.Equal(t, []string{"0", "[]", "0"}, fields(port.written()[0]))
}

func TestBridge_SubmitGuarded(t *testing.T) {
	port := &memPort{}
	b, _, _ := newTestBridge(port)

	done := b.Submit(func(c *Commands) error { return c.Drive(100, 100) })
	require.NoError(t, b.Poll())
	assert.ErrorIs(t, <-done, ErrNotReady)
	assert.Empty(t, port.written())
}

func TestBridge_SubmitQueueFull(t *testing.T) {
	port := &memPort{}
	b, _, _ := newTestBridge(port)

	noop := func(c *Commands) error { return nil }
	for i := 0; i < 4; i++ {
		b.Submit(noop)
	}
	assert.ErrorIs(t, <-b.Submit(noop), ErrQueueFull)
}

func TestBridge_Close(t *testing.T) {
	port := &memPort{}
	b, _, _ := newTestBridge(port)

	pending := b.Submit(func(c *Commands) error { return nil })
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.True(t, port.closed)
	assert.ErrorIs(t, <-pending, ErrConnectionClosed)
	assert.ErrorIs(t, <-b.Submit(func(c *Commands) error { return nil }), ErrConnectionClosed)
}

func TestBridge_PollTransportError(t *testing.T) {
	port := &memPort{}
	b, _, _ := newTestBridge(port)

	port.err = &TransportError{Op: "read", Err: errors.New("unplugged")}
	var te *TransportError
	assert.ErrorAs(t, b.Poll(), &te)
}

func TestBridge_Run(t *testing.T) {
	port := &memPort{onWrite: replyOnWrite(1, 500, "dodobot")}
	b, sink, _ := newTestBridge(port)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		return b.HandshakeState() == HandshakeReady
	}, time.Second, time.Millisecond)

	port.feed(EncodeFrame(1, CategoryTilter, Uint(700), Int(4)))
	require.Eventually(t, func() bool {
		return b.Session().ReadSeq() == 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}
	assert.True(t, port.closed)
	assert.Len(t, sink.records, 1)
}

func TestBridge_RunStopsOnTransportError(t *testing.T) {
	port := &memPort{onWrite: replyOnWrite(1, 500, "dodobot")}
	b, _, _ := newTestBridge(port)

	result := make(chan error, 1)
	go func() { result <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return b.HandshakeState() == HandshakeReady
	}, time.Second, time.Millisecond)

	port.mu.Lock()
	port.err = errors.New("unplugged")
	port.mu.Unlock()

	select {
	case err := <-result:
		assert.ErrorContains(t, err, "unplugged")
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestBridge_ListenPassive(t *testing.T) {
	port := &memPort{}
	b, sink, _ := newTestBridge(port)

	frameErrs := make(chan error, 4)
	b.cfg.OnFrameError = func(err error) { frameErrs <- err }

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- b.Listen(ctx) }()

	port.feed(
		[]byte("\x12\x340\tenc\t1zz\n"),
		EncodeFrame(1, CategoryTilter, Uint(700), Int(4)),
	)

	select {
	case err := <-frameErrs:
		assert.True(t, IsKind(err, KindChecksumMismatch))
	case <-time.After(time.Second):
		t.Fatal("no frame error reported")
	}
	require.Eventually(t, func() bool {
		return b.Session().ReadSeq() == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-result)
	assert.Empty(t, port.written())
	assert.Equal(t, HandshakeIdle, b.HandshakeState())
	assert.Len(t, sink.records, 1)
}

func TestBridge_Handshake(t *testing.T) {
	port := &memPort{onWrite: replyOnWrite(2, 900, "dodobot")}
	b, _, _ := newTestBridge(port)

	require.NoError(t, b.Handshake(context.Background()))
	assert.True(t, b.Session().RobotReady())
	assert.Len(t, port.written(), 2)
}
