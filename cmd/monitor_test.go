// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodobot/serialbridge/pkg/dodolink"
)

type fakeMonitorSource struct {
	stats     *dodolink.Statistics
	session   *dodolink.Session
	submitted int
	result    error
}

func newFakeMonitorSource() *fakeMonitorSource {
	return &fakeMonitorSource{
		stats:   dodolink.NewStatistics(nil),
		session: dodolink.NewSession(nil),
	}
}

func (f *fakeMonitorSource) Stats() *dodolink.Statistics { return f.stats }
func (f *fakeMonitorSource) Session() *dodolink.Session  { return f.session }
func (f *fakeMonitorSource) ConnInfo() string            { return "Serial: /dev/null @ 115200 baud" }

func (f *fakeMonitorSource) HandshakeState() dodolink.HandshakeState {
	return dodolink.HandshakeAwaitingReady
}

func (f *fakeMonitorSource) Submit(fn func(c *dodolink.Commands) error) <-chan error {
	f.submitted++
	done := make(chan error, 1)
	done <- f.result
	return done
}

func update(t *testing.T, m monitorModel, msg tea.Msg) (monitorModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(monitorModel)
	require.True(t, ok)
	return out, cmd
}

func enter(t *testing.T, m monitorModel, line string) monitorModel {
	t.Helper()
	m.input.SetValue(line)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	return m
}

func lastEvent(m monitorModel) eventLogEntry {
	return m.eventLog[len(m.eventLog)-1]
}

func TestMonitor_Batch(t *testing.T) {
	m := newMonitorModel(newFakeMonitorSource())
	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m, _ = update(t, m, monitorBatchMsg{messages: []tea.Msg{
		linkUpMsg{connInfo: "Serial: /dev/null @ 115200 baud"},
		recordMsg{record: dodolink.BatteryRecord{Time: stamp, Current: 250.5, Voltage: 12.6}},
		recordMsg{record: dodolink.TilterRecord{Time: stamp, Position: 4}},
		eventMsg{message: "device: hello"},
	}})

	assert.True(t, m.connected)
	assert.Len(t, m.records, 2)
	assert.Contains(t, m.records[dodolink.CategoryBattery], "12.60 V")
	assert.Equal(t, "device: hello", lastEvent(m).message)

	view := m.View()
	assert.Contains(t, view, "SERIALBRIDGE MONITOR")
	assert.Contains(t, view, "12.60 V")
	assert.Contains(t, view, "awaiting ready")
}

func TestMonitor_LinkDown(t *testing.T) {
	m := newMonitorModel(newFakeMonitorSource())
	m, _ = update(t, m, linkUpMsg{connInfo: "x"})
	m, _ = update(t, m, linkDownMsg{err: errors.New("unplugged")})

	assert.False(t, m.connected)
	assert.True(t, lastEvent(m).isError)
	assert.Contains(t, lastEvent(m).message, "unplugged")
	assert.Contains(t, m.View(), "CONNECTING...")
}

func TestMonitor_CommandInput(t *testing.T) {
	src := newFakeMonitorSource()
	m := newMonitorModel(src)

	m = enter(t, m, "active on")
	assert.Equal(t, 1, src.submitted)
	assert.Equal(t, "active on: sent", lastEvent(m).message)
	assert.Empty(t, m.input.Value())

	src.result = dodolink.ErrNotReady
	m = enter(t, m, "drive 1 1")
	assert.Equal(t, 2, src.submitted)
	assert.True(t, lastEvent(m).isError)
	assert.Contains(t, lastEvent(m).message, dodolink.ErrNotReady.Error())

	m = enter(t, m, "fly away")
	assert.Equal(t, 2, src.submitted)
	assert.Contains(t, lastEvent(m).message, "unknown command")
}

func TestMonitor_Help(t *testing.T) {
	m := newMonitorModel(newFakeMonitorSource())
	m.input.SetValue("help")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.NotEmpty(t, m.eventLog)
	assert.Contains(t, m.eventLog[0].message, "drive")
}

func TestMonitor_Quit(t *testing.T) {
	m := newMonitorModel(newFakeMonitorSource())
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestMonitor_LogTrimmed(t *testing.T) {
	m := newMonitorModel(newFakeMonitorSource())
	m.maxLogEntries = 3
	for i := 0; i < 5; i++ {
		m.addLogEntry("event", false)
	}
	assert.Len(t, m.eventLog, 3)
}

func TestEventQueue(t *testing.T) {
	q := newEventQueue(2)
	q.push(eventMsg{message: "a"})
	q.push(eventMsg{message: "b"})
	q.push(eventMsg{message: "dropped"})

	batch := q.drain()
	require.Len(t, batch, 2)
	assert.Equal(t, eventMsg{message: "a"}, batch[0])
	assert.Empty(t, q.drain())
}

func TestMonitorHooks(t *testing.T) {
	q := newEventQueue(8)
	hooks := monitorHooks(q)

	require.NoError(t, hooks.publisher.Publish(dodolink.GripperRecord{Position: 3}))
	hooks.onDeviceError(&dodolink.DeviceError{PacketNum: 7, Kind: dodolink.KindChecksumMismatch})
	hooks.onConnect("pipe")
	hooks.onDisconnect(nil)

	batch := q.drain()
	require.Len(t, batch, 4)
	assert.IsType(t, recordMsg{}, batch[0])
	assert.Equal(t, eventMsg{message: "device rejected packet 7: checksums don't match", isError: true}, batch[1])
	assert.Equal(t, linkUpMsg{connInfo: "pipe"}, batch[2])
	assert.Equal(t, linkDownMsg{}, batch[3])
}

func TestHandshakeExitCode(t *testing.T) {
	assert.Equal(t, exitReady, handshakeExitCode(nil))
	assert.Equal(t, exitTimeout, handshakeExitCode(dodolink.ErrHandshakeTimeout))
	assert.Equal(t, exitInterrupted, handshakeExitCode(context.Canceled))
	assert.NotEqual(t, exitTimeout, handshakeExitCode(context.DeadlineExceeded))
	assert.Equal(t, exitConnection, handshakeExitCode(&dodolink.TransportError{Op: "read", Err: errors.New("eof")}))
}

func TestConnectionEnded(t *testing.T) {
	assert.True(t, connectionEnded(&dodolink.TransportError{Op: "read", Err: errWebSocketClosed}))
	assert.True(t, connectionEnded(dodolink.ErrConnectionClosed))
	assert.False(t, connectionEnded(&dodolink.TransportError{Op: "read", Err: errors.New("i/o error")}))
}
