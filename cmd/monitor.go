// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dodobot/serialbridge/pkg/dodolink"
	"github.com/dodobot/serialbridge/pkg/logging"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for monitoring and commanding the robot",
	Long: `Run the bridge behind an interactive terminal UI.

Features:
  - Handshake and robot state (active, motors, battery, loop rate)
  - Latest telemetry record per category
  - Link statistics (frames, errors, resyncs, device errors, rates)
  - Event log with device messages, device errors and bridge logs
  - Command input (type 'help' for the syntax)
  - Automatic reconnection on connection loss

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// eventQueue decouples the bridge goroutine from the TUI. Pushes never block;
// a full queue drops the message.
type eventQueue struct {
	ch chan tea.Msg
}

func newEventQueue(size int) *eventQueue {
	return &eventQueue{ch: make(chan tea.Msg, size)}
}

func (q *eventQueue) push(msg tea.Msg) {
	select {
	case q.ch <- msg:
	default:
	}
}

// drain returns everything queued so far
func (q *eventQueue) drain() []tea.Msg {
	var out []tea.Msg
	for {
		select {
		case msg := <-q.ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// monitorHooks routes bridge events into the queue
func monitorHooks(q *eventQueue) bridgeHooks {
	return bridgeHooks{
		publisher: dodolink.PublisherFunc(func(r dodolink.Record) error {
			q.push(recordMsg{record: r})
			return nil
		}),
		onDeviceMessage: func(msg string) {
			q.push(eventMsg{message: "device: " + msg})
		},
		onDeviceError: func(e *dodolink.DeviceError) {
			q.push(eventMsg{message: e.Error(), isError: true})
		},
		onConnect: func(connInfo string) {
			q.push(linkUpMsg{connInfo: connInfo})
		},
		onDisconnect: func(err error) {
			q.push(linkDownMsg{err: err})
		},
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireConnection(); err != nil {
		return err
	}

	q := newEventQueue(256)
	log := logging.New("serialbridge", logging.Options{
		Level:   cfg.LogLevel,
		NoColor: true,
		Out: logging.NewLineWriter(func(line string) {
			q.push(eventMsg{message: line})
		}),
	})

	sup := newSupervisor(cfg, monitorHooks(q), log)
	p := tea.NewProgram(newMonitorModel(sup), tea.WithAltScreen())

	ctx, cancel := signalContext()
	defer cancel()

	// A startup failure ends the program and is reported after the TUI exits
	result := make(chan error, 1)
	go func() {
		err := sup.Run(ctx)
		result <- err
		if err != nil {
			p.Quit()
		}
	}()

	// Forward queued events at a fixed rate
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if batch := q.drain(); len(batch) > 0 {
					p.Send(monitorBatchMsg{messages: batch})
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	cancel()
	runErr := <-result
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return runErr
}
