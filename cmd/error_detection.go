// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dodobot/serialbridge/pkg/dodolink"
)

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and device errors",
	Long: `Track frame errors, sequence resyncs and device-reported errors with statistics.

This command listens passively and detects:
  - Frames that are too short, fail their checksum or lack required fields
  - Frames that are too long or never terminated
  - Sequence counter resyncs
  - Errors the device reports for frames it received (txrx)
  - Statistics and trends (packet rate, error rate)

By default, only errors are displayed. Use --show-all to display valid frames too.
Errors before the first valid frame are counted but not printed.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

// printFrameError prints a rejected frame in highlighted format
func printFrameError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mFRAME ERROR:\033[0m %s\n", timestamp, dodolink.FormatDecodeError(err))
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// printDeviceError prints an error the device reported for one of our frames
func printDeviceError(e *dodolink.DeviceError) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mDEVICE ERROR:\033[0m packet %d: %s (%s)\n\n",
		timestamp, e.PacketNum, e.Kind.Description(), e.Kind)
}

// printResync prints a sequence resync
func printResync(p *dodolink.Packet) {
	timestamp := p.Timestamp.Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mRESYNC:\033[0m expected seq %d, device sent %d\n\n",
		timestamp, p.ExpectedSeq, p.Seq)
}

// syncTracker ignores errors until the first valid frame arrives
type syncTracker struct {
	synchronized bool
	skipped      int
}

func (s *syncTracker) packet() {
	if s.synchronized {
		return
	}
	s.synchronized = true
	if s.skipped > 0 {
		fmt.Printf("[SYNC] Synchronized after skipping %d bad frames\n\n", s.skipped)
	} else {
		fmt.Printf("[SYNC] Synchronized\n\n")
	}
}

func (s *syncTracker) frameError() bool {
	if !s.synchronized {
		s.skipped++
		return false
	}
	return true
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive, got %d", statsInterval)
	}

	t, connInfo, err := openTransport(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("serialbridge - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var tracker syncTracker
	b := dodolink.New(dodolink.NewLink(t), dodolink.Config{
		LoopRate: cfg.LoopRate,
		Logger:   logger,
		OnPacket: func(p *dodolink.Packet) {
			tracker.packet()
			if p.Resynced {
				printResync(p)
			}
			if showAll {
				fmt.Print(dodolink.FormatPacket(p))
			}
		},
		OnFrameError: func(err error) {
			if tracker.frameError() {
				printFrameError(err)
			}
		},
		OnDeviceError: printDeviceError,
	})

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Println()
				fmt.Print(b.Stats().String())
				fmt.Println()
			}
		}
	}()

	err = b.Listen(ctx)
	fmt.Println()
	fmt.Print(b.Stats().String())
	if err != nil && !connectionEnded(err) {
		return err
	}
	return nil
}
