// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dodobot/serialbridge/pkg/dodolink"
)

var (
	linkCheckDuration int
	linkCheckVerbose  bool
)

var linkCheckCmd = &cobra.Command{
	Use:   "link_check",
	Short: "Test raw connection stability",
	Long: `Open the connection without sending anything and classify the raw byte
stream: start markers, complete frames (start marker through stop byte) and
lines of device text. Frames are not decoded or checksummed, so this isolates
adapter and cabling problems from protocol problems.

Exit codes:
  0 - Test completed normally
  1 - Connection lost during the test
  2 - Connection error`,
	RunE: runLinkCheck,
}

func init() {
	rootCmd.AddCommand(linkCheckCmd)
	linkCheckCmd.Flags().IntVar(&linkCheckDuration, "duration", 30, "Test duration in seconds")
	linkCheckCmd.Flags().BoolVarP(&linkCheckVerbose, "verbose", "v", false, "Print each device text line")
}

// streamCounts tallies the structure of the raw byte stream
type streamCounts struct {
	Bytes        int
	StartMarkers int
	Frames       int
	DeviceLines  int
	// Unterminated counts start markers superseded by another start marker
	// before a stop byte arrived
	Unterminated int
	LongestGap   time.Duration
}

// streamCounter classifies bytes one at a time without decoding frames
type streamCounter struct {
	counts       streamCounts
	pendingStart bool
	inFrame      bool
	line         []byte

	// onLine receives each line of device text outside a frame
	onLine func(line string)
}

func (c *streamCounter) feed(b byte) {
	c.counts.Bytes++

	if c.pendingStart && b == dodolink.StartByte1 {
		c.pendingStart = false
		c.counts.StartMarkers++
		if c.inFrame {
			c.counts.Unterminated++
		}
		c.inFrame = true
		c.line = c.line[:0]
		return
	}
	c.pendingStart = b == dodolink.StartByte0
	if c.pendingStart {
		return
	}

	if b != dodolink.StopByte {
		if !c.inFrame && len(c.line) < dodolink.MaxFrameSize {
			c.line = append(c.line, b)
		}
		return
	}

	switch {
	case c.inFrame:
		c.counts.Frames++
		c.inFrame = false
	case len(c.line) > 0:
		c.counts.DeviceLines++
		if c.onLine != nil {
			c.onLine(string(c.line))
		}
	}
	c.line = c.line[:0]
}

// checkLink drains src until ctx ends or the source fails. report is called
// once per interval with the running counts.
func checkLink(ctx context.Context, src dodolink.ByteSource, counter *streamCounter,
	interval time.Duration, report func(streamCounts)) (streamCounts, error) {
	poll := time.NewTicker(5 * time.Millisecond)
	defer poll.Stop()
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	lastData := time.Now()
	for {
		select {
		case <-ctx.Done():
			return counter.counts, nil
		case <-heartbeat.C:
			if report != nil {
				report(counter.counts)
			}
		case <-poll.C:
		}

		for {
			b, err := src.ReadByte()
			if errors.Is(err, dodolink.ErrNoData) {
				break
			}
			if err != nil {
				return counter.counts, err
			}
			now := time.Now()
			if gap := now.Sub(lastData); gap > counter.counts.LongestGap {
				counter.counts.LongestGap = gap
			}
			lastData = now
			counter.feed(b)
		}
	}
}

func printLinkResults(elapsed time.Duration, c streamCounts, result string) {
	fmt.Printf("\n--- Link Check Results ---\n")
	fmt.Printf("Duration:          %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Bytes received:    %d\n", c.Bytes)
	fmt.Printf("Start markers:     %d\n", c.StartMarkers)
	fmt.Printf("Complete frames:   %d\n", c.Frames)
	fmt.Printf("Unterminated:      %d\n", c.Unterminated)
	fmt.Printf("Device text lines: %d\n", c.DeviceLines)
	fmt.Printf("Longest silence:   %v\n", c.LongestGap.Round(time.Millisecond))
	if elapsed > 0 {
		fmt.Printf("Frame rate:        %.1f/s\n", float64(c.Frames)/elapsed.Seconds())
	}
	fmt.Printf("Result: %s\n", result)
}

func runLinkCheck(cmd *cobra.Command, args []string) error {
	if linkCheckDuration <= 0 {
		return fmt.Errorf("--duration must be positive")
	}

	t, connInfo, err := openTransport(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}
	link := dodolink.NewLink(t)
	defer link.Close()

	fmt.Printf("Link Check\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkCheckDuration)

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(linkCheckDuration)*time.Second)
	defer cancelTimeout()

	counter := &streamCounter{}
	if linkCheckVerbose {
		counter.onLine = func(line string) {
			fmt.Printf("[%s] [DEVICE] %s\n", time.Now().Format("15:04:05.000"), line)
		}
	}

	start := time.Now()
	counts, err := checkLink(ctx, link, counter, time.Second, func(c streamCounts) {
		fmt.Printf("[%s] %d bytes, %d frames, %d device lines\n",
			time.Now().Format("15:04:05.000"), c.Bytes, c.Frames, c.DeviceLines)
	})
	if err != nil {
		fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), err)
		printLinkResults(time.Since(start), counts, "FAILED (connection error)")
		link.Close()
		os.Exit(1)
	}

	result := "PASSED (connection stable)"
	if counts.Frames == 0 {
		result = "PASSED (connection stable, no frames seen)"
	}
	printLinkResults(time.Since(start), counts, result)
	return nil
}
