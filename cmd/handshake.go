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

// handshake exit codes
const (
	exitReady       = 0
	exitTimeout     = 1
	exitConnection  = 2
	exitInterrupted = 130
)

var handshakeTimeout int

var handshakeCmd = &cobra.Command{
	Use:   "handshake",
	Short: "Test the connection by waiting for the device's ready signal",
	Long: `Send the handshake request and wait for the device's ready signal.

The request is resent every second until the device answers or the timeout
passes. Nothing else is sent: the robot is not enabled.

Exit codes:
  0 - Device reported ready before timeout
  1 - Timeout reached without a ready signal
  2 - Connection error
  130 - Interrupted before the device answered`,
	RunE: runHandshake,
}

func init() {
	rootCmd.AddCommand(handshakeCmd)
	handshakeCmd.Flags().IntVar(&handshakeTimeout, "timeout", 5, "Timeout in seconds to wait for the ready signal")
}

func runHandshake(cmd *cobra.Command, args []string) error {
	t, connInfo, err := openTransport(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}

	fmt.Printf("serialbridge - Handshake Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", handshakeTimeout)
	fmt.Printf("Waiting for ready signal...\n\n")

	ctx, cancel := signalContext()
	defer cancel()

	b := dodolink.New(dodolink.NewLink(t), dodolink.Config{
		Logger:           logger,
		HandshakeTimeout: time.Duration(handshakeTimeout) * time.Second,
	})
	err = b.Handshake(ctx)
	b.Close()
	code := handshakeExitCode(err)

	switch code {
	case exitReady:
		ready := b.Session().Ready()
		fmt.Printf("SUCCESS: Device is ready\n")
		fmt.Printf("  Robot: %s\n", ready.RobotName)
		fmt.Printf("  Device time: %d ms\n", ready.DeviceTimeMs)
		fmt.Printf("  Frames: %d valid, %d rejected\n",
			b.Stats().Snapshot().ValidPackets, b.Stats().Snapshot().DecodeErrors())
	case exitTimeout:
		fmt.Fprintf(os.Stderr, "TIMEOUT: No ready signal within %d seconds\n", handshakeTimeout)
	case exitInterrupted:
		fmt.Fprintf(os.Stderr, "INTERRUPTED: Handshake cancelled\n")
	default:
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
	}
	os.Exit(code)
	return nil
}

// handshakeExitCode maps a handshake result to the command's exit code
func handshakeExitCode(err error) int {
	switch {
	case err == nil:
		return exitReady
	case errors.Is(err, dodolink.ErrHandshakeTimeout):
		return exitTimeout
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitConnection
	}
}
