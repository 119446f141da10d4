// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dodobot/serialbridge/pkg/dodolink"
)

var rawLogRecords bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded frames in human-readable format",
	Long: `Continuously decode and display Dodobot frames as they arrive.

This command is passive: it does not run the handshake or send anything to the
device. Each frame is printed with its timestamp, category, sequence number and
named fields. Rejected frames are printed with their error code.

Use --records to also print the telemetry records built from each frame.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogRecords, "records", false, "Print decoded telemetry records")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	t, connInfo, err := openTransport(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("serialbridge - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	bridgeCfg := dodolink.Config{
		LoopRate: cfg.LoopRate,
		Logger:   logger,
		OnPacket: func(p *dodolink.Packet) {
			fmt.Print(dodolink.FormatPacket(p))
		},
		OnDeviceMessage: func(msg string) {
			fmt.Printf("[DEVICE] %s\n", msg)
		},
		OnFrameError: func(err error) {
			fmt.Printf("[ERROR] %s\n", dodolink.FormatDecodeError(err))
		},
	}
	if rawLogRecords {
		bridgeCfg.Publisher = dodolink.PublisherFunc(func(r dodolink.Record) error {
			fmt.Printf("  -> %s\n", dodolink.FormatRecord(r))
			return nil
		})
	}

	ctx, cancel := signalContext()
	defer cancel()

	b := dodolink.New(dodolink.NewLink(t), bridgeCfg)
	if err := b.Listen(ctx); err != nil {
		if connectionEnded(err) {
			logger.Info().Msg("connection closed")
			return nil
		}
		return err
	}
	return nil
}
