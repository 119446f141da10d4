// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dodobot/serialbridge/pkg/mqttbus"
	"github.com/dodobot/serialbridge/pkg/statusapi"
)

var (
	runBroker   string
	runHTTPAddr string
	runLoopRate float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge: handshake, telemetry publishing and command forwarding",
	Long: `Run the full bridge.

The bridge waits for the device's ready signal, enables the robot and telemetry
reporting, then polls the link. Decoded telemetry is published on MQTT as CBOR
records, and commands received on the command topics are forwarded to the device.

If the connection drops, it is reopened with exponential backoff (1s to 30s).

An optional HTTP listener serves /health, /ready, /status and /metrics.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runBroker, "mqtt", "", "MQTT broker URL (tcp://host:1883/prefix)")
	runCmd.Flags().StringVar(&runHTTPAddr, "http", "", "Status API listen address (e.g. :8080)")
	runCmd.Flags().Float64Var(&runLoopRate, "rate", 0, "Polling rate in Hz")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBridge(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("mqtt") {
		cfg.MQTT.Broker = runBroker
	}
	if cmd.Flags().Changed("http") {
		cfg.HTTP.Addr = runHTTPAddr
	}
	if cmd.Flags().Changed("rate") {
		cfg.LoopRate = runLoopRate
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireConnection(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var hooks bridgeHooks

	var bus *mqttbus.Bus
	if cfg.MQTT.Broker != "" {
		var err error
		bus, err = mqttbus.New(mqttbus.Options{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
			QoS:         cfg.MQTT.QoS,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		err = bus.Connect(connectCtx)
		connectCancel()
		if err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
		defer bus.Close()

		logger.Info().Str("broker", cfg.MQTT.Broker).Str("prefix", bus.TopicPrefix).Msg("mqtt connected")
		hooks.publisher = bus
	}

	sup := newSupervisor(cfg, hooks, logger)

	if bus != nil {
		if err := bus.SubscribeCommands(cfg.DriveCmdTopic, sup); err != nil {
			return err
		}
	}

	if cfg.HTTP.Addr != "" {
		api := statusapi.New(sup, logger)
		go func() {
			if err := api.Serve(ctx, cfg.HTTP.Addr); err != nil {
				logger.Error().Err(err).Msg("status api stopped")
			}
		}()
	}

	err := sup.Run(ctx)
	logger.Info().Msg(sup.Stats().String())
	return err
}
