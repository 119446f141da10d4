// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package mqttbus

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/dodobot/serialbridge/pkg/dodolink"
)

// Command topics, relative to the topic prefix. The drive topic is
// configurable.
const (
	TopicGripperCmd   = "gripper_cmd"
	TopicTilterCmd    = "tilter_cmd"
	TopicLinearCmd    = "linear_cmd"
	TopicPIDCmd       = "pid_cmd"
	TopicActiveCmd    = "active_cmd"
	TopicReportingCmd = "reporting_cmd"
	TopicRestartCmd   = "restart_cmd"
)

// Command is a decoded command message
type Command interface {
	Apply(c *dodolink.Commands) error
}

// DriveCommand sets the chassis motor speeds in ticks per second
type DriveCommand struct {
	LeftSetpoint  float64 `cbor:"left_setpoint"`
	RightSetpoint float64 `cbor:"right_setpoint"`
}

// Apply sends the drive setpoints; dropped unless the motors are ready
func (m DriveCommand) Apply(c *dodolink.Commands) error {
	return c.Drive(m.LeftSetpoint, m.RightSetpoint)
}

// GripperCommand opens, closes or toggles the gripper
type GripperCommand struct {
	Command        uint8 `cbor:"command"`
	ForceThreshold uint8 `cbor:"force_threshold"`
}

// Apply sends the gripper command
func (m GripperCommand) Apply(c *dodolink.Commands) error {
	return c.Gripper(m.Command, m.ForceThreshold)
}

// TilterCommand moves the camera tilter
type TilterCommand struct {
	Command  uint8 `cbor:"command"`
	Position uint8 `cbor:"position"`
}

// Apply sends the tilter command
func (m TilterCommand) Apply(c *dodolink.Commands) error {
	return c.Tilter(m.Command, m.Position)
}

// LinearCommand commands the linear stepper
type LinearCommand struct {
	CommandType  int32 `cbor:"command_type"`
	CommandValue int32 `cbor:"command_value"`
}

// Apply sends the linear stepper command
func (m LinearCommand) Apply(c *dodolink.Commands) error {
	return c.Linear(m.CommandType, m.CommandValue)
}

// PIDCommand updates the drive controller gains
type PIDCommand struct {
	dodolink.Gains
}

// Apply sends all eight gains
func (m PIDCommand) Apply(c *dodolink.Commands) error {
	return c.SetGains(m.Gains)
}

// ActiveCommand enables or disables the robot
type ActiveCommand struct {
	Active bool `cbor:"active"`
}

// Apply enables or disables the robot
func (m ActiveCommand) Apply(c *dodolink.Commands) error {
	return c.SetActive(m.Active)
}

// ReportingCommand enables or disables telemetry reporting
type ReportingCommand struct {
	Enabled bool `cbor:"enabled"`
}

// Apply toggles telemetry reporting
func (m ReportingCommand) Apply(c *dodolink.Commands) error {
	return c.SetReporting(m.Enabled)
}

// RestartCommand soft-restarts the device firmware. Its payload is ignored.
type RestartCommand struct{}

// Apply requests a soft restart
func (RestartCommand) Apply(c *dodolink.Commands) error {
	return c.SoftRestart()
}

// Submitter runs command functions on the bridge's polling goroutine
type Submitter interface {
	Submit(fn func(c *dodolink.Commands) error) <-chan error
}

// CommandTopics returns the subscribed command topics
func CommandTopics(driveTopic string) []string {
	return []string{
		driveTopic,
		TopicGripperCmd,
		TopicTilterCmd,
		TopicLinearCmd,
		TopicPIDCmd,
		TopicActiveCmd,
		TopicReportingCmd,
		TopicRestartCmd,
	}
}

// DecodeCommand decodes the CBOR payload received on a command topic
func DecodeCommand(topic, driveTopic string, payload []byte) (Command, error) {
	switch topic {
	case driveTopic:
		var m DriveCommand
		err := cbor.Unmarshal(payload, &m)
		return m, wrapDecode(topic, err)
	case TopicGripperCmd:
		var m GripperCommand
		err := cbor.Unmarshal(payload, &m)
		return m, wrapDecode(topic, err)
	case TopicTilterCmd:
		var m TilterCommand
		err := cbor.Unmarshal(payload, &m)
		return m, wrapDecode(topic, err)
	case TopicLinearCmd:
		var m LinearCommand
		err := cbor.Unmarshal(payload, &m)
		return m, wrapDecode(topic, err)
	case TopicPIDCmd:
		var m PIDCommand
		err := cbor.Unmarshal(payload, &m.Gains)
		return m, wrapDecode(topic, err)
	case TopicActiveCmd:
		var m ActiveCommand
		err := cbor.Unmarshal(payload, &m)
		return m, wrapDecode(topic, err)
	case TopicReportingCmd:
		var m ReportingCommand
		err := cbor.Unmarshal(payload, &m)
		return m, wrapDecode(topic, err)
	case TopicRestartCmd:
		return RestartCommand{}, nil
	default:
		return nil, fmt.Errorf("unknown command topic %q", topic)
	}
}

func wrapDecode(topic string, err error) error {
	if err != nil {
		return fmt.Errorf("decode %s: %w", topic, err)
	}
	return nil
}

// SubscribeCommands subscribes every command topic and submits decoded
// commands to target.
func (b *Bus) SubscribeCommands(driveTopic string, target Submitter) error {
	handler := b.commandHandler(driveTopic, target)
	for _, topic := range CommandTopics(driveTopic) {
		token := b.Sub(topic, handler)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}
	return nil
}

func (b *Bus) commandHandler(driveTopic string, target Submitter) Handler {
	return func(topic string, payload []byte) {
		cmd, err := DecodeCommand(topic, driveTopic, payload)
		if err != nil {
			b.log.Warn().Err(err).Str("topic", topic).Msg("dropping command")
			return
		}
		done := target.Submit(cmd.Apply)
		go func() {
			if err := <-done; err != nil {
				b.log.Warn().Err(err).Str("topic", topic).Msg("command failed")
			}
		}()
	}
}
