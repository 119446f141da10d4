// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Gripper commands
const (
	GripperOpen   = 0
	GripperClose  = 1
	GripperToggle = 2
)

// Tilter commands. Commands above TilterToggle carry a position.
const (
	TilterUp     = 0
	TilterDown   = 1
	TilterToggle = 2
	TilterSet    = 3
)

// Gains are the drive controller constants sent with SetGains
type Gains struct {
	KpA     float64 `cbor:"kp_A" json:"kp_A"`
	KiA     float64 `cbor:"ki_A" json:"ki_A"`
	KdA     float64 `cbor:"kd_A" json:"kd_A"`
	KpB     float64 `cbor:"kp_B" json:"kp_B"`
	KiB     float64 `cbor:"ki_B" json:"ki_B"`
	KdB     float64 `cbor:"kd_B" json:"kd_B"`
	SpeedKA float64 `cbor:"speed_kA" json:"speed_kA"`
	SpeedKB float64 `cbor:"speed_kB" json:"speed_kB"`
}

// Values returns the gains in device index order
func (g Gains) Values() [8]float64 {
	return [8]float64{g.KpA, g.KiA, g.KdA, g.KpB, g.KiB, g.KdB, g.SpeedKA, g.SpeedKB}
}

// Commands are the host to device command entry points. Motion commands are
// dropped unless MotorsReady; gain updates are dropped unless RobotReady.
//
// Commands must be called from the goroutine that owns the link. Other
// goroutines go through Bridge.Submit.
type Commands struct {
	session *Session
	encoder *Encoder
	stats   *Statistics
	log     zerolog.Logger
}

// NewCommands creates the command entry points over an encoder
func NewCommands(session *Session, encoder *Encoder, stats *Statistics, log zerolog.Logger) *Commands {
	return &Commands{session: session, encoder: encoder, stats: stats, log: log}
}

func (c *Commands) send(category string, args ...Arg) error {
	return c.encoder.Send(category, args...)
}

// checkFinite rejects values the device cannot parse as fixed-point
func checkFinite(name string, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: %w: %v", name, ErrNonFinite, v)
		}
	}
	return nil
}

func (c *Commands) drop(name string, guard string) error {
	c.log.Warn().Str("command", name).Msgf("%s aren't ready, skipping", guard)
	if c.stats != nil {
		c.stats.CommandDropped()
	}
	return ErrNotReady
}

// Drive sets the chassis motor speeds in ticks per second
func (c *Commands) Drive(speedA, speedB float64) error {
	if !c.session.MotorsReady() {
		return c.drop("drive", "motors")
	}
	if err := checkFinite("drive", speedA, speedB); err != nil {
		return err
	}
	return c.send(CmdDrive, Float(speedA), Float(speedB))
}

// Gripper opens, closes or toggles the gripper. The force threshold is only
// sent with close and toggle.
func (c *Commands) Gripper(command, forceThreshold uint8) error {
	if !c.session.MotorsReady() {
		return c.drop("gripper", "motors")
	}
	if command == GripperOpen {
		return c.send(CmdGripper, Int(int32(command)))
	}
	return c.send(CmdGripper, Int(int32(command)), Int(int32(forceThreshold)))
}

// Tilter moves the camera tilter. The position is only sent with TilterSet
// and above.
func (c *Commands) Tilter(command, position uint8) error {
	if !c.session.MotorsReady() {
		return c.drop("tilter", "motors")
	}
	if command <= TilterToggle {
		return c.send(CmdTilter, Int(int32(command)))
	}
	return c.send(CmdTilter, Int(int32(command)), Int(int32(position)))
}

// Linear commands the linear stepper
func (c *Commands) Linear(commandType, value int32) error {
	if !c.session.MotorsReady() {
		return c.drop("linear", "motors")
	}
	return c.send(CmdLinear, Int(commandType), Int(value))
}

// SetGains sends all eight controller constants, one packet each
func (c *Commands) SetGains(g Gains) error {
	if !c.session.RobotReady() {
		return c.drop("ks", "robot")
	}
	values := g.Values()
	if err := checkFinite("ks", values[:]...); err != nil {
		return err
	}
	for i, v := range values {
		if err := c.send(CmdGains, Int(int32(i)), Float(v)); err != nil {
			return err
		}
	}
	c.log.Info().
		Float64("kp_A", g.KpA).Float64("ki_A", g.KiA).Float64("kd_A", g.KdA).
		Float64("kp_B", g.KpB).Float64("ki_B", g.KiB).Float64("kd_B", g.KdB).
		Float64("speed_kA", g.SpeedKA).Float64("speed_kB", g.SpeedKB).
		Msg("set pid gains")
	return nil
}

// SetActive enables or disables the robot
func (c *Commands) SetActive(active bool) error {
	v := int32(activeOff)
	if active {
		v = activeOn
	}
	return c.send(CmdActive, Int(v))
}

// SoftRestart asks the device to restart its firmware
func (c *Commands) SoftRestart() error {
	return c.send(CmdActive, Int(activeRestart))
}

// SetReporting enables or disables telemetry reporting
func (c *Commands) SetReporting(enabled bool) error {
	v := int32(0)
	if enabled {
		v = 1
	}
	return c.send(CmdReporting, Int(v))
}
