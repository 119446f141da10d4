// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dodobot/serialbridge/pkg/dodolink"
	"github.com/dodobot/serialbridge/pkg/mqttbus"
)

// commandHelp lists the console command syntax
const commandHelp = `drive <left> <right>            chassis speeds (ticks/s)
grip open|close|toggle [force]  gripper
tilt up|down|toggle|<pos>       camera tilter
linear <type> <value>           linear stepper
gains <kpA> <kiA> <kdA> <kpB> <kiB> <kdB> <skA> <skB>
active on|off                   enable or disable the robot
reporting on|off                telemetry reporting
restart                         soft-restart the firmware`

var errUsage = errors.New("usage")

// parseCommand turns a console line into a device command
func parseCommand(line string) (mqttbus.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("empty command")
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "drive":
		if len(args) != 2 {
			return nil, usage("drive <left> <right>")
		}
		left, err := parseFloat(args[0])
		if err != nil {
			return nil, err
		}
		right, err := parseFloat(args[1])
		if err != nil {
			return nil, err
		}
		return mqttbus.DriveCommand{LeftSetpoint: left, RightSetpoint: right}, nil

	case "grip", "gripper":
		if len(args) < 1 || len(args) > 2 {
			return nil, usage("grip open|close|toggle [force]")
		}
		var cmd uint8
		switch strings.ToLower(args[0]) {
		case "open":
			cmd = dodolink.GripperOpen
		case "close":
			cmd = dodolink.GripperClose
		case "toggle":
			cmd = dodolink.GripperToggle
		default:
			return nil, fmt.Errorf("unknown gripper command %q", args[0])
		}
		var force uint8
		if len(args) == 2 {
			v, err := parseUint8(args[1])
			if err != nil {
				return nil, err
			}
			force = v
		}
		return mqttbus.GripperCommand{Command: cmd, ForceThreshold: force}, nil

	case "tilt", "tilter":
		if len(args) != 1 {
			return nil, usage("tilt up|down|toggle|<pos>")
		}
		switch strings.ToLower(args[0]) {
		case "up":
			return mqttbus.TilterCommand{Command: dodolink.TilterUp}, nil
		case "down":
			return mqttbus.TilterCommand{Command: dodolink.TilterDown}, nil
		case "toggle":
			return mqttbus.TilterCommand{Command: dodolink.TilterToggle}, nil
		}
		pos, err := parseUint8(args[0])
		if err != nil {
			return nil, err
		}
		return mqttbus.TilterCommand{Command: dodolink.TilterSet, Position: pos}, nil

	case "linear":
		if len(args) != 2 {
			return nil, usage("linear <type> <value>")
		}
		typ, err := parseInt32(args[0])
		if err != nil {
			return nil, err
		}
		value, err := parseInt32(args[1])
		if err != nil {
			return nil, err
		}
		return mqttbus.LinearCommand{CommandType: typ, CommandValue: value}, nil

	case "gains", "pid", "ks":
		if len(args) != 8 {
			return nil, usage("gains <kpA> <kiA> <kdA> <kpB> <kiB> <kdB> <skA> <skB>")
		}
		var v [8]float64
		for i, a := range args {
			f, err := parseFloat(a)
			if err != nil {
				return nil, err
			}
			v[i] = f
		}
		return mqttbus.PIDCommand{Gains: dodolink.Gains{
			KpA: v[0], KiA: v[1], KdA: v[2],
			KpB: v[3], KiB: v[4], KdB: v[5],
			SpeedKA: v[6], SpeedKB: v[7],
		}}, nil

	case "active":
		on, err := parseSwitch(args, "active on|off")
		if err != nil {
			return nil, err
		}
		return mqttbus.ActiveCommand{Active: on}, nil

	case "reporting":
		on, err := parseSwitch(args, "reporting on|off")
		if err != nil {
			return nil, err
		}
		return mqttbus.ReportingCommand{Enabled: on}, nil

	case "restart":
		if len(args) != 0 {
			return nil, usage("restart")
		}
		return mqttbus.RestartCommand{}, nil
	}

	return nil, fmt.Errorf("unknown command %q", name)
}

func usage(syntax string) error {
	return fmt.Errorf("%w: %s", errUsage, syntax)
}

func parseSwitch(args []string, syntax string) (bool, error) {
	if len(args) != 1 {
		return false, usage(syntax)
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, usage(syntax)
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int32(v), nil
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q (0-255)", s)
	}
	return uint8(v), nil
}
