// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"errors"
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (%s) seq=%d", timestamp, FormatCategory(p.Category), p.Category, p.Seq)
	if p.Resynced {
		result += fmt.Sprintf(" (resynced from %d)", p.ExpectedSeq)
	}
	result += "\n"

	if fields := p.Fields.All(); len(fields) > 0 {
		result += FormatFields(p.Category, fields)
	}
	return result
}

// FormatCategory returns the human-readable name for a category tag
func FormatCategory(category string) string {
	switch category {
	case CategoryTxRx:
		return "TXRX"
	case CategoryState:
		return "STATE"
	case CategoryEncoder:
		return "ENCODER"
	case CategoryBumper:
		return "BUMPER"
	case CategoryFSR:
		return "FSR"
	case CategoryGripper:
		return "GRIPPER"
	case CategoryLinear:
		return "LINEAR"
	case CategoryBattery:
		return "BATTERY"
	case CategoryTilter:
		return "TILTER"
	case CategoryReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

var fieldNames = map[string][]string{
	CategoryTxRx:    {"packet", "error"},
	CategoryState:   {"time_ms", "active", "battery_ok", "motors_active", "loop_rate"},
	CategoryEncoder: {"time_ms", "left_ticks", "right_ticks", "left_speed", "right_speed"},
	CategoryBumper:  {"time_ms", "bump1", "bump2"},
	CategoryFSR:     {"time_ms", "left", "right"},
	CategoryGripper: {"time_ms", "position"},
	CategoryLinear:  {"time_ms", "position", "has_error", "is_homed", "is_active"},
	CategoryBattery: {"time_ms", "current", "power", "voltage"},
	CategoryTilter:  {"time_ms", "position"},
	CategoryReady:   {"time_ms", "name"},
}

// FormatFields formats a packet's fields with their names, when known
func FormatFields(category string, fields []string) string {
	names := fieldNames[category]
	parts := make([]string, len(fields))
	for i, f := range fields {
		if i < len(names) {
			parts[i] = names[i] + "=" + f
		} else {
			parts[i] = fmt.Sprintf("[%d]=%s", i, f)
		}
	}
	result := "  " + strings.Join(parts, ", ") + "\n"

	switch category {
	case CategoryState, CategoryReady:
		if len(fields) > 0 {
			var ms uint64
			if _, err := fmt.Sscan(fields[0], &ms); err == nil {
				result += fmt.Sprintf("  Device uptime: %s\n", formatDuration(ms))
			}
		}
	case CategoryTxRx:
		if len(fields) > 1 && fields[1] != "0" {
			var code int
			if _, err := fmt.Sscan(fields[1], &code); err == nil {
				result += fmt.Sprintf("  Device error: %s\n", ErrorKind(code).Description())
			}
		}
	}
	return result
}

// FormatRecord formats a typed record on a single line
func FormatRecord(r Record) string {
	ts := r.Stamp().Format("15:04:05.000")
	switch v := r.(type) {
	case DriveRecord:
		return fmt.Sprintf("[%s] drive L=%d (%.1f t/s) R=%d (%.1f t/s)", ts, v.LeftTicks, v.LeftSpeed, v.RightTicks, v.RightSpeed)
	case BumperRecord:
		return fmt.Sprintf("[%s] bumper L=%t R=%t", ts, v.Left, v.Right)
	case FSRRecord:
		return fmt.Sprintf("[%s] fsr L=%d R=%d", ts, v.Left, v.Right)
	case GripperRecord:
		return fmt.Sprintf("[%s] gripper pos=%d", ts, v.Position)
	case LinearRecord:
		return fmt.Sprintf("[%s] linear pos=%d homed=%t active=%t error=%t", ts, v.Position, v.IsHomed, v.IsActive, v.HasError)
	case BatteryRecord:
		return fmt.Sprintf("[%s] battery %.2f V %.1f mA", ts, v.Voltage, v.Current)
	case TilterRecord:
		return fmt.Sprintf("[%s] tilter pos=%d", ts, v.Position)
	default:
		return fmt.Sprintf("[%s] %s %+v", ts, r.Category(), r)
	}
}

// FormatDecodeError formats a decode failure with the offending frame
func FormatDecodeError(err error) string {
	var de *DecodeError
	if !errors.As(err, &de) {
		return err.Error()
	}
	return fmt.Sprintf("E%d %s: %q", de.Code(), de.Error(), de.Frame)
}

// formatDuration converts milliseconds to human-readable duration
func formatDuration(ms uint64) string {
	seconds := ms / 1000
	if seconds == 0 {
		return fmt.Sprintf("%d ms", ms)
	}

	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	parts := []string{}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}
	return strings.Join(parts, ", ")
}

func plural(n uint64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
