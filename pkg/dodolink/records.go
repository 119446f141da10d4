// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import "time"

// Record is a typed telemetry record produced from a device frame
type Record interface {
	Category() string
	Stamp() time.Time
}

// DriveRecord carries wheel encoder readings
type DriveRecord struct {
	Time       time.Time `cbor:"time" json:"time"`
	LeftTicks  int64     `cbor:"left_enc_pos" json:"left_enc_pos"`
	RightTicks int64     `cbor:"right_enc_pos" json:"right_enc_pos"`
	LeftSpeed  float64   `cbor:"left_enc_speed" json:"left_enc_speed"`
	RightSpeed float64   `cbor:"right_enc_speed" json:"right_enc_speed"`
}

// Category returns the `enc` tag the record was decoded from
func (r DriveRecord) Category() string { return CategoryEncoder }

// Stamp returns the record's host time
func (r DriveRecord) Stamp() time.Time { return r.Time }

// BumperRecord carries bumper switch states
type BumperRecord struct {
	Time  time.Time `cbor:"time" json:"time"`
	Left  bool      `cbor:"left" json:"left"`
	Right bool      `cbor:"right" json:"right"`
}

// Category returns the `bump` tag the record was decoded from
func (r BumperRecord) Category() string { return CategoryBumper }

// Stamp returns the record's host time
func (r BumperRecord) Stamp() time.Time { return r.Time }

// FSRRecord carries the gripper force sensor readings
type FSRRecord struct {
	Time  time.Time `cbor:"time" json:"time"`
	Left  uint16    `cbor:"left" json:"left"`
	Right uint16    `cbor:"right" json:"right"`
}

// Category returns the `fsr` tag the record was decoded from
func (r FSRRecord) Category() string { return CategoryFSR }

// Stamp returns the record's host time
func (r FSRRecord) Stamp() time.Time { return r.Time }

// GripperRecord carries the gripper position
type GripperRecord struct {
	Time     time.Time `cbor:"time" json:"time"`
	Position int64     `cbor:"position" json:"position"`
}

// Category returns the `grip` tag the record was decoded from
func (r GripperRecord) Category() string { return CategoryGripper }

// Stamp returns the record's host time
func (r GripperRecord) Stamp() time.Time { return r.Time }

// LinearRecord carries the linear stepper state
type LinearRecord struct {
	Time     time.Time `cbor:"time" json:"time"`
	Position uint16    `cbor:"position" json:"position"`
	HasError bool      `cbor:"has_error" json:"has_error"`
	IsHomed  bool      `cbor:"is_homed" json:"is_homed"`
	IsActive bool      `cbor:"is_active" json:"is_active"`
}

// Category returns the `linear` tag the record was decoded from
func (r LinearRecord) Category() string { return CategoryLinear }

// Stamp returns the record's host time
func (r LinearRecord) Stamp() time.Time { return r.Time }

// BatteryRecord carries battery current and voltage. The device's power
// field is not carried.
type BatteryRecord struct {
	Time    time.Time `cbor:"time" json:"time"`
	Current float64   `cbor:"current" json:"current"`
	Voltage float64   `cbor:"voltage" json:"voltage"`
}

// Category returns the `batt` tag the record was decoded from
func (r BatteryRecord) Category() string { return CategoryBattery }

// Stamp returns the record's host time
func (r BatteryRecord) Stamp() time.Time { return r.Time }

// TilterRecord carries the camera tilter position
type TilterRecord struct {
	Time     time.Time `cbor:"time" json:"time"`
	Position int64     `cbor:"position" json:"position"`
}

// Category returns the `tilt` tag the record was decoded from
func (r TilterRecord) Category() string { return CategoryTilter }

// Stamp returns the record's host time
func (r TilterRecord) Stamp() time.Time { return r.Time }
