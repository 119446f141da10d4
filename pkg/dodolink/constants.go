// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

// Package dodolink implements the Dodobot serial link protocol.
//
// Dodolink is a tab-delimited ASCII protocol spoken between the host and the
// Dodobot microcontroller. Each frame carries a per-direction sequence number,
// a category tag and category-specific fields, followed by a two digit hex
// checksum. This package provides frame scanning, packet decoding and encoding,
// the ready handshake, category dispatch into typed records and the command
// entry points used to drive the robot.
package dodolink

import "time"

// Protocol framing bytes
const (
	StartByte0 = 0x12
	StartByte1 = 0x34
	StopByte   = '\n'
	Separator  = '\t'
)

// Frame size limits
const (
	MinFrameSize = 5     // 1 seq digit + separator + 1 category char + 2 checksum digits
	MaxFrameSize = 0xfff // device receive buffer size
	checksumSize = 2
)

// Link timing
const (
	StartTimeout     = 50 * time.Millisecond
	FrameTimeout     = time.Second
	WriteDelay       = 500 * time.Microsecond
	HandshakeTimeout = 5 * time.Second
	HandshakeResend  = time.Second
	DefaultLoopRate  = 120.0 // Hz

	pollInterval = time.Millisecond
)

// Categories - Telemetry (Device → Host)
const (
	CategoryTxRx    = "txrx"
	CategoryState   = "state"
	CategoryEncoder = "enc"
	CategoryBumper  = "bump"
	CategoryFSR     = "fsr"
	CategoryGripper = "grip"
	CategoryLinear  = "linear"
	CategoryBattery = "batt"
	CategoryTilter  = "tilt"
	CategoryReady   = "ready"
)

// Categories - Commands (Host → Device)
const (
	CmdHandshake = "?"
	CmdActive    = "<>"
	CmdReporting = "[]"
	CmdDrive     = "drive"
	CmdGripper   = "grip"
	CmdTilter    = "tilter"
	CmdLinear    = "linear"
	CmdGains     = "ks"
)

// HandshakeName is the identity string sent with the handshake request.
const HandshakeName = "dodobot"

// Active command values
const (
	activeOff     = 0
	activeOn      = 1
	activeRestart = 2
)
