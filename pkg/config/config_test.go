// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "serialbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
serial_port = " /dev/ttyACM0 "
loop_rate = 60.0
drive_cmd_topic = "cmd_vel"

[mqtt]
broker = "tcp://localhost:1883"
qos = 1

[http]
addr = "127.0.0.1:8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.SerialPort)
	assert.Equal(t, DefaultBaud, cfg.SerialBaud)
	assert.Equal(t, 60.0, cfg.LoopRate)
	assert.Equal(t, "cmd_vel", cfg.DriveCmdTopic)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, DefaultTopicPrefix, cfg.MQTT.TopicPrefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitEmptyOverridesDefault(t *testing.T) {
	path := writeConfig(t, `
[mqtt]
topic_prefix = ""
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.MQTT.TopicPrefix)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "serial_port = "},
		{"unknown key", "serial_prot = \"/dev/ttyUSB0\""},
		{"qos range", "[mqtt]\nqos = 3"},
		{"wrong type", "serial_baud = \"fast\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.RequireConnection())

	cfg.SerialPort = "/dev/ttyACM0"
	assert.NoError(t, cfg.RequireConnection())

	cfg.URL = "ws://bridge.local/serial"
	cfg.LoopRate = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both serial_port and url")
	assert.Contains(t, err.Error(), "loop_rate")
}
