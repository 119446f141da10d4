// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

// Package config loads serialbridge settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Defaults
const (
	DefaultBaud          = 115200
	DefaultDriveCmdTopic = "drive_cmd"
	DefaultLoopRate      = 120.0
	DefaultTopicPrefix   = "dodobot/"
	DefaultLogLevel      = "info"
)

// MQTTConfig configures the publish bus. An empty broker disables it.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	QoS         byte
}

// HTTPConfig configures the status API. An empty address disables it.
type HTTPConfig struct {
	Addr string
}

// Config is the full bridge configuration
type Config struct {
	SerialPort    string
	SerialBaud    int
	URL           string
	Username      string
	NoSSLVerify   bool
	DriveCmdTopic string
	LoopRate      float64
	LogLevel      string

	MQTT MQTTConfig
	HTTP HTTPConfig
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		SerialBaud:    DefaultBaud,
		DriveCmdTopic: DefaultDriveCmdTopic,
		LoopRate:      DefaultLoopRate,
		LogLevel:      DefaultLogLevel,
		MQTT: MQTTConfig{
			TopicPrefix: DefaultTopicPrefix,
		},
	}
}

type fileConfig struct {
	SerialPort    string  `toml:"serial_port"`
	SerialBaud    int     `toml:"serial_baud"`
	URL           string  `toml:"url"`
	Username      string  `toml:"username"`
	NoSSLVerify   bool    `toml:"no_ssl_verify"`
	DriveCmdTopic string  `toml:"drive_cmd_topic"`
	LoopRate      float64 `toml:"loop_rate"`
	LogLevel      string  `toml:"log_level"`

	MQTT struct {
		Broker      string `toml:"broker"`
		TopicPrefix string `toml:"topic_prefix"`
		ClientID    string `toml:"client_id"`
		QoS         int    `toml:"qos"`
	} `toml:"mqtt"`

	HTTP struct {
		Addr string `toml:"addr"`
	} `toml:"http"`
}

// Load reads path over the defaults. Only keys present in the file override
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := Apply(&cfg, path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Apply reads path over cfg
func Apply(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("serial_port") {
		cfg.SerialPort = strings.TrimSpace(raw.SerialPort)
	}
	if meta.IsDefined("serial_baud") {
		cfg.SerialBaud = raw.SerialBaud
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("no_ssl_verify") {
		cfg.NoSSLVerify = raw.NoSSLVerify
	}
	if meta.IsDefined("drive_cmd_topic") {
		cfg.DriveCmdTopic = strings.TrimSpace(raw.DriveCmdTopic)
	}
	if meta.IsDefined("loop_rate") {
		cfg.LoopRate = raw.LoopRate
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("mqtt", "broker") {
		cfg.MQTT.Broker = strings.TrimSpace(raw.MQTT.Broker)
	}
	if meta.IsDefined("mqtt", "topic_prefix") {
		cfg.MQTT.TopicPrefix = raw.MQTT.TopicPrefix
	}
	if meta.IsDefined("mqtt", "client_id") {
		cfg.MQTT.ClientID = strings.TrimSpace(raw.MQTT.ClientID)
	}
	if meta.IsDefined("mqtt", "qos") {
		if raw.MQTT.QoS < 0 || raw.MQTT.QoS > 2 {
			return fmt.Errorf("parse mqtt.qos: %d out of range", raw.MQTT.QoS)
		}
		cfg.MQTT.QoS = byte(raw.MQTT.QoS)
	}

	if meta.IsDefined("http", "addr") {
		cfg.HTTP.Addr = strings.TrimSpace(raw.HTTP.Addr)
	}
	return nil
}

// Validate checks the configuration for conflicting or out of range values
func (c Config) Validate() error {
	var errs []error
	if c.SerialPort != "" && c.URL != "" {
		errs = append(errs, errors.New("cannot specify both serial_port and url"))
	}
	if c.SerialBaud <= 0 {
		errs = append(errs, fmt.Errorf("serial_baud must be positive, got %d", c.SerialBaud))
	}
	if c.LoopRate <= 0 {
		errs = append(errs, fmt.Errorf("loop_rate must be positive, got %g", c.LoopRate))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.DriveCmdTopic == "" {
		errs = append(errs, errors.New("drive_cmd_topic must not be empty"))
	}
	return errors.Join(errs...)
}

// RequireConnection checks that a device connection is configured
func (c Config) RequireConnection() error {
	if c.SerialPort == "" && c.URL == "" {
		return errors.New("must specify either --port or --url")
	}
	return nil
}
