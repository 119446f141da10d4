// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

// Package mqttbus publishes Dodobot telemetry records to MQTT and feeds
// command topics back into a bridge.
package mqttbus

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/dodobot/serialbridge/pkg/dodolink"
)

// ErrNotConnected is returned when publishing while the broker is unreachable
var ErrNotConnected = errors.New("mqtt not connected")

// Record topics, relative to the topic prefix
var recordTopics = map[string]string{
	dodolink.CategoryEncoder: "drive",
	dodolink.CategoryBumper:  "bumper",
	dodolink.CategoryFSR:     "fsr",
	dodolink.CategoryGripper: "gripper",
	dodolink.CategoryLinear:  "linear",
	dodolink.CategoryBattery: "battery",
	dodolink.CategoryTilter:  "tilter",
}

// RecordTopic returns the topic a record category is published on
func RecordTopic(category string) (string, bool) {
	t, ok := recordTopics[category]
	return t, ok
}

// Handler is the callback when a message is received.
type Handler func(topic string, payload []byte)

// Options configures a Bus
type Options struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	QoS         byte
	Logger      zerolog.Logger
}

// Bus wraps an MQTT client with a topic prefix and CBOR payloads.
type Bus struct {
	Client      paho.Client
	TopicPrefix string
	QoS         byte

	log zerolog.Logger
	enc cbor.EncMode

	subsLock sync.RWMutex
	subs     map[string]Handler
}

// ClientOptionsFromURL creates ClientOptions from URL. The URL path, if any,
// is returned as the topic prefix.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	if u.Host == "" {
		return nil, "", fmt.Errorf("broker url %q has no host", serverURL)
	}
	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	topicPrefix := strings.TrimPrefix(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}

	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}

	return opts, topicPrefix, nil
}

// New creates a Bus. It does not connect.
func New(o Options) (*Bus, error) {
	opts, urlPrefix, err := ClientOptionsFromURL(o.Broker)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker: %w", err)
	}
	if o.ClientID != "" {
		opts.SetClientID(o.ClientID)
	} else if opts.ClientID == "" {
		opts.SetClientID(DefaultClientID())
	}

	prefix := o.TopicPrefix
	if prefix == "" {
		prefix = urlPrefix
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano, TimeTag: cbor.EncTagRequired}.EncMode()
	if err != nil {
		return nil, err
	}

	b := &Bus{
		TopicPrefix: prefix,
		QoS:         o.QoS,
		log:         o.Logger,
		enc:         enc,
		subs:        make(map[string]Handler),
	}
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	b.Client = paho.NewClient(opts)
	return b, nil
}

// Connect connects to the broker, giving up when ctx is done
func (b *Bus) Connect(ctx context.Context) error {
	token := b.Client.Connect()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker
func (b *Bus) Close() error {
	b.Client.Disconnect(250)
	return nil
}

// Publish encodes a record as CBOR and publishes it on its topic. It does not
// wait for delivery.
func (b *Bus) Publish(r dodolink.Record) error {
	topic, ok := RecordTopic(r.Category())
	if !ok {
		return fmt.Errorf("no topic for category %q", r.Category())
	}
	payload, err := b.Encode(r)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.Category(), err)
	}
	if !b.Client.IsConnectionOpen() {
		return ErrNotConnected
	}
	b.Client.Publish(b.TopicPrefix+topic, b.QoS, false, payload)
	return nil
}

// Encode returns the CBOR payload for a value
func (b *Bus) Encode(v any) ([]byte, error) {
	return b.enc.Marshal(v)
}

// Sub subscribes a topic relative to the prefix
func (b *Bus) Sub(topic string, handler Handler) paho.Token {
	b.subsLock.Lock()
	b.subs[topic] = handler
	b.subsLock.Unlock()

	b.log.Debug().Str("topic", b.TopicPrefix+topic).Msg("SUB")
	return b.Client.Subscribe(b.TopicPrefix+topic, b.QoS, b.dispatch)
}

// Resubscribe subscribes all known topics again after a reconnect
func (b *Bus) Resubscribe() paho.Token {
	filters := make(map[string]byte)
	b.subsLock.RLock()
	for topic := range b.subs {
		filters[b.TopicPrefix+topic] = b.QoS
	}
	b.subsLock.RUnlock()
	if len(filters) > 0 {
		return b.Client.SubscribeMultiple(filters, b.dispatch)
	}
	return &paho.DummyToken{}
}

func (b *Bus) onConnect(paho.Client) {
	b.log.Info().Msg("mqtt connected")
	b.Resubscribe()
}

func (b *Bus) onConnectionLost(_ paho.Client, err error) {
	b.log.Warn().Err(err).Msg("mqtt connection lost")
}

func (b *Bus) dispatch(_ paho.Client, msg paho.Message) {
	b.deliver(msg.Topic(), msg.Payload())
}

func (b *Bus) deliver(topic string, payload []byte) {
	if !strings.HasPrefix(topic, b.TopicPrefix) {
		return
	}
	topic = topic[len(b.TopicPrefix):]
	b.subsLock.RLock()
	h := b.subs[topic]
	b.subsLock.RUnlock()
	if h != nil {
		h(topic, payload)
	}
}
