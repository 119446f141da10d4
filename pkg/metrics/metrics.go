// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

// Package metrics exports link statistics and session state to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dodobot/serialbridge/pkg/dodolink"
)

const namespace = "serialbridge"

// Source is what the collector reads from. *dodolink.Bridge satisfies it.
type Source interface {
	Stats() *dodolink.Statistics
	Session() *dodolink.Session
}

// Collector reads link statistics at scrape time
type Collector struct {
	src Source

	frames         *prometheus.Desc
	decodeErrors   *prometheus.Desc
	framingErrors  *prometheus.Desc
	resyncs        *prometheus.Desc
	records        *prometheus.Desc
	recordErrors   *prometheus.Desc
	unknown        *prometheus.Desc
	deviceErrors   *prometheus.Desc
	deviceMessages *prometheus.Desc
	commands       *prometheus.Desc
	readSeq        *prometheus.Desc
	writeSeq       *prometheus.Desc
	ready          *prometheus.Desc
	motorsReady    *prometheus.Desc
	loopRate       *prometheus.Desc
}

// NewCollector creates a collector over src
func NewCollector(src Source) *Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &Collector{
		src:            src,
		frames:         desc("link", "frames_total", "Frames received from the device.", "result"),
		decodeErrors:   desc("link", "decode_errors_total", "Frames rejected by the decoder.", "kind"),
		framingErrors:  desc("link", "framing_errors_total", "Frames discarded by the scanner.", "reason"),
		resyncs:        desc("link", "resyncs_total", "Sequence counter resynchronizations."),
		records:        desc("dispatch", "records_total", "Records handed to the publisher.", "result"),
		recordErrors:   desc("dispatch", "record_errors_total", "Frames whose fields failed to parse."),
		unknown:        desc("dispatch", "unknown_categories_total", "Frames with an unrecognized category."),
		deviceErrors:   desc("device", "errors_total", "Errors reported by the device for host frames."),
		deviceMessages: desc("device", "messages_total", "Lines of out-of-band device text."),
		commands:       desc("commands", "total", "Commands sent to the device.", "result"),
		readSeq:        desc("link", "read_sequence", "Expected sequence number of the next inbound frame."),
		writeSeq:       desc("link", "write_sequence", "Sequence number of the next outbound frame."),
		ready:          desc("device", "ready", "Whether the ready handshake has completed."),
		motorsReady:    desc("device", "motors_ready", "Whether motion commands are accepted."),
		loopRate:       desc("device", "loop_rate_hz", "Loop rate last reported by the device."),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.frames, c.decodeErrors, c.framingErrors, c.resyncs, c.records, c.recordErrors,
		c.unknown, c.deviceErrors, c.deviceMessages, c.commands, c.readSeq, c.writeSeq,
		c.ready, c.motorsReady, c.loopRate,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats().Snapshot()
	session := c.src.Session()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.frames, s.ValidPackets, "valid")
	counter(c.frames, s.DecodeErrors(), "rejected")
	counter(c.decodeErrors, s.TooShort, dodolink.KindTooShort.String())
	counter(c.decodeErrors, s.ChecksumErrors, dodolink.KindChecksumMismatch.String())
	counter(c.decodeErrors, s.MissingSequence, dodolink.KindMissingSequenceField.String())
	counter(c.decodeErrors, s.MissingCategory, dodolink.KindMissingCategoryField.String())
	counter(c.decodeErrors, s.InvalidFields, dodolink.KindInvalidField.String())
	counter(c.framingErrors, s.FramesTooLong, "too_long")
	counter(c.framingErrors, s.FramesIncomplete, "incomplete")
	counter(c.resyncs, s.Resyncs)
	counter(c.records, s.RecordsPublished-s.PublishErrors, "published")
	counter(c.records, s.PublishErrors, "failed")
	counter(c.recordErrors, s.RecordErrors)
	counter(c.unknown, s.UnknownCategories)
	counter(c.deviceErrors, s.DeviceErrors)
	counter(c.deviceMessages, s.DeviceMessages)
	counter(c.commands, s.CommandsSent-s.WriteErrors, "sent")
	counter(c.commands, s.WriteErrors, "failed")
	counter(c.commands, s.CommandsDropped, "dropped")

	gauge(c.readSeq, float64(session.ReadSeq()))
	gauge(c.writeSeq, float64(session.WriteSeq()))
	gauge(c.ready, boolValue(session.RobotReady()))
	gauge(c.motorsReady, boolValue(session.MotorsReady()))
	gauge(c.loopRate, session.Robot().LoopRate)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
