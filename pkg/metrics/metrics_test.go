// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodobot/serialbridge/pkg/dodolink"
)

type staticSource struct {
	stats   *dodolink.Statistics
	session *dodolink.Session
}

func (s staticSource) Stats() *dodolink.Statistics { return s.stats }
func (s staticSource) Session() *dodolink.Session  { return s.session }

func newSource() staticSource {
	return staticSource{
		stats:   dodolink.NewStatistics(nil),
		session: dodolink.NewSession(nil),
	}
}

func TestCollector_Count(t *testing.T) {
	c := NewCollector(newSource())
	// 2 frame results, 5 decode kinds, 2 framing reasons, 2 record results,
	// 3 command results, and 10 unlabelled series
	assert.Equal(t, 24, testutil.CollectAndCount(c))
}

func TestCollector_Values(t *testing.T) {
	src := newSource()
	src.stats.Update(&dodolink.Packet{}, nil)
	src.stats.Update(&dodolink.Packet{Resynced: true}, nil)
	src.stats.Update(nil, &dodolink.DecodeError{Kind: dodolink.KindChecksumMismatch})
	src.stats.CommandDropped()

	c := NewCollector(src)
	expected := `
# HELP serialbridge_link_resyncs_total Sequence counter resynchronizations.
# TYPE serialbridge_link_resyncs_total counter
serialbridge_link_resyncs_total 1
# HELP serialbridge_link_frames_total Frames received from the device.
# TYPE serialbridge_link_frames_total counter
serialbridge_link_frames_total{result="rejected"} 1
serialbridge_link_frames_total{result="valid"} 2
# HELP serialbridge_device_ready Whether the ready handshake has completed.
# TYPE serialbridge_device_ready gauge
serialbridge_device_ready 0
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"serialbridge_link_resyncs_total", "serialbridge_link_frames_total", "serialbridge_device_ready")
	assert.NoError(t, err)
}

func TestCollector_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(newSource())))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
