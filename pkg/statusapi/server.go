// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

// Package statusapi serves bridge health, link status and Prometheus metrics
// over HTTP.
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dodobot/serialbridge/pkg/dodolink"
	"github.com/dodobot/serialbridge/pkg/metrics"
)

// Source is the bridge state the API reports on
type Source interface {
	metrics.Source
	HandshakeState() dodolink.HandshakeState
}

// Status is the /status response body
type Status struct {
	Handshake string              `json:"handshake"`
	Ready     dodolink.ReadyState `json:"ready"`
	Robot     dodolink.RobotState `json:"robot"`
	ReadSeq   uint64              `json:"read_seq"`
	WriteSeq  uint64              `json:"write_seq"`
	Stats     StatsBody           `json:"stats"`
}

// StatsBody is the statistics part of Status
type StatsBody struct {
	TotalFrames     uint64  `json:"total_frames"`
	ValidPackets    uint64  `json:"valid_packets"`
	DecodeErrors    uint64  `json:"decode_errors"`
	ChecksumErrors  uint64  `json:"checksum_errors"`
	Resyncs         uint64  `json:"resyncs"`
	Records         uint64  `json:"records_published"`
	DeviceErrors    uint64  `json:"device_errors"`
	CommandsSent    uint64  `json:"commands_sent"`
	CommandsDropped uint64  `json:"commands_dropped"`
	PacketRate      float64 `json:"packet_rate"`
	ErrorRate       float64 `json:"error_rate"`
}

// Server is the status HTTP API
type Server struct {
	src     Source
	router  *gin.Engine
	started time.Time
	log     zerolog.Logger
}

// New creates the API and registers the link collector with a private
// registry.
func New(src Source, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(src))

	s := &Server{src: src, router: r, started: time.Now(), log: log}
	s.registerRoutes(reg)
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes(reg *prometheus.Registry) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		state := s.src.HandshakeState()
		status := http.StatusOK
		if state != dodolink.HandshakeReady {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":     state == dodolink.HandshakeReady,
			"handshake": state.String(),
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.status())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

func (s *Server) status() Status {
	session := s.src.Session()
	snap := s.src.Stats().Snapshot()
	return Status{
		Handshake: s.src.HandshakeState().String(),
		Ready:     session.Ready(),
		Robot:     session.Robot(),
		ReadSeq:   session.ReadSeq(),
		WriteSeq:  session.WriteSeq(),
		Stats: StatsBody{
			TotalFrames:     snap.TotalFrames,
			ValidPackets:    snap.ValidPackets,
			DecodeErrors:    snap.DecodeErrors(),
			ChecksumErrors:  snap.ChecksumErrors,
			Resyncs:         snap.Resyncs,
			Records:         snap.RecordsPublished,
			DeviceErrors:    snap.DeviceErrors,
			CommandsSent:    snap.CommandsSent,
			CommandsDropped: snap.CommandsDropped,
			PacketRate:      snap.PacketRate,
			ErrorRate:       snap.ErrorRate,
		},
	}
}

// Serve listens on addr until ctx is cancelled
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("status api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}
