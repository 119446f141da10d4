// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"time"

	"github.com/rs/zerolog"
)

type parseFunc func(d *Dispatcher, p *Packet) error

// Dispatcher routes decoded packets to their category parser. Telemetry
// categories become typed records handed to the Publisher; txrx, state and
// ready update the session.
type Dispatcher struct {
	session   *Session
	publisher Publisher
	stats     *Statistics
	log       zerolog.Logger
	battLog   zerolog.Logger

	// OnDeviceError, if set, observes errors the device reports via txrx
	OnDeviceError func(e *DeviceError)

	parsers map[string]parseFunc
}

// NewDispatcher creates a dispatcher. A nil publisher discards records and a
// nil stats skips counting.
func NewDispatcher(session *Session, publisher Publisher, stats *Statistics, log zerolog.Logger) *Dispatcher {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Dispatcher{
		session:   session,
		publisher: publisher,
		stats:     stats,
		log:       log,
		battLog:   log.Sample(&zerolog.BurstSampler{Burst: 1, Period: 3 * time.Second}),
		parsers: map[string]parseFunc{
			CategoryTxRx:    (*Dispatcher).parseTxRx,
			CategoryState:   (*Dispatcher).parseState,
			CategoryEncoder: (*Dispatcher).parseEncoder,
			CategoryBumper:  (*Dispatcher).parseBumper,
			CategoryFSR:     (*Dispatcher).parseFSR,
			CategoryGripper: (*Dispatcher).parseGripper,
			CategoryLinear:  (*Dispatcher).parseLinear,
			CategoryBattery: (*Dispatcher).parseBattery,
			CategoryTilter:  (*Dispatcher).parseTilter,
			CategoryReady:   (*Dispatcher).parseReady,
		},
	}
}

// Known reports whether a category has a parser
func (d *Dispatcher) Known(category string) bool {
	_, ok := d.parsers[category]
	return ok
}

// Dispatch parses a packet's fields. Unknown categories are ignored. A parse
// failure aborts only this record.
func (d *Dispatcher) Dispatch(p *Packet) error {
	parse, ok := d.parsers[p.Category]
	if !ok {
		d.log.Debug().Str("category", p.Category).Uint64("seq", p.Seq).Msg("ignoring unknown category")
		if d.stats != nil {
			d.stats.UnknownCategory()
		}
		return nil
	}
	if err := parse(d, p); err != nil {
		d.log.Error().Err(err).
			Str("category", p.Category).
			Uint64("seq", p.Seq).
			Int("field", p.Fields.Position()).
			Msg("failed to parse packet")
		if d.stats != nil {
			d.stats.RecordError()
		}
		return err
	}
	return nil
}

func (d *Dispatcher) publish(r Record) error {
	err := d.publisher.Publish(r)
	if err != nil {
		d.log.Warn().Err(err).Str("category", r.Category()).Msg("failed to publish record")
	}
	if d.stats != nil {
		d.stats.RecordPublished(err)
	}
	return nil
}

func (d *Dispatcher) stamp(f *Segments) (time.Time, error) {
	ms, err := f.Uint32()
	if err != nil {
		return time.Time{}, err
	}
	return d.session.DeviceTime(ms), nil
}

func (d *Dispatcher) parseTxRx(p *Packet) error {
	f := p.Fields
	num, err := f.Int()
	if err != nil {
		return err
	}
	code, err := f.Int()
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}

	de := &DeviceError{PacketNum: uint64(num), Kind: ErrorKind(code)}
	d.log.Warn().
		Int64("packet", num).
		Int64("code", code).
		Msg(de.Error())
	if d.stats != nil {
		d.stats.DeviceError()
	}
	if d.OnDeviceError != nil {
		d.OnDeviceError(de)
	}
	return nil
}

func (d *Dispatcher) parseState(p *Packet) error {
	var (
		s   RobotState
		err error
		f   = p.Fields
	)
	if s.TimeMs, err = f.Uint32(); err != nil {
		return err
	}
	if s.IsActive, err = f.Bool(); err != nil {
		return err
	}
	if s.BatteryOK, err = f.Bool(); err != nil {
		return err
	}
	if s.MotorsActive, err = f.Bool(); err != nil {
		return err
	}
	if s.LoopRate, err = f.Float(); err != nil {
		return err
	}
	d.session.setRobotState(s)
	return nil
}

func (d *Dispatcher) parseEncoder(p *Packet) error {
	var (
		r   DriveRecord
		err error
		f   = p.Fields
	)
	if r.Time, err = d.stamp(f); err != nil {
		return err
	}
	if r.LeftTicks, err = f.Int(); err != nil {
		return err
	}
	if r.RightTicks, err = f.Int(); err != nil {
		return err
	}
	if r.LeftSpeed, err = f.Float(); err != nil {
		return err
	}
	if r.RightSpeed, err = f.Float(); err != nil {
		return err
	}
	return d.publish(r)
}

func (d *Dispatcher) parseBumper(p *Packet) error {
	var (
		r   BumperRecord
		err error
		f   = p.Fields
	)
	if r.Time, err = d.stamp(f); err != nil {
		return err
	}
	if r.Left, err = f.Bool(); err != nil {
		return err
	}
	if r.Right, err = f.Bool(); err != nil {
		return err
	}
	return d.publish(r)
}

func (d *Dispatcher) parseFSR(p *Packet) error {
	var (
		r   FSRRecord
		err error
		f   = p.Fields
	)
	if r.Time, err = d.stamp(f); err != nil {
		return err
	}
	if r.Left, err = f.Uint16(); err != nil {
		return err
	}
	if r.Right, err = f.Uint16(); err != nil {
		return err
	}
	return d.publish(r)
}

func (d *Dispatcher) parseGripper(p *Packet) error {
	var (
		r   GripperRecord
		err error
		f   = p.Fields
	)
	if r.Time, err = d.stamp(f); err != nil {
		return err
	}
	if r.Position, err = f.Int(); err != nil {
		return err
	}
	return d.publish(r)
}

func (d *Dispatcher) parseLinear(p *Packet) error {
	var (
		r   LinearRecord
		err error
		f   = p.Fields
	)
	if r.Time, err = d.stamp(f); err != nil {
		return err
	}
	if r.Position, err = f.Uint16(); err != nil {
		return err
	}
	if r.HasError, err = f.Bool(); err != nil {
		return err
	}
	if r.IsHomed, err = f.Bool(); err != nil {
		return err
	}
	if r.IsActive, err = f.Bool(); err != nil {
		return err
	}
	return d.publish(r)
}

func (d *Dispatcher) parseBattery(p *Packet) error {
	var (
		r   BatteryRecord
		err error
		f   = p.Fields
	)
	if r.Time, err = d.stamp(f); err != nil {
		return err
	}
	if r.Current, err = f.Float(); err != nil {
		return err
	}
	// power
	if err = f.Skip(); err != nil {
		return err
	}
	if r.Voltage, err = f.Float(); err != nil {
		return err
	}
	d.battLog.Info().Float64("voltage", r.Voltage).Float64("current_ma", r.Current).Msg("battery")
	return d.publish(r)
}

func (d *Dispatcher) parseTilter(p *Packet) error {
	var (
		r   TilterRecord
		err error
		f   = p.Fields
	)
	if r.Time, err = d.stamp(f); err != nil {
		return err
	}
	if r.Position, err = f.Int(); err != nil {
		return err
	}
	return d.publish(r)
}

func (d *Dispatcher) parseReady(p *Packet) error {
	f := p.Fields
	ms, err := f.Uint32()
	if err != nil {
		return err
	}
	name, err := f.Next()
	if err != nil {
		return err
	}
	if !d.session.markReady(name, ms) {
		d.log.Warn().Str("robot", name).Uint32("time_ms", ms).Msg("ignoring repeated ready signal")
		return nil
	}
	d.log.Info().Str("robot", name).Uint32("time_ms", ms).Msg("received ready signal")
	return nil
}
