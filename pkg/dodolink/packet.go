// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"fmt"
	"strconv"
	"time"
)

// Packet represents a decoded Dodolink frame
type Packet struct {
	Seq         uint64
	Category    string
	Fields      *Segments
	Raw         []byte
	Timestamp   time.Time
	Resynced    bool   // sequence number did not match the local read counter
	ExpectedSeq uint64 // local read counter before resynchronization
}

// Segments is a cursor over a frame's category-specific fields. Each field is
// consumed once, in order; reading past the end fails with ErrMissingField.
type Segments struct {
	fields []string
	pos    int
}

// NewSegments creates a cursor over the given fields
func NewSegments(fields []string) *Segments {
	return &Segments{fields: fields}
}

// Remaining returns the number of unread fields
func (s *Segments) Remaining() int {
	return len(s.fields) - s.pos
}

// Position returns the index of the next field
func (s *Segments) Position() int {
	return s.pos
}

// All returns every field regardless of cursor position
func (s *Segments) All() []string {
	return s.fields
}

// Next returns the next raw field
func (s *Segments) Next() (string, error) {
	if s.pos >= len(s.fields) {
		return "", ErrMissingField
	}
	f := s.fields[s.pos]
	s.pos++
	return f, nil
}

// Skip consumes a field without interpreting it
func (s *Segments) Skip() error {
	_, err := s.Next()
	return err
}

// Int parses the next field as a signed decimal integer
func (s *Segments) Int() (int64, error) {
	f, err := s.Next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(f, 10, 64)
	if err != nil {
		return 0, s.invalid(f, "integer")
	}
	return v, nil
}

// Uint32 parses the next field as an unsigned 32-bit decimal integer
func (s *Segments) Uint32() (uint32, error) {
	f, err := s.Next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(f, 10, 32)
	if err != nil {
		return 0, s.invalid(f, "uint32")
	}
	return uint32(v), nil
}

// Uint16 parses the next field as an unsigned 16-bit decimal integer
func (s *Segments) Uint16() (uint16, error) {
	f, err := s.Next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(f, 10, 16)
	if err != nil {
		return 0, s.invalid(f, "uint16")
	}
	return uint16(v), nil
}

// Float parses the next field as a decimal float
func (s *Segments) Float() (float64, error) {
	f, err := s.Next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(f, 64)
	if err != nil {
		return 0, s.invalid(f, "float")
	}
	return v, nil
}

// Bool parses the next field as an integer flag; any nonzero value is true
func (s *Segments) Bool() (bool, error) {
	v, err := s.Int()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (s *Segments) invalid(field, want string) error {
	return &DecodeError{
		Kind:   KindInvalidField,
		Detail: fmt.Sprintf("field %d %q is not a valid %s", s.pos-1, field, want),
	}
}
