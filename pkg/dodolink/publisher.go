// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import "errors"

// Publisher receives typed records from the dispatcher
type Publisher interface {
	Publish(r Record) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(r Record) error

// Publish calls f(r)
func (f PublisherFunc) Publish(r Record) error {
	return f(r)
}

// MultiPublisher fans a record out to several publishers. Every publisher is
// called; their errors are joined.
type MultiPublisher []Publisher

// Publish implements Publisher
func (m MultiPublisher) Publish(r Record) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Record) error { return nil }
