// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package dodolink

import (
	"errors"
	"io"
	"sync"
)

// Transport is a blocking, bidirectional byte stream to the device. Serial
// ports and the WebSocket serial bridge both satisfy it.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// ByteSource is the non-blocking read side used by the scanner.
type ByteSource interface {
	// Available returns the number of buffered bytes
	Available() int
	// ReadByte returns the next buffered byte, or ErrNoData
	ReadByte() (byte, error)
	// Err returns the error that stopped the source, if any
	Err() error
}

// Port is a ByteSource that can also be written to and closed.
type Port interface {
	ByteSource
	io.Writer
	io.Closer
}

// Link adapts a blocking Transport into a Port. A single pump goroutine
// copies inbound bytes into a buffer; all other access happens on the
// caller's goroutine.
type Link struct {
	transport Transport

	mu   sync.Mutex
	buf  []byte
	head int
	err  error

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewLink starts pumping bytes from the transport
func NewLink(t Transport) *Link {
	l := &Link{
		transport: t,
		done:      make(chan struct{}),
	}
	go l.pump()
	return l
}

func (l *Link) pump() {
	chunk := make([]byte, 256)
	for {
		n, err := l.transport.Read(chunk)
		l.mu.Lock()
		if n > 0 {
			l.buf = append(l.buf, chunk[:n]...)
		}
		if err != nil {
			select {
			case <-l.done:
				l.err = ErrConnectionClosed
			default:
				l.err = &TransportError{Op: "read", Err: err}
			}
		}
		l.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// Available returns the number of buffered bytes
func (l *Link) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf) - l.head
}

// ReadByte returns the next buffered byte
func (l *Link) ReadByte() (byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.head >= len(l.buf) {
		if l.err != nil {
			return 0, l.err
		}
		return 0, ErrNoData
	}
	b := l.buf[l.head]
	l.head++
	if l.head == len(l.buf) {
		l.buf = l.buf[:0]
		l.head = 0
	}
	return b, nil
}

// Err returns the error that stopped the pump
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Write sends bytes to the device
func (l *Link) Write(p []byte) (int, error) {
	select {
	case <-l.done:
		return 0, ErrConnectionClosed
	default:
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	n, err := l.transport.Write(p)
	if err != nil {
		return n, &TransportError{Op: "write", Err: err}
	}
	return n, nil
}

// Close stops the link and closes the transport
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.transport.Close()
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}
