// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/dodobot/serialbridge/pkg/config"
	"github.com/dodobot/serialbridge/pkg/dodolink"
)

// EnvPassword holds the WebSocket Basic auth password
const EnvPassword = "SERIALBRIDGE_PASSWORD"

var errWebSocketClosed = errors.New("websocket connection closed")

// Remembered across reconnects
var wsPassword string

// serialTransport wraps a serial port
type serialTransport struct {
	port serial.Port
}

func (s *serialTransport) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err == nil && n == 0 {
		// A zero read without error means the port went away
		return 0, errors.New("serial port returned no data")
	}
	return n, err
}

func (s *serialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *serialTransport) Close() error {
	return s.port.Close()
}

// wsTransport exposes a WebSocket bridge as a byte stream. Each message is
// a chunk of the serial stream.
type wsTransport struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *wsTransport) Read(p []byte) (int, error) {
	if w.closed {
		return 0, errWebSocketClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}

		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *wsTransport) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsTransport) Close() error {
	return w.conn.Close()
}

// openSerial opens a serial port at 8N1
func openSerial(name string, baud int) (dodolink.Transport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return &serialTransport{port: port}, nil
}

// openWebSocket dials a WebSocket serial bridge with optional HTTP Basic auth
func openWebSocket(rawURL, username, password string, skipSSLVerify bool) (dodolink.Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &wsTransport{conn: conn}, nil
}

// readPassword retrieves the password from the environment or prompts for it
func readPassword() (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// openTransport opens the serial port or WebSocket named by c. The second
// result describes the connection for banners.
func openTransport(c config.Config) (dodolink.Transport, string, error) {
	if err := c.RequireConnection(); err != nil {
		return nil, "", err
	}

	if c.URL != "" {
		if c.Username != "" && wsPassword == "" {
			var err error
			wsPassword, err = readPassword()
			if err != nil {
				return nil, "", err
			}
		}

		t, err := openWebSocket(c.URL, c.Username, wsPassword, c.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("WebSocket: %s", c.URL), nil
	}

	t, err := openSerial(c.SerialPort, c.SerialBaud)
	if err != nil {
		return nil, "", err
	}
	return t, fmt.Sprintf("Serial: %s @ %d baud", c.SerialPort, c.SerialBaud), nil
}

// connectionEnded reports whether err means the peer closed the connection
// rather than a fault.
func connectionEnded(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, errWebSocketClosed) || errors.Is(err, dodolink.ErrConnectionClosed) {
		return true
	}
	var ce *websocket.CloseError
	return errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway)
}
