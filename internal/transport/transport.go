// Package transport provides the byte-stream link to the controller
// board. The production implementation drives a serial port; tests use
// an in-memory loopback.
package transport

import (
	"fmt"
	"time"
)

// Transport is a line-oriented, resettable byte link. Implementations
// are not safe for concurrent use; the experiment runner owns the
// transport exclusively for the lifetime of a session.
type Transport interface {
	// Reset returns the link to a clean state: pending input is
	// discarded and the device is given time to settle.
	Reset() error

	// Write sends raw bytes to the device.
	Write(p []byte) error

	// ReadLine reads one newline-terminated line, without the
	// terminator. It returns an empty string when the read times out
	// before any terminator arrives.
	ReadLine() (string, error)

	// Close releases the underlying resource.
	Close() error
}

// Config carries the connection parameters for a serial transport.
type Config struct {
	Port           string
	BaudRate       int
	ReadTimeout    time.Duration
	SettleInterval time.Duration
}

// ConnectionError reports a failure to open or reset the link.
type ConnectionError struct {
	Port string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport %s on %s: %v", e.Op, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
