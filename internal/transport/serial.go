package transport

import (
	"time"

	"go.bug.st/serial"

	"github.com/armtune/tuner-core/pkg/logger"
)

// SerialTransport talks to the controller board over a serial port.
// The board resets when the port is opened, so Reset reopens the port
// and then waits for the firmware to come back up before draining any
// residual bytes.
type SerialTransport struct {
	cfg  Config
	port serial.Port
	buf  []byte
	line []byte
}

// OpenSerial opens the configured serial port and performs an initial
// reset so the first experiment starts from a clean link.
func OpenSerial(cfg Config) (*SerialTransport, error) {
	t := &SerialTransport{
		cfg: cfg,
		buf: make([]byte, 1),
	}
	if err := t.Reset(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reset cycles the port. Closing and reopening toggles DTR, which
// reboots the board, so the settle interval must cover the firmware
// boot time.
func (t *SerialTransport) Reset() error {
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			logger.Warn("closing serial port before reset failed",
				"port", t.cfg.Port, "error", err)
		}
		t.port = nil
	}

	mode := &serial.Mode{BaudRate: t.cfg.BaudRate}
	port, err := serial.Open(t.cfg.Port, mode)
	if err != nil {
		return &ConnectionError{Port: t.cfg.Port, Op: "open", Err: err}
	}

	time.Sleep(t.cfg.SettleInterval)

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return &ConnectionError{Port: t.cfg.Port, Op: "drain", Err: err}
	}
	if err := port.SetReadTimeout(t.cfg.ReadTimeout); err != nil {
		port.Close()
		return &ConnectionError{Port: t.cfg.Port, Op: "set timeout", Err: err}
	}

	t.port = port
	t.line = t.line[:0]
	return nil
}

func (t *SerialTransport) Write(p []byte) error {
	for len(p) > 0 {
		n, err := t.port.Write(p)
		if err != nil {
			return &ConnectionError{Port: t.cfg.Port, Op: "write", Err: err}
		}
		p = p[n:]
	}
	return nil
}

// ReadLine reads bytes until a newline or the port read timeout. On
// timeout the partial line stays buffered for the next call and an
// empty string is returned, matching the polling loop in the
// experiment runner.
func (t *SerialTransport) ReadLine() (string, error) {
	for {
		n, err := t.port.Read(t.buf)
		if err != nil {
			return "", &ConnectionError{Port: t.cfg.Port, Op: "read", Err: err}
		}
		if n == 0 {
			// Read timeout expired.
			return "", nil
		}

		b := t.buf[0]
		if b == '\n' {
			line := string(t.line)
			t.line = t.line[:0]
			return trimCR(line), nil
		}
		t.line = append(t.line, b)
	}
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

func (t *SerialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return &ConnectionError{Port: t.cfg.Port, Op: "close", Err: err}
	}
	return nil
}
