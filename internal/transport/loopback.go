package transport

import (
	"errors"
	"sync"
)

// Loopback is an in-memory Transport used in tests. Scripted response
// lines are returned one per ReadLine call; writes are recorded for
// inspection. A ResponseFunc, when set, maps each write to the lines
// queued in reply, which lets tests model the firmware handshake.
type Loopback struct {
	mu sync.Mutex

	// ResponseFunc is invoked for every Write with the written bytes
	// and returns the lines the device would send back.
	ResponseFunc func(p []byte) []string

	pending []string
	writes  [][]byte
	resets  int
	closed  bool
}

// NewLoopback creates an idle loopback with no scripted responses.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// QueueLines appends lines to be returned by subsequent ReadLine calls.
func (l *Loopback) QueueLines(lines ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, lines...)
}

// Writes returns a copy of everything written so far.
func (l *Loopback) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.writes))
	for i, w := range l.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Resets returns how many times Reset was called.
func (l *Loopback) Resets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resets
}

func (l *Loopback) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("loopback closed")
	}
	l.resets++
	l.pending = nil
	return nil
}

func (l *Loopback) Write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("loopback closed")
	}
	l.writes = append(l.writes, append([]byte(nil), p...))
	if l.ResponseFunc != nil {
		l.pending = append(l.pending, l.ResponseFunc(p)...)
	}
	return nil
}

func (l *Loopback) ReadLine() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return "", errors.New("loopback closed")
	}
	if len(l.pending) == 0 {
		// Mirrors a serial read timeout.
		return "", nil
	}
	line := l.pending[0]
	l.pending = l.pending[1:]
	return line, nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
