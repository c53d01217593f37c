package transport

import (
	"bytes"
	"testing"
)

func TestLoopbackQueueAndRead(t *testing.T) {
	l := NewLoopback()
	l.QueueLines("first", "second")

	line, err := l.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line != "first" {
		t.Fatalf("got %q, want %q", line, "first")
	}

	line, _ = l.ReadLine()
	if line != "second" {
		t.Fatalf("got %q, want %q", line, "second")
	}

	// Drained queue behaves like a read timeout.
	line, err = l.ReadLine()
	if err != nil || line != "" {
		t.Fatalf("expected empty line on drained queue, got %q, %v", line, err)
	}
}

func TestLoopbackResponseFunc(t *testing.T) {
	l := NewLoopback()
	l.ResponseFunc = func(p []byte) []string {
		if bytes.Equal(p, []byte("ping")) {
			return []string{"pong"}
		}
		return nil
	}

	if err := l.Write([]byte("ping")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	line, _ := l.ReadLine()
	if line != "pong" {
		t.Fatalf("got %q, want %q", line, "pong")
	}
}

func TestLoopbackResetDiscardsPending(t *testing.T) {
	l := NewLoopback()
	l.QueueLines("stale")
	if err := l.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	line, _ := l.ReadLine()
	if line != "" {
		t.Fatalf("expected pending lines discarded, got %q", line)
	}
	if l.Resets() != 1 {
		t.Fatalf("expected 1 reset, got %d", l.Resets())
	}
}

func TestLoopbackClosed(t *testing.T) {
	l := NewLoopback()
	if err := l.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := l.Write([]byte("x")); err == nil {
		t.Fatal("expected write on closed loopback to fail")
	}
	if _, err := l.ReadLine(); err == nil {
		t.Fatal("expected read on closed loopback to fail")
	}
}

func TestTrimCR(t *testing.T) {
	if got := trimCR("done\r"); got != "done" {
		t.Fatalf("got %q", got)
	}
	if got := trimCR("done"); got != "done" {
		t.Fatalf("got %q", got)
	}
	if got := trimCR(""); got != "" {
		t.Fatalf("got %q", got)
	}
}
