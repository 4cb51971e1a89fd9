package stest

import (
	"testing"
	"time"
)

// ScaleDuration is how long the channel helpers wait
// for something that should happen promptly.
const ScaleDuration = 100 * time.Millisecond

// ReceiveSoon returns the next value from ch,
// failing the test if none arrives within ScaleDuration.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(ScaleDuration):
		t.Fatalf("no value received within %s", ScaleDuration)
	}
	panic("unreachable")
}

// IsSending fails the test if ch is not immediately readable,
// whether from a pending value or from being closed.
func IsSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	select {
	case <-ch:
	default:
		t.Fatal("channel was not ready")
	}
}

// NotSending fails the test if ch becomes readable within a short window.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	select {
	case <-ch:
		t.Fatal("channel was unexpectedly ready")
	case <-time.After(ScaleDuration / 10):
	}
}
