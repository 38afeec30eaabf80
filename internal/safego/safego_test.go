package safego

import (
	"testing"
	"time"
)

func waitOrFail(t *testing.T, done chan struct{}, msg string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error(msg)
	}
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})

	Go(func() {
		close(done)
	})

	waitOrFail(t, done, "background function never ran")
}

func TestGo_RecoversPanic(t *testing.T) {
	done := make(chan struct{})

	// The panic must be recovered, not crash the test binary.
	Go(func() {
		defer close(done)
		panic("deliberate test panic")
	})

	waitOrFail(t, done, "goroutine did not finish after panicking")
}

func TestGo_PanicDoesNotBlockLaterWork(t *testing.T) {
	first := make(chan struct{})
	Go(func() {
		defer close(first)
		panic("first")
	})
	waitOrFail(t, first, "panicking goroutine did not finish")

	second := make(chan struct{})
	Go(func() {
		close(second)
	})
	waitOrFail(t, second, "launcher stopped working after a recovered panic")
}
