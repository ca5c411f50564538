package cli

import (
	"context"
	"testing"
	"time"
)

func TestSpinnerStartStop(t *testing.T) {
	s := newSpinner(context.Background(), "resolving...")
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	s := newSpinner(context.Background(), "fetching...")
	s.Start()
	s.Stop()
	s.Stop()
}

func TestSpinnerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinner(ctx, "working...")
	s.Start()

	cancel()
	time.Sleep(100 * time.Millisecond)

	// Stop after cancellation must not hang.
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop hung after context cancellation")
	}
}

func TestSpinnerStopWithError(t *testing.T) {
	s := newSpinner(context.Background(), "resolving...")
	s.Start()
	s.StopWithError("registry unreachable")
	s.Stop() // idempotent after a terminal stop

	// The nil spinner from verbose mode must also take the error path.
	var none *Spinner
	none.StopWithError("still printed")
}

func TestStartSpinnerVerbose(t *testing.T) {
	// Verbose mode suppresses the spinner; the nil handle must still be safe
	// to stop.
	s := startSpinner(context.Background(), true, "resolving...")
	if s != nil {
		t.Fatal("expected no spinner in verbose mode")
	}
	s.Stop()
	s.SetMessage("ignored")
}

func TestSpinnerSetMessage(t *testing.T) {
	s := newSpinner(context.Background(), "a very long initial message")
	s.Start()
	s.SetMessage("short")
	time.Sleep(100 * time.Millisecond)
	s.Stop()
}
