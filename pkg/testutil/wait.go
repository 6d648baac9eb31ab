package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// WaitFor polls condition until it holds or timeout elapses.
// It returns an error if the condition does not become true within the timeout.
func WaitFor(t *testing.T, description string, timeout time.Duration, condition func() bool) error {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("condition '%s' not met within %v", description, timeout)
}

// WaitForWithContext polls condition until it holds or ctx is done.
func WaitForWithContext(ctx context.Context, t *testing.T, description string, condition func() bool) error {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled while waiting for condition '%s': %v", description, ctx.Err())
		case <-ticker.C:
		}
	}
}

// WaitClosed waits for done to be closed.
func WaitClosed(t *testing.T, description string, timeout time.Duration, done <-chan struct{}) error {
	t.Helper()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%s: not closed within %v", description, timeout)
	}
}

// Recv reads one value from ch or fails after timeout.
func Recv[T any](t *testing.T, ch <-chan T, timeout time.Duration) (T, error) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			var zero T
			return zero, fmt.Errorf("channel closed")
		}
		return v, nil
	case <-time.After(timeout):
		var zero T
		return zero, fmt.Errorf("nothing received within %v", timeout)
	}
}
