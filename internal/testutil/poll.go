// Package testutil provides small test-only helpers shared across
// internal/supervisor's test files.
package testutil

import (
	"testing"
	"time"
)

// PollUntil calls condition every 10ms until it returns true or 5 seconds
// elapse, in which case the test is failed with msg. Used throughout to
// await a Future's resolution without hard-coding a sleep duration.
func PollUntil(t *testing.T, msg string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
