package goroutine

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoLeaks records the goroutine count and, at test cleanup, fails the
// test if the count has not returned to that baseline within five seconds.
// Call it first thing in tests that start workers or transports.
func AssertNoLeaks(t testing.TB) {
	t.Helper()
	before := runtime.NumGoroutine()

	t.Cleanup(func() {
		if WaitForCount(before, 5*time.Second) {
			return
		}
		current := runtime.NumGoroutine()
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		t.Errorf("goroutine leak detected: started with %d goroutines, ended with %d", before, current)
		t.Logf("Active goroutines:\n%s", string(buf[:n]))
	})
}

// WaitForCount polls until at most target goroutines are running.
func WaitForCount(target int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= target {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return runtime.NumGoroutine() <= target
}
