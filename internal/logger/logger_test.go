package logger

import "testing"

func TestDefaultLoggerIsUsableBeforeInit(t *testing.T) {
	// A session test suite never calls Init explicitly; this must not panic.
	Info("smoke test", "k", "v")
}

func TestRunIDIsStableWithinProcess(t *testing.T) {
	if RunID == "" {
		t.Fatal("expected a non-empty run id")
	}
	if RunID != RunID {
		t.Fatal("run id must be stable")
	}
}

func TestErrorEnvelopeThrottledDropsBurst(t *testing.T) {
	// Drain the burst allowance (5 tokens, refilled at 1/s), then confirm
	// the limiter has nothing left for a call in the same instant.
	for i := 0; i < 10; i++ {
		ErrorEnvelopeThrottled("burst", "i", i)
	}
	if errorEnvelopeLimiter.Allow() {
		t.Fatal("expected the limiter to be exhausted after a burst of 10")
	}
}
