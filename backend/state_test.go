package backend

import "testing"

func TestTrackerEverReady(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	if tr.EverReady() {
		t.Fatal("fresh tracker must not report ever-ready")
	}

	tr.Set(StateChecking)
	tr.Set(StateReady)
	if !tr.EverReady() {
		t.Fatal("expected ever-ready after READY")
	}

	// Flapping after first readiness does not clear the bit.
	tr.Set(StateChecking)
	tr.Set(StateUnreachable)
	if !tr.EverReady() {
		t.Fatal("ever-ready must be sticky")
	}
}

func TestTrackerStoppedIsTerminal(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Set(StateReady)
	tr.Set(StateStopped)

	tr.Set(StateChecking)
	tr.Set(StateReady)
	if got := tr.State(); got != StateStopped {
		t.Fatalf("stopped tracker transitioned to %s", got)
	}
}

func TestStateStrings(t *testing.T) {
	t.Parallel()

	want := map[State]string{
		StateUnknown:     "unknown",
		StateChecking:    "checking",
		StateLaunching:   "launching",
		StateReady:       "ready",
		StateUnreachable: "unreachable",
		StateStopped:     "stopped",
	}
	for s, str := range want {
		if s.String() != str {
			t.Fatalf("state %d: got %q want %q", int(s), s.String(), str)
		}
	}
}
