package backend

import "sync"

// State is the backend lifecycle state. There is exactly one process-wide
// value, owned by a Tracker.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateLaunching
	StateReady
	StateUnreachable
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateChecking:
		return "checking"
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	case StateUnreachable:
		return "unreachable"
	case StateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// Tracker holds the shared backend state under a mutex. Writers race only
// with the shutdown path; first writer wins and STOPPED is terminal.
type Tracker struct {
	mu        sync.RWMutex
	state     State
	everReady bool
}

func NewTracker() *Tracker {
	return &Tracker{state: StateUnknown}
}

// Set transitions to next. Transitions out of STOPPED are ignored so a
// launch racing a shutdown cannot resurrect the backend state.
func (t *Tracker) Set(next State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateStopped {
		return
	}
	t.state = next
	if next == StateReady {
		t.everReady = true
	}
}

func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// EverReady reports whether the backend has reached READY at least once in
// this process's lifetime. The query gate keys off this, not the momentary
// state, so a backend that flaps after first readiness still accepts queries.
func (t *Tracker) EverReady() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.everReady
}

func (t *Tracker) Stopped() bool {
	return t.State() == StateStopped
}
