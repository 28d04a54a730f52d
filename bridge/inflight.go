package bridge

import (
	"context"
	"sync"
	"time"
)

// inflightRecord is the bookkeeping for one query awaiting a backend-derived
// response. cancel aborts the forwarded call; firing it is how cancellation
// and duplicate-id displacement silence a pending request.
type inflightRecord struct {
	id         string
	enqueuedAt time.Time
	cancel     context.CancelFunc
}

// inflightTable is the only shared mutable structure touched from multiple
// request goroutines. Inserts and removals are atomic with respect to
// interleaved completions: whichever terminal event removes the record first
// wins, and the others observe the removal and become no-ops.
type inflightTable struct {
	mu   sync.Mutex
	recs map[string]*inflightRecord
}

func newInflightTable() *inflightTable {
	return &inflightTable{recs: make(map[string]*inflightRecord)}
}

// add registers rec under key. A colliding id overwrites the earlier entry
// (last write wins); the displaced record is returned so the caller can
// cancel it. See the duplicate-id note in the dispatcher tests.
func (t *inflightTable) add(key string, rec *inflightRecord) *inflightRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.recs[key]
	t.recs[key] = rec
	return old
}

// remove deletes the record under key only if it is still rec, and reports
// whether this call performed the removal. A false return means another
// terminal event got there first and the caller must not reply.
func (t *inflightTable) remove(key string, rec *inflightRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recs[key] != rec {
		return false
	}
	delete(t.recs, key)
	return true
}

// take removes and returns whatever record is registered under key, nil if
// none. Used by cancellation, which need not know the record identity.
func (t *inflightTable) take(key string) *inflightRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.recs[key]
	if rec != nil {
		delete(t.recs, key)
	}
	return rec
}

// drain removes and returns all records. Used at shutdown.
func (t *inflightTable) drain() []*inflightRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*inflightRecord, 0, len(t.recs))
	for key, rec := range t.recs {
		out = append(out, rec)
		delete(t.recs, key)
	}
	return out
}
