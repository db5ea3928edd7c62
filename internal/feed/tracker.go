package feed

import "sync"

// OpState is the lifecycle of one optimistic like toggle.
type OpState int

// Toggle states.
const (
	OpPending OpState = iota
	OpCommitted
	OpRolledBack
)

func (s OpState) String() string {
	switch s {
	case OpPending:
		return "pending"
	case OpCommitted:
		return "committed"
	case OpRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// maxResolved bounds the resolved toggles kept for State; the oldest are
// forgotten first.
const maxResolved = 256

type likeOp struct {
	state  OpState
	target bool
	seq    uint64
}

type resolvedOp struct {
	letterID string
	seq      uint64
}

// Tracker holds the latest like toggle per letter id. At most one toggle per
// id is pending; Begin refuses a second one until the first resolves.
// A resolved toggle is kept until State reports it, or until maxResolved
// newer toggles have resolved.
type Tracker struct {
	mu       sync.Mutex
	ops      map[string]likeOp
	resolved []resolvedOp
	seq      uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ops: make(map[string]likeOp)}
}

// Begin records a pending toggle towards target. It returns false, and
// changes nothing, when a toggle for letterID is already pending.
func (t *Tracker) Begin(letterID string, target bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if op, ok := t.ops[letterID]; ok && op.state == OpPending {
		return false
	}
	t.seq++
	t.ops[letterID] = likeOp{state: OpPending, target: target, seq: t.seq}
	return true
}

// Commit marks the pending toggle as confirmed by the store.
func (t *Tracker) Commit(letterID string) {
	t.resolve(letterID, OpCommitted)
}

// Rollback marks the pending toggle as failed.
func (t *Tracker) Rollback(letterID string) {
	t.resolve(letterID, OpRolledBack)
}

func (t *Tracker) resolve(letterID string, state OpState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[letterID]
	if !ok || op.state != OpPending {
		return
	}
	op.state = state
	t.ops[letterID] = op

	t.resolved = append(t.resolved, resolvedOp{letterID: letterID, seq: op.seq})
	for len(t.resolved) > maxResolved {
		oldest := t.resolved[0]
		t.resolved = t.resolved[1:]
		if cur, ok := t.ops[oldest.letterID]; ok && cur.seq == oldest.seq && cur.state != OpPending {
			delete(t.ops, oldest.letterID)
		}
	}
}

// Pending returns the target of the pending toggle for letterID.
func (t *Tracker) Pending(letterID string) (target, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, found := t.ops[letterID]
	if !found || op.state != OpPending {
		return false, false
	}
	return op.target, true
}

// State returns the latest toggle state for letterID. A resolved state is
// reported once and then forgotten.
func (t *Tracker) State(letterID string) (OpState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[letterID]
	if ok && op.state != OpPending {
		delete(t.ops, letterID)
	}
	return op.state, ok
}

// Len returns the number of toggles held.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}
