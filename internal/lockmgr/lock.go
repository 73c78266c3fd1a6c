// Package lockmgr implements the per-site lock table: one Lock per
// variable, tagged Read (shared, many holders) or Write (exclusive, one
// holder), with promotion, FIFO-compatible acquire/try/release
// operations.
//
// Adapted from github.com/Johniel/gorelly's transaction/lock.go
// (canGrantLock / grantLock / the compatibility matrix), but reworked
// per spec's design notes: no sync.Mutex/sync.Cond (the coordinator is
// single-threaded cooperative — blocking is a return value, not a
// suspended goroutine), and the lock itself is a tagged variant rather
// than a flat struct with a Mode field, so "Write ⇒ exactly one holder"
// is a type-level guarantee instead of a runtime invariant to maintain
// by hand.
package lockmgr

import "github.com/example/repcrec/internal/topology"

// TxnID is the subset of txn.ID the lock table needs; kept as its own
// type alias here so this package does not import txn (lock tables are
// lower-level than transactions, per spec §3 ownership rules).
type TxnID = int

// Kind distinguishes shared (read) from exclusive (write) locks.
type Kind int

const (
	// KindRead is a shared lock; any number of transactions may hold it.
	KindRead Kind = iota
	// KindWrite is an exclusive lock; exactly one transaction holds it.
	KindWrite
)

// Lock is the state held on a single variable at a single site: either
// absent (no Lock value, represented by "not present in the table"), a
// Read lock with one or more holders, or a Write lock with exactly one
// holder.
type Lock interface {
	Kind() Kind
	// Holders returns every transaction currently holding this lock, in
	// no particular order. For a Write lock this is always length 1.
	Holders() []TxnID
	holds(t TxnID) bool
}

// ReadLock is held by one or more transactions simultaneously.
type ReadLock struct {
	holders map[TxnID]struct{}
}

func newReadLock(first TxnID) *ReadLock {
	return &ReadLock{holders: map[TxnID]struct{}{first: {}}}
}

// Kind implements Lock.
func (r *ReadLock) Kind() Kind { return KindRead }

// Holders implements Lock.
func (r *ReadLock) Holders() []TxnID {
	out := make([]TxnID, 0, len(r.holders))
	for t := range r.holders {
		out = append(out, t)
	}
	return out
}

func (r *ReadLock) holds(t TxnID) bool {
	_, ok := r.holders[t]
	return ok
}

func (r *ReadLock) soleHolder() (TxnID, bool) {
	if len(r.holders) != 1 {
		return 0, false
	}
	for t := range r.holders {
		return t, true
	}
	return 0, false
}

// WriteLock is held by exactly one transaction — the struct shape makes
// that a compile-time guarantee rather than a runtime invariant.
type WriteLock struct {
	Holder TxnID
}

// Kind implements Lock.
func (w *WriteLock) Kind() Kind { return KindWrite }

// Holders implements Lock.
func (w *WriteLock) Holders() []TxnID { return []TxnID{w.Holder} }

func (w *WriteLock) holds(t TxnID) bool { return w.Holder == t }

// Table is the lock table for one Data Manager: at most one Lock per
// variable. Erased wholesale on site failure (see Table.Clear).
type Table struct {
	locks map[topology.VarID]Lock
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{locks: make(map[topology.VarID]Lock)}
}

// Get returns the current lock on v, if any.
func (t *Table) Get(v topology.VarID) (Lock, bool) {
	l, ok := t.locks[v]
	return l, ok
}

// Holds reports whether txn is among the current holders of the lock on
// v, read or write.
func (t *Table) Holds(v topology.VarID, txn TxnID) bool {
	l, ok := t.locks[v]
	if !ok {
		return false
	}
	return l.holds(txn)
}

// AcquireRead grants a Read lock on v to txn, mutating the table on
// success. Grants immediately if v is unlocked, already Read-locked
// (idempotent add), or Write-locked solely by txn. Otherwise fails and
// returns the current holders as blockers.
func (t *Table) AcquireRead(v topology.VarID, txn TxnID) (granted bool, blockers []TxnID) {
	cur, ok := t.locks[v]
	if !ok {
		t.locks[v] = newReadLock(txn)
		return true, nil
	}
	switch l := cur.(type) {
	case *ReadLock:
		l.holders[txn] = struct{}{}
		return true, nil
	case *WriteLock:
		if l.Holder == txn {
			return true, nil
		}
		return false, l.Holders()
	}
	return false, cur.Holders()
}

// AcquireWrite grants a Write lock on v to txn, mutating the table on
// success: a clean grant when v is unlocked, a promotion when the only
// Read holder is txn, a no-op when txn already holds Write. Otherwise
// fails and returns the current holders as blockers.
func (t *Table) AcquireWrite(v topology.VarID, txn TxnID) (granted bool, blockers []TxnID) {
	cur, ok := t.locks[v]
	if !ok {
		t.locks[v] = &WriteLock{Holder: txn}
		return true, nil
	}
	switch l := cur.(type) {
	case *ReadLock:
		if sole, isSole := l.soleHolder(); isSole && sole == txn {
			t.locks[v] = &WriteLock{Holder: txn}
			return true, nil
		}
		return false, l.Holders()
	case *WriteLock:
		if l.Holder == txn {
			return true, nil
		}
		return false, l.Holders()
	}
	return false, cur.Holders()
}

// TryWrite answers the same predicate as AcquireWrite without mutating
// the table — used by the coordinator to pre-check write acquirability
// across every replica before acquiring the lock on any one of them.
func (t *Table) TryWrite(v topology.VarID, txn TxnID) (ok bool, blockers []TxnID) {
	cur, present := t.locks[v]
	if !present {
		return true, nil
	}
	switch l := cur.(type) {
	case *ReadLock:
		if sole, isSole := l.soleHolder(); isSole && sole == txn {
			return true, nil
		}
		return false, l.Holders()
	case *WriteLock:
		if l.Holder == txn {
			return true, nil
		}
		return false, l.Holders()
	}
	return false, cur.Holders()
}

// ReleaseAll removes txn from every lock it holds in this table,
// dropping any lock entry whose holder set becomes empty. Tolerates txn
// holding nothing.
func (t *Table) ReleaseAll(txn TxnID) {
	for v, l := range t.locks {
		switch lk := l.(type) {
		case *ReadLock:
			delete(lk.holders, txn)
			if len(lk.holders) == 0 {
				delete(t.locks, v)
			}
		case *WriteLock:
			if lk.Holder == txn {
				delete(t.locks, v)
			}
		}
	}
}

// Clear erases every lock in the table — called when a site fails.
func (t *Table) Clear() {
	t.locks = make(map[topology.VarID]Lock)
}
