// Package txn holds the transaction record the coordinator tracks:
// identity, kind, status, start tick, and the uncommitted write buffer.
//
// Adapted from github.com/Johniel/gorelly's transaction/transaction.go:
// the Transaction/TransactionState/TransactionID shapes are kept, but the
// mutex is dropped (the coordinator is single-threaded cooperative, spec
// §5) and wall-clock StartTime is replaced by the coordinator's logical
// tick.
package txn

import "github.com/example/repcrec/internal/topology"

// ID uniquely identifies a transaction. Transaction ids are assigned by
// the caller (the input grammar names them, e.g. "T7"), not generated
// here.
type ID int

// Kind distinguishes read-write transactions, which go through
// Available-Copies two-phase locking, from read-only transactions, which
// read a multi-version snapshot instead.
type Kind int

const (
	// KindReadWrite transactions acquire locks and write through commit.
	KindReadWrite Kind = iota
	// KindReadOnly transactions never lock; reads resolve against the
	// version list as of StartTick.
	KindReadOnly
)

// Status is the lifecycle state of a transaction.
type Status int

const (
	// Running transactions may still issue reads/writes.
	Running Status = iota
	// Blocked transactions are parked on a lock wait or a site outage;
	// they may still be retried.
	Blocked
	// Committed transactions are done and hold no locks.
	Committed
	// Aborted transactions are done, hold no locks, and will never
	// commit.
	Aborted
)

// Tick is the coordinator's logical clock value.
type Tick int64

// Transaction is the coordinator's record of one in-flight or finished
// transaction.
type Transaction struct {
	ID        ID
	Kind      Kind
	Status    Status
	StartTick Tick

	// Uncommitted buffers writes made by this transaction until commit
	// applies them to every currently-Up hosting site.
	Uncommitted map[topology.VarID]int
}

// New creates a Running transaction with the given id, kind, and start
// tick.
func New(id ID, kind Kind, start Tick) *Transaction {
	return &Transaction{
		ID:          id,
		Kind:        kind,
		Status:      Running,
		StartTick:   start,
		Uncommitted: make(map[topology.VarID]int),
	}
}

// IsActive reports whether the transaction can still issue operations
// (Running or Blocked — Blocked transactions are retried, not dead).
func (t *Transaction) IsActive() bool {
	return t.Status == Running || t.Status == Blocked
}

// Write buffers value for var v, to be applied to every Up hosting site
// at commit.
func (t *Transaction) Write(v topology.VarID, value int) {
	t.Uncommitted[v] = value
}

// UncommittedRead returns the value this transaction itself wrote to v,
// if any — reads within a transaction always see its own writes first.
func (t *Transaction) UncommittedRead(v topology.VarID) (int, bool) {
	value, ok := t.Uncommitted[v]
	return value, ok
}
