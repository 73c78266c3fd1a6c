package coordinator

import (
	"github.com/example/repcrec/internal/lockmgr"
	"github.com/example/repcrec/internal/site"
	"github.com/example/repcrec/internal/topology"
	"github.com/example/repcrec/internal/txn"
)

// enqueue appends (t, kind) to v's lock waiting queue unless t is
// already present.
func (tm *TransactionManager) enqueue(v topology.VarID, t txn.ID, kind lockmgr.Kind) {
	if tm.inQueue(v, t) {
		return
	}
	tm.lockWaitingQueue[v] = append(tm.lockWaitingQueue[v], queueEntry{Txn: t, Kind: kind})
}

// inQueue reports whether t already has an entry in v's lock waiting
// queue.
func (tm *TransactionManager) inQueue(v topology.VarID, t txn.ID) bool {
	for _, e := range tm.lockWaitingQueue[v] {
		if e.Txn == t {
			return true
		}
	}
	return false
}

// enqueueWithWaitEdge records the wait-for edges a new (t, kind) queue
// entry for v introduces, then appends the entry.
func (tm *TransactionManager) enqueueWithWaitEdge(t txn.ID, v topology.VarID, kind lockmgr.Kind) {
	tm.addQueueWaitEdge(v, t, kind)
	tm.enqueue(v, t, kind)
}

// addQueueWaitEdge computes the wait-for edges t incurs by joining v's
// queue behind whatever is already waiting. A Write joining, or joining
// behind a Write, waits directly on the transaction at the tail. A Read
// joining behind a run of Reads inherits the union of the wait-for sets
// of that entire contiguous tail run, with no direct edge to any Read
// in the run — two Reads queued behind the same Write are not waiting on
// each other, but a Write that later joins behind them must be
// reachable from both for deadlock detection to see the true cycle.
func (tm *TransactionManager) addQueueWaitEdge(v topology.VarID, t txn.ID, kind lockmgr.Kind) {
	queue := tm.lockWaitingQueue[v]
	if len(queue) == 0 {
		return
	}
	tail := queue[len(queue)-1]

	if kind == lockmgr.KindWrite || tail.Kind == lockmgr.KindWrite {
		tm.addWaitEdges(t, []txn.ID{tail.Txn})
		return
	}

	edges := make(map[txn.ID]bool)
	for i := len(queue) - 1; i >= 0 && queue[i].Kind == lockmgr.KindRead; i-- {
		for b := range tm.waitForGraph[queue[i].Txn] {
			edges[b] = true
		}
	}
	blockers := make([]txn.ID, 0, len(edges))
	for b := range edges {
		if b != t {
			blockers = append(blockers, b)
		}
	}
	tm.addWaitEdges(t, blockers)
}

// advanceQueue implements spec §4.5's queue advancement, ported from
// _commit_transaction/_abort_transaction's inline queue-draining loop in
// the Python original: GRANT the head of v's queue and pop it
// synchronously, rather than merely checking whether it already holds
// the lock. done is the transaction whose commit or abort triggered this
// pass; its own entry is dropped unattempted; it is leaving regardless
// of what the queue decides, and it must never be the transaction
// advanceQueue grants a lock to.
//
// A Read head that is granted is popped and the new head is tried too,
// as long as it is also a Read — batching a run of consecutive reads the
// way the Python original's inner while loop does. A Write head gets
// exactly one grant attempt for this pass; succeed or fail, the branch
// is decided once on the original head's kind and does not fall through
// from a read run into a write attempt, matching the Python original's
// if/else being chosen before the loop runs.
func (tm *TransactionManager) advanceQueue(v topology.VarID, done txn.ID) {
	queue := tm.lockWaitingQueue[v]
	if len(queue) == 0 {
		return
	}

	live := queue[:0]
	for _, e := range queue {
		if e.Txn == done {
			continue
		}
		if T, ok := tm.transactions[e.Txn]; ok && (T.Status == txn.Committed || T.Status == txn.Aborted) {
			continue
		}
		live = append(live, e)
	}

	if len(live) == 0 {
		delete(tm.lockWaitingQueue, v)
		return
	}

	if live[0].Kind == lockmgr.KindRead {
		for len(live) > 0 && live[0].Kind == lockmgr.KindRead && tm.grantRead(v, live[0].Txn) {
			live = live[1:]
		}
	} else if tm.grantWrite(v, live[0].Txn) {
		live = live[1:]
	}

	if len(live) == 0 {
		delete(tm.lockWaitingQueue, v)
		return
	}
	tm.lockWaitingQueue[v] = live
}

// grantRead attempts to grant a Read lock on v to t at the first
// relevant up site willing to give it, mirroring read()'s own
// single-site acquisition — one granting site is enough to satisfy a
// read.
func (tm *TransactionManager) grantRead(v topology.VarID, t txn.ID) bool {
	for _, s := range tm.relevantSites(v) {
		if s.Status == site.Down {
			continue
		}
		if granted, _ := s.DM.Locks.AcquireRead(v, int(t)); granted {
			return true
		}
	}
	return false
}

// grantWrite attempts to grant a Write lock on v to t at every relevant
// up site, mirroring write()'s all-or-nothing acquisition: every site is
// checked before any of them is mutated, so a site that cannot grant
// never leaves t holding the write lock at only some replicas.
func (tm *TransactionManager) grantWrite(v topology.VarID, t txn.ID) bool {
	sites := tm.relevantSites(v)
	anyUp := false
	for _, s := range sites {
		if s.Status == site.Down {
			continue
		}
		anyUp = true
		if ok, _ := s.DM.Locks.TryWrite(v, int(t)); !ok {
			return false
		}
	}
	if !anyUp {
		return false
	}
	for _, s := range sites {
		if s.Status != site.Down {
			s.DM.Locks.AcquireWrite(v, int(t))
		}
	}
	return true
}

// advanceAllQueues runs advanceQueue across every variable. Commit and
// abort drain every variable's queue, not just the ones the terminating
// transaction touched: releasing its locks may unblock a transaction
// waiting on an entirely different variable whose wait-for edge ran
// through the terminating transaction by way of a shared queue run.
func (tm *TransactionManager) advanceAllQueues(done txn.ID) {
	for i := 1; i <= topology.NumVars; i++ {
		tm.advanceQueue(topology.VarID(i), done)
	}
}
