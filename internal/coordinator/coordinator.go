// Package coordinator implements the Transaction Manager: operation
// dispatch, the wait-for graph, per-variable lock waiting queues,
// deadlock detection and victim selection, commit validation, the
// retry queue, and the logical clock. This is the ~55% component the
// spec calls the hard part.
//
// The manager-struct shape (a single struct owning every piece of TM
// state, narrow exported verbs, heavy doc comments) is kept from
// github.com/Johniel/gorelly's transaction.TransactionManager; the
// dispatch semantics themselves are ported from
// original_source/src/transaction_manager.py's execute/translate_op/
// _read/_write/_end/_commit_transaction/_abort_transaction, since the
// Python original is the unambiguous authority spec.md was distilled
// from.
package coordinator

import (
	"sort"

	"github.com/example/repcrec/internal/lockmgr"
	"github.com/example/repcrec/internal/ops"
	"github.com/example/repcrec/internal/site"
	"github.com/example/repcrec/internal/topology"
	"github.com/example/repcrec/internal/txn"
)

// queueEntry is one FIFO entry in a variable's lock waiting queue.
type queueEntry struct {
	Txn  txn.ID
	Kind lockmgr.Kind
}

// retryEntry is one pending entry in the operation retry queue.
type retryEntry struct {
	Op       ops.Operation
	Owner    txn.ID
	HasOwner bool
}

// TransactionManager is the Transaction Manager: it owns every
// transaction, the wait-for graph, every variable's lock waiting queue,
// the operation retry queue, each site's failure history, and the
// logical clock. Each Site exclusively owns its Data Manager in turn;
// the wait-for graph and lock waiting queues reference transactions and
// variables by id only, so there are no ownership cycles.
type TransactionManager struct {
	sites [topology.NumSites]*site.Site

	transactions map[txn.ID]*txn.Transaction

	waitForGraph     map[txn.ID]map[txn.ID]bool
	lockWaitingQueue map[topology.VarID][]queueEntry
	opRetryQueue     []retryEntry
	sitesFailTime    map[topology.SiteID][]txn.Tick
	globalTime       txn.Tick

	sink  ops.Sink
	audit *AuditLog
}

// New creates a Transaction Manager with all ten sites Up, emitting
// events through sink (a nil sink discards them). The audit trail is
// written to the standard logrus logger.
func New(sink ops.Sink) *TransactionManager {
	tm := &TransactionManager{
		transactions:     make(map[txn.ID]*txn.Transaction),
		waitForGraph:     make(map[txn.ID]map[txn.ID]bool),
		lockWaitingQueue: make(map[topology.VarID][]queueEntry),
		sitesFailTime:    make(map[topology.SiteID][]txn.Tick),
		sink:             sink,
		audit:            NewAuditLog(nil),
	}
	if tm.sink == nil {
		tm.sink = ops.NoopSink{}
	}
	for i := 1; i <= topology.NumSites; i++ {
		tm.sites[i-1] = site.New(topology.SiteID(i))
	}
	return tm
}

// GlobalTime returns the current logical tick.
func (tm *TransactionManager) GlobalTime() txn.Tick {
	return tm.globalTime
}

// Transaction returns the transaction with the given id, if known.
func (tm *TransactionManager) Transaction(id txn.ID) (*txn.Transaction, bool) {
	t, ok := tm.transactions[id]
	return t, ok
}

// Execute runs one tick of the dispatch pipeline: resolve any deadlock,
// drain the retry queue, attempt op (if provided), drain the retry
// queue again, enqueue op for retry if it's still blocked and its
// transaction isn't aborted, then advance the clock. Returns false iff
// op is nil (input exhausted) and the retry queue is empty — the signal
// to the driver that there is nothing left to do.
func (tm *TransactionManager) Execute(op ops.Operation) bool {
	tm.resolveDeadlock()
	tm.drainRetryQueue()

	success := true
	var owner txn.ID
	var hasOwner bool
	if op != nil {
		success, owner, hasOwner = tm.apply(op)
	}

	tm.drainRetryQueue()

	if op != nil && !success {
		if !hasOwner || tm.transactions[owner].Status != txn.Aborted {
			tm.opRetryQueue = append(tm.opRetryQueue, retryEntry{Op: op, Owner: owner, HasOwner: hasOwner})
		}
	}

	tm.globalTime++

	if op == nil && len(tm.opRetryQueue) == 0 {
		return false
	}
	return true
}

// drainRetryQueue re-attempts every queued operation once, removing
// those that now succeed. Order is preserved for the ones that remain
// blocked.
func (tm *TransactionManager) drainRetryQueue() {
	remaining := tm.opRetryQueue[:0]
	for _, e := range tm.opRetryQueue {
		success, _, _ := tm.apply(e.Op)
		if !success {
			remaining = append(remaining, e)
		}
	}
	tm.opRetryQueue = remaining
}

// apply translates one operation into the corresponding dispatch call,
// returning whether it succeeded and, for operations that belong to a
// transaction, which one.
func (tm *TransactionManager) apply(op ops.Operation) (success bool, owner txn.ID, hasOwner bool) {
	switch o := op.(type) {
	case ops.Begin:
		tm.begin(o.Txn)
		return true, o.Txn, true
	case ops.BeginRO:
		tm.beginRO(o.Txn)
		return true, o.Txn, true
	case ops.Read:
		return tm.read(o.Txn, o.Var), o.Txn, true
	case ops.Write:
		return tm.write(o.Txn, o.Var, o.Value), o.Txn, true
	case ops.End:
		tm.end(o.Txn)
		return true, o.Txn, true
	case ops.Fail:
		tm.fail(o.Site)
		return true, 0, false
	case ops.Recover:
		tm.recover(o.Site)
		return true, 0, false
	case ops.Dump:
		tm.dump()
		return true, 0, false
	default:
		return true, 0, false
	}
}

func (tm *TransactionManager) begin(t txn.ID) {
	tm.transactions[t] = txn.New(t, txn.KindReadWrite, tm.globalTime)
	tm.audit.AppendEvent(Event{Type: EventBegin, Txn: t, Tick: tm.globalTime})
}

func (tm *TransactionManager) beginRO(t txn.ID) {
	tm.transactions[t] = txn.New(t, txn.KindReadOnly, tm.globalTime)
	tm.audit.AppendEvent(Event{Type: EventBegin, Txn: t, Tick: tm.globalTime})
}

// read implements spec §4.4 _read.
func (tm *TransactionManager) read(t txn.ID, v topology.VarID) bool {
	T, ok := tm.transactions[t]
	if !ok || !T.IsActive() {
		return true
	}

	if T.Kind == txn.KindReadOnly {
		return tm.readFromSnapshot(t, v, T.StartTick)
	}

	if blocked := tm.gateOnQueue(T, v, lockmgr.KindRead); blocked {
		return false
	}

	if value, ok := T.UncommittedRead(v); ok {
		tm.sink.PrintVar(v, value)
		return true
	}

	for _, s := range tm.relevantSites(v) {
		if s.Status == site.Down {
			continue
		}
		value, granted, blockers := s.DM.Read(v, int(t))
		if !granted && len(blockers) > 0 {
			tm.blockOn(T, v, lockmgr.KindRead, toTxnIDs(blockers))
			return false
		}
		if !granted {
			continue
		}
		s.RecordFirstAccess(t, tm.globalTime)
		tm.sink.PrintVar(v, value)
		return true
	}
	return false
}

// write implements spec §4.4 _write.
func (tm *TransactionManager) write(t txn.ID, v topology.VarID, value int) bool {
	T, ok := tm.transactions[t]
	if !ok || !T.IsActive() {
		return true
	}

	if blocked := tm.gateOnQueue(T, v, lockmgr.KindWrite); blocked {
		return false
	}

	sites := tm.relevantSites(v)
	anyUp := false
	blockersUnion := make(map[txn.ID]bool)
	for _, s := range sites {
		if s.Status == site.Down {
			continue
		}
		anyUp = true
		ok, blockers := s.DM.TryWrite(v, int(t))
		if !ok {
			for _, b := range toTxnIDs(blockers) {
				if b != t {
					blockersUnion[b] = true
				}
			}
		}
	}
	if len(blockersUnion) > 0 {
		blockers := make([]txn.ID, 0, len(blockersUnion))
		for b := range blockersUnion {
			blockers = append(blockers, b)
		}
		tm.blockOn(T, v, lockmgr.KindWrite, blockers)
		return false
	}
	if !anyUp {
		return false
	}

	for _, s := range sites {
		if s.Status == site.Down {
			continue
		}
		s.DM.Write(v, int(t))
		s.RecordFirstAccess(t, tm.globalTime)
	}
	T.Write(v, value)
	return true
}

// gateOnQueue implements spec §4.5's FIFO-with-read-batching rule: a
// request may attempt the real acquisition this tick iff every request
// ahead of it in v's queue is a Read and the request itself is a Read
// (Reads never wait behind other Reads), or there is nothing ahead of
// it at all. A Write may only attempt once it is at the very head.
// Everyone else either stays queued where they already are or joins
// the tail. Returns true iff T must not attempt the direct acquisition
// this tick.
func (tm *TransactionManager) gateOnQueue(T *txn.Transaction, v topology.VarID, kind lockmgr.Kind) bool {
	queue := tm.lockWaitingQueue[v]
	if len(queue) == 0 {
		return false
	}

	idx := -1
	for i, e := range queue {
		if e.Txn == T.ID {
			idx = i
			break
		}
	}

	if idx == -1 {
		if kind == lockmgr.KindRead && allReads(queue) {
			return false
		}
		tm.enqueueWithWaitEdge(T.ID, v, kind)
		T.Status = txn.Blocked
		tm.audit.AppendEvent(Event{Type: EventBlocked, Txn: T.ID, Var: v, Tick: tm.globalTime})
		return true
	}

	if idx == 0 {
		return false
	}
	if kind == lockmgr.KindRead && allReads(queue[:idx]) {
		return false
	}
	return true
}

// allReads reports whether every entry in a queue slice is a Read.
func allReads(entries []queueEntry) bool {
	for _, e := range entries {
		if e.Kind != lockmgr.KindRead {
			return false
		}
	}
	return true
}

// blockOn records wait-for edges from t to blockers, queues (t, kind)
// for v, and marks t Blocked.
func (tm *TransactionManager) blockOn(T *txn.Transaction, v topology.VarID, kind lockmgr.Kind, blockers []txn.ID) {
	tm.addWaitEdges(T.ID, blockers)
	tm.enqueue(v, T.ID, kind)
	T.Status = txn.Blocked
	tm.audit.AppendEvent(Event{Type: EventBlocked, Txn: T.ID, Var: v, Tick: tm.globalTime})
}

// end implements spec §4.4 _end.
func (tm *TransactionManager) end(t txn.ID) {
	T, ok := tm.transactions[t]
	if !ok {
		return
	}
	if T.Status == txn.Aborted {
		return
	}
	if T.Kind == txn.KindReadOnly {
		tm.commitTransaction(t)
		return
	}
	for _, s := range tm.sites {
		first, touched := s.FirstAccessTime[t]
		if !touched {
			continue
		}
		if last, failed := tm.lastFailTick(s.ID); failed && first < last {
			tm.abortTransaction(t)
			return
		}
	}
	tm.commitTransaction(t)
}

// commitTransaction implements spec §4.4 _commit_transaction.
func (tm *TransactionManager) commitTransaction(t txn.ID) {
	T := tm.transactions[t]
	for v, value := range T.Uncommitted {
		for _, s := range tm.relevantSites(v) {
			if s.Status != site.Down {
				s.DM.CommitVar(v, value, tm.globalTime)
			}
		}
	}
	for _, s := range tm.sites {
		if s.Status != site.Down {
			s.DM.Locks.ReleaseAll(int(t))
		}
	}
	tm.advanceAllQueues(t)
	tm.removeFromWaitForGraph(t)
	T.Status = txn.Committed
	tm.sink.ReportTransaction(t, true)
	tm.audit.AppendEvent(Event{Type: EventCommit, Txn: t, Tick: tm.globalTime})
}

// abortTransaction implements spec §4.4 _abort_transaction.
func (tm *TransactionManager) abortTransaction(t txn.ID) {
	for _, s := range tm.sites {
		if s.Status != site.Down {
			s.DM.Locks.ReleaseAll(int(t))
		}
	}
	tm.advanceAllQueues(t)
	tm.removeFromWaitForGraph(t)

	filtered := tm.opRetryQueue[:0]
	for _, e := range tm.opRetryQueue {
		if e.HasOwner && e.Owner == t {
			continue
		}
		filtered = append(filtered, e)
	}
	tm.opRetryQueue = filtered

	T := tm.transactions[t]
	T.Status = txn.Aborted
	tm.sink.ReportTransaction(t, false)
	tm.audit.AppendEvent(Event{Type: EventAbort, Txn: t, Tick: tm.globalTime})
}

func (tm *TransactionManager) removeFromWaitForGraph(t txn.ID) {
	delete(tm.waitForGraph, t)
	for _, edges := range tm.waitForGraph {
		delete(edges, t)
	}
}

func (tm *TransactionManager) fail(s topology.SiteID) {
	tm.sites[s-1].Fail()
	tm.sitesFailTime[s] = append(tm.sitesFailTime[s], tm.globalTime)
	tm.audit.AppendEvent(Event{Type: EventFail, Site: s, Tick: tm.globalTime})
}

func (tm *TransactionManager) recover(s topology.SiteID) {
	tm.sites[s-1].Recover()
	tm.audit.AppendEvent(Event{Type: EventRecover, Site: s, Tick: tm.globalTime})
}

func (tm *TransactionManager) dump() {
	snapshot := make(map[topology.SiteID]map[topology.VarID]int, topology.NumSites)
	for _, s := range tm.sites {
		snapshot[s.ID] = s.DM.Dump()
	}
	tm.sink.DumpSnapshot(snapshot)
}

// readFromSnapshot implements spec §4.4/§4.6 _read_from_snapshot.
func (tm *TransactionManager) readFromSnapshot(t txn.ID, v topology.VarID, start txn.Tick) bool {
	var success, retry bool

	if !topology.IsReplicated(v) {
		s := tm.sites[topology.HomeSite(v)-1]
		if s.Status != site.Down {
			value, ok := s.DM.ReadFromSnapshot(v, start, nil, nil)
			if ok {
				success = true
				tm.sink.PrintVar(v, value)
			}
		} else {
			retry = true
		}
	} else {
		down := 0
		for _, s := range tm.relevantSites(v) {
			if s.Status == site.Down {
				down++
				continue
			}
			first, last := tm.failWindow(s.ID)
			value, ok := s.DM.ReadFromSnapshot(v, start, first, last)
			if ok {
				success = true
				tm.sink.PrintVar(v, value)
				break
			}
		}
		if down == topology.NumSites {
			retry = true
		}
	}

	if !success && !retry {
		tm.abortTransaction(t)
		return false
	}
	return success
}

func (tm *TransactionManager) failWindow(s topology.SiteID) (first, last *txn.Tick) {
	history := tm.sitesFailTime[s]
	if len(history) == 0 {
		return nil, nil
	}
	f, l := history[0], history[len(history)-1]
	return &f, &l
}

func (tm *TransactionManager) lastFailTick(s topology.SiteID) (txn.Tick, bool) {
	history := tm.sitesFailTime[s]
	if len(history) == 0 {
		return 0, false
	}
	return history[len(history)-1], true
}

// relevantSites returns every site relevant to v: all ten, in site-id
// order, for an even (replicated) variable, or the single home site for
// an odd variable.
func (tm *TransactionManager) relevantSites(v topology.VarID) []*site.Site {
	if topology.IsReplicated(v) {
		return tm.sites[:]
	}
	return []*site.Site{tm.sites[topology.HomeSite(v)-1]}
}

func (tm *TransactionManager) addWaitEdges(t txn.ID, blockers []txn.ID) {
	if len(blockers) == 0 {
		return
	}
	if tm.waitForGraph[t] == nil {
		tm.waitForGraph[t] = make(map[txn.ID]bool)
	}
	for _, b := range blockers {
		if b == t {
			continue
		}
		tm.waitForGraph[t][b] = true
	}
}

func toTxnIDs(ids []lockmgr.TxnID) []txn.ID {
	out := make([]txn.ID, len(ids))
	for i, id := range ids {
		out[i] = txn.ID(id)
	}
	return out
}

func sortedTxnIDs(m map[txn.ID]map[txn.ID]bool) []txn.ID {
	out := make([]txn.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedNeighbors(edges map[txn.ID]bool) []txn.ID {
	out := make([]txn.ID, 0, len(edges))
	for id := range edges {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
