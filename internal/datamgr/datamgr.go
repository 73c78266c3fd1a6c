// Package datamgr implements the per-site Data Manager: the version
// list for each hosted variable, the variable's availability state
// machine, and its lock table.
//
// Ported closely from original_source/src/data_manager.py (the clearest
// authority on version-list and failure-window semantics — the
// distilled spec.md mirrors it but the Python is unambiguous on
// boundary conditions), restructured as a Go type in the teacher's
// small-manager idiom (c.f. github.com/Johniel/gorelly's
// buffer.BufferPoolManager: a struct owning one piece of per-site state,
// exposing narrow verbs).
package datamgr

import (
	"github.com/example/repcrec/internal/lockmgr"
	"github.com/example/repcrec/internal/topology"
	"github.com/example/repcrec/internal/txn"
)

// Availability is the state machine each hosted variable moves through.
type Availability int

const (
	// Ready variables may be read.
	Ready Availability = iota
	// Unavailable variables cannot be read or written (site is down, or
	// was down and has not recovered this variable yet).
	Unavailable
	// Recovering variables (replicated only) cannot be read until a
	// write commits to them again.
	Recovering
)

// Version is one committed value of a variable, tagged with the
// coordinator tick at which it was committed.
type Version struct {
	Tick  txn.Tick
	Value int
}

// DataManager owns one site's variables: their version lists,
// availability, and lock table. It knows nothing of other sites or of
// transactions beyond the ids it is given.
type DataManager struct {
	Site topology.SiteID

	versions map[topology.VarID][]Version
	status   map[topology.VarID]Availability

	Locks *lockmgr.Table
}

// New creates the Data Manager for site, seeding every variable it
// hosts with its initial version (tick 0, value index*10) and Ready
// status.
func New(site topology.SiteID) *DataManager {
	dm := &DataManager{
		versions: make(map[topology.VarID][]Version),
		status:   make(map[topology.VarID]Availability),
		Locks:    lockmgr.NewTable(),
		Site:     site,
	}
	for i := 1; i <= topology.NumVars; i++ {
		v := topology.VarID(i)
		if topology.HostsVar(site, v) {
			dm.versions[v] = []Version{{Tick: 0, Value: topology.InitialValue(v)}}
			dm.status[v] = Ready
		}
	}
	return dm
}

// Hosts reports whether this site hosts a copy of v at all.
func (dm *DataManager) Hosts(v topology.VarID) bool {
	_, ok := dm.status[v]
	return ok
}

// Status returns the current availability of v on this site.
func (dm *DataManager) Status(v topology.VarID) Availability {
	return dm.status[v]
}

// Read attempts to read v on behalf of txn. If v is not Ready, returns
// (0, false, nil) — a site-unavailable signal, distinguished from a
// lock conflict by the nil blockers. Otherwise delegates to the lock
// table; on grant, returns the latest committed value.
func (dm *DataManager) Read(v topology.VarID, t lockmgr.TxnID) (value int, granted bool, blockers []lockmgr.TxnID) {
	if dm.status[v] != Ready {
		return 0, false, nil
	}
	granted, blockers = dm.Locks.AcquireRead(v, t)
	if !granted {
		return 0, false, blockers
	}
	value, _ = dm.GetCommitted(v)
	return value, true, nil
}

// Write acquires a write lock on v for txn. The caller is responsible
// for ensuring v's status is not Unavailable before calling. The value
// itself is not applied here — only the lock is acquired; the value is
// buffered by the transaction until commit.
func (dm *DataManager) Write(v topology.VarID, t lockmgr.TxnID) (granted bool, blockers []lockmgr.TxnID) {
	return dm.Locks.AcquireWrite(v, t)
}

// TryWrite answers whether t could acquire a write lock on v without
// mutating the lock table, so the coordinator can pre-check every
// replica before committing to acquiring on any of them.
func (dm *DataManager) TryWrite(v topology.VarID, t lockmgr.TxnID) (ok bool, blockers []lockmgr.TxnID) {
	return dm.Locks.TryWrite(v, t)
}

// CommitVar appends a new version to v's version list and, if v was
// Recovering, promotes it to Ready.
func (dm *DataManager) CommitVar(v topology.VarID, value int, tick txn.Tick) {
	dm.versions[v] = append(dm.versions[v], Version{Tick: tick, Value: value})
	if dm.status[v] == Recovering {
		dm.status[v] = Ready
	}
}

// GetCommitted returns the latest committed value of v, iff v is Ready.
func (dm *DataManager) GetCommitted(v topology.VarID) (int, bool) {
	if dm.status[v] != Ready {
		return 0, false
	}
	vs := dm.versions[v]
	return vs[len(vs)-1].Value, true
}

// ReadFromSnapshot scans v's version list newest-first for the first
// version with Tick <= startTick, and accepts it iff no site failure
// intersected [version.Tick, startTick]: firstFailTick is nil, or
// firstFailTick > startTick, or lastFailTick < version.Tick. If the
// version exists but the failure window disqualifies it, this returns
// false without scanning further (an earlier, further-disqualified
// version would not help: the failure window for firstFailTick/
// lastFailTick is the site's whole history, not per-version).
func (dm *DataManager) ReadFromSnapshot(v topology.VarID, startTick txn.Tick, firstFailTick, lastFailTick *txn.Tick) (value int, ok bool) {
	vs := dm.versions[v]
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].Tick > startTick {
			continue
		}
		if firstFailTick == nil || *firstFailTick > startTick || *lastFailTick < vs[i].Tick {
			return vs[i].Value, true
		}
		return 0, false
	}
	return 0, false
}

// Fail clears the lock table and marks every hosted variable
// Unavailable.
func (dm *DataManager) Fail() {
	dm.Locks.Clear()
	for v := range dm.status {
		dm.status[v] = Unavailable
	}
}

// Recover marks replicated (even) variables Recovering and unreplicated
// (odd) variables Ready — the odd branch is unconditional because an
// unreplicated variable's version list persisted across the outage; no
// write to it could have happened elsewhere.
func (dm *DataManager) Recover() {
	for v := range dm.status {
		if topology.IsReplicated(v) {
			dm.status[v] = Recovering
		} else {
			dm.status[v] = Ready
		}
	}
}

// Dump returns the latest committed value of every hosted variable,
// regardless of current availability (a dump reports what is stored,
// not what is currently readable).
func (dm *DataManager) Dump() map[topology.VarID]int {
	out := make(map[topology.VarID]int, len(dm.versions))
	for v, vs := range dm.versions {
		out[v] = vs[len(vs)-1].Value
	}
	return out
}
