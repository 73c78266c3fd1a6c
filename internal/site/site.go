// Package site provides the thin per-site wrapper the coordinator talks
// to: a Data Manager plus the bookkeeping the coordinator needs that
// isn't the Data Manager's concern — up/down/recovering status and each
// transaction's first-access tick.
//
// Grounded on original_source/src/site.py and db_site.py (a small
// struct wrapping one DataManager with status + first_access_time),
// recast in the teacher's thin-wrapper idiom (c.f.
// github.com/Johniel/gorelly's disk_manager.go: a small struct owning
// one OS resource and exposing a handful of verbs).
package site

import (
	"github.com/example/repcrec/internal/datamgr"
	"github.com/example/repcrec/internal/topology"
	"github.com/example/repcrec/internal/txn"
)

// Status is a site's up/down/recovering state.
type Status int

const (
	// Up sites serve reads and writes normally.
	Up Status = iota
	// Down sites serve nothing; their Data Manager's variables are all
	// Unavailable and its lock table is empty.
	Down
	// Recovering sites are Up for unreplicated variables and Recovering
	// for replicated ones, until a write commits to each.
	Recovering
)

// Site owns one Data Manager plus coordinator-facing bookkeeping.
type Site struct {
	ID     topology.SiteID
	Status Status
	DM     *datamgr.DataManager

	// FirstAccessTime records, for each transaction that has
	// successfully read or written here, the tick of its first such
	// access. Used by the coordinator at commit time to decide whether
	// a failure since then invalidates the transaction.
	FirstAccessTime map[txn.ID]txn.Tick
}

// New creates an Up site with a fresh Data Manager.
func New(id topology.SiteID) *Site {
	return &Site{
		ID:              id,
		Status:          Up,
		DM:              datamgr.New(id),
		FirstAccessTime: make(map[txn.ID]txn.Tick),
	}
}

// Fail transitions the site Down, forwarding to its Data Manager.
func (s *Site) Fail() {
	s.DM.Fail()
	s.Status = Down
}

// Recover transitions the site to Recovering, forwarding to its Data
// Manager (which promotes unreplicated variables straight to Ready).
func (s *Site) Recover() {
	s.DM.Recover()
	s.Status = Recovering
}

// RecordFirstAccess stamps t's first successful access to this site, if
// it hasn't already been recorded.
func (s *Site) RecordFirstAccess(t txn.ID, tick txn.Tick) {
	if _, ok := s.FirstAccessTime[t]; !ok {
		s.FirstAccessTime[t] = tick
	}
}
