package datamgr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/repcrec/internal/topology"
	"github.com/example/repcrec/internal/txn"
)

func TestNewSeedsHostedVariablesOnly(t *testing.T) {
	home := topology.HomeSite(1)
	dm := New(home)
	assert.True(t, dm.Hosts(1))
	value, ok := dm.GetCommitted(1)
	assert.True(t, ok)
	assert.Equal(t, topology.InitialValue(1), value)

	other := home + 1
	if other > topology.NumSites {
		other = 1
	}
	dm2 := New(other)
	assert.False(t, dm2.Hosts(1))
}

func TestReplicatedVariableHostedEverywhere(t *testing.T) {
	for s := topology.SiteID(1); s <= topology.NumSites; s++ {
		dm := New(s)
		assert.True(t, dm.Hosts(2))
	}
}

func TestReadGrantsLockAndReturnsCommittedValue(t *testing.T) {
	dm := New(1)
	value, granted, blockers := dm.Read(2, 10)
	assert.True(t, granted)
	assert.Nil(t, blockers)
	assert.Equal(t, topology.InitialValue(2), value)
}

func TestFailMakesEveryHostedVariableUnavailable(t *testing.T) {
	dm := New(1)
	dm.Fail()
	assert.Equal(t, Unavailable, dm.Status(2))
	_, granted, blockers := dm.Read(2, 10)
	assert.False(t, granted)
	assert.Nil(t, blockers)
}

func TestRecoverMarksReplicatedRecoveringAndUnreplicatedReady(t *testing.T) {
	home := topology.HomeSite(1)
	dm := New(home)
	dm.Fail()
	dm.Recover()

	assert.Equal(t, Recovering, dm.Status(2))
	assert.Equal(t, Ready, dm.Status(1))

	_, granted, _ := dm.Read(2, 10)
	assert.False(t, granted, "recovering replicated variable is not readable yet")
}

func TestCommitVarPromotesRecoveringToReady(t *testing.T) {
	dm := New(1)
	dm.Fail()
	dm.Recover()
	dm.CommitVar(2, 999, 5)

	assert.Equal(t, Ready, dm.Status(2))
	value, ok := dm.GetCommitted(2)
	assert.True(t, ok)
	assert.Equal(t, 999, value)
}

func TestReadFromSnapshotHonorsFailureWindow(t *testing.T) {
	dm := New(1)
	dm.CommitVar(2, 101, 5)
	dm.CommitVar(2, 102, 10)

	value, ok := dm.ReadFromSnapshot(2, 7, nil, nil)
	assert.True(t, ok)
	assert.Equal(t, 101, value)

	first, last := txn.Tick(3), txn.Tick(8)
	value, ok = dm.ReadFromSnapshot(2, 7, &first, &last)
	assert.False(t, ok, "a failure spanning [tick,start] disqualifies this version")

	first, last = txn.Tick(11), txn.Tick(20)
	value, ok = dm.ReadFromSnapshot(2, 7, &first, &last)
	assert.True(t, ok, "a failure strictly after start does not disqualify")
	assert.Equal(t, 101, value)
}
