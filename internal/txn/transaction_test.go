package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/repcrec/internal/topology"
)

func TestNewIsActiveAndRunning(t *testing.T) {
	tr := New(1, KindReadWrite, 5)
	assert.True(t, tr.IsActive())
	assert.Equal(t, Running, tr.Status)
	assert.Equal(t, Tick(5), tr.StartTick)
}

func TestBlockedIsStillActive(t *testing.T) {
	tr := New(1, KindReadWrite, 0)
	tr.Status = Blocked
	assert.True(t, tr.IsActive())
}

func TestCommittedAndAbortedAreNotActive(t *testing.T) {
	committed := New(1, KindReadWrite, 0)
	committed.Status = Committed
	assert.False(t, committed.IsActive())

	aborted := New(2, KindReadWrite, 0)
	aborted.Status = Aborted
	assert.False(t, aborted.IsActive())
}

func TestWriteThenUncommittedReadSeesOwnWrite(t *testing.T) {
	tr := New(1, KindReadWrite, 0)
	_, ok := tr.UncommittedRead(topology.VarID(1))
	assert.False(t, ok)

	tr.Write(1, 101)
	value, ok := tr.UncommittedRead(1)
	assert.True(t, ok)
	assert.Equal(t, 101, value)
}
