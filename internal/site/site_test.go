package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsUp(t *testing.T) {
	s := New(1)
	assert.Equal(t, Up, s.Status)
}

func TestFailTransitionsDownAndClearsLocks(t *testing.T) {
	s := New(1)
	s.DM.Locks.AcquireWrite(2, 100)

	s.Fail()
	assert.Equal(t, Down, s.Status)
	_, ok := s.DM.Locks.Get(2)
	assert.False(t, ok)
}

func TestRecoverTransitionsToRecovering(t *testing.T) {
	s := New(1)
	s.Fail()
	s.Recover()
	assert.Equal(t, Recovering, s.Status)
}

func TestRecordFirstAccessOnlyStampsOnce(t *testing.T) {
	s := New(1)
	s.RecordFirstAccess(10, 5)
	s.RecordFirstAccess(10, 99)
	assert.Equal(t, int64(5), int64(s.FirstAccessTime[10]))
}
