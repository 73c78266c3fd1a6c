// Adapted from github.com/Johniel/gorelly's transaction/log.go: the
// record-type/append shape is kept (there is no flush), but the backing store is
// swapped from an on-disk WAL to a logrus logger. This repo has no
// durable storage or TM crash recovery (spec Non-goals), so there is
// nothing to replay — the audit log exists purely so an operator can
// see what the coordinator did, the way original_source/*.py's
// logging.basicConfig calls do for every lifecycle event.
package coordinator

import (
	"github.com/sirupsen/logrus"

	"github.com/example/repcrec/internal/topology"
	"github.com/example/repcrec/internal/txn"
)

// EventType mirrors the teacher's LogRecordType enum, narrowed to the
// events this coordinator actually produces.
type EventType int

const (
	EventBegin EventType = iota
	EventCommit
	EventAbort
	EventFail
	EventRecover
	EventBlocked
)

// Event is one audit record; analogous to the teacher's LogRecord, minus
// the page-offset/before-after-image fields a WAL needs and has no use
// for here.
type Event struct {
	Type EventType
	Txn  txn.ID
	Site topology.SiteID
	Var  topology.VarID
	Tick txn.Tick
}

// AuditLog appends Events to a logrus.Logger. Unlike the teacher's
// LogManager it cannot fail to append (logrus never returns an error),
// so AppendEvent has no error return — callers that want the teacher's
// synchronous-flush-before-continuing guarantee don't need it, because
// there is nothing downstream that depends on the audit trail reaching
// disk before commit proceeds.
type AuditLog struct {
	logger *logrus.Logger
}

// NewAuditLog wraps logger (or logrus.StandardLogger() if nil) as an
// AuditLog.
func NewAuditLog(logger *logrus.Logger) *AuditLog {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditLog{logger: logger}
}

// AppendEvent records one lifecycle event.
func (a *AuditLog) AppendEvent(e Event) {
	fields := logrus.Fields{"tick": e.Tick}
	if e.Txn != 0 {
		fields["txn"] = e.Txn
	}
	if e.Site != 0 {
		fields["site"] = e.Site
	}
	if e.Var != 0 {
		fields["var"] = e.Var
	}
	entry := a.logger.WithFields(fields)
	switch e.Type {
	case EventBegin:
		entry.Debug("transaction began")
	case EventCommit:
		entry.Info("transaction committed")
	case EventAbort:
		entry.Info("transaction aborted")
	case EventFail:
		entry.Warn("site failed")
	case EventRecover:
		entry.Info("site recovered")
	case EventBlocked:
		entry.Debug("operation blocked")
	}
}
