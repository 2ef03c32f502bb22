package inmemdb

import (
	"context"

	"github.com/tatumdale/studystreaks/core/audit"
)

type AuditSink struct {
	db *DB
}

var _ audit.Sink = (*AuditSink)(nil) // interface compliance check

func NewAuditSink(db *DB) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) Append(ctx context.Context, entry audit.Entry) error {
	s.db.Lock()
	defer s.db.Unlock()
	s.db.auditLog = append(s.db.auditLog, entry)
	return nil
}

// Entries returns a snapshot of the appended entries, for assertions.
func (s *AuditSink) Entries() []audit.Entry {
	s.db.RLock()
	defer s.db.RUnlock()
	entries := make([]audit.Entry, len(s.db.auditLog))
	copy(entries, s.db.auditLog)
	return entries
}
