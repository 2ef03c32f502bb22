package database

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core/audit"
)

// AuditSink appends audit entries to the audit_logs table. The table is
// append-only; nothing in the app updates or deletes rows.
type AuditSink struct {
	db *sqlx.DB
}

var _ audit.Sink = (*AuditSink)(nil) // interface compliance check

func NewAuditSink(db *sqlx.DB) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) Append(ctx context.Context, entry audit.Entry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return errors.Wrap(err, "encoding audit details")
		}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_logs (id, event, school_id, actor_id, at, details) VALUES ($1, $2, $3, $4, $5, $6)",
		entry.ID, entry.Event, entry.SchoolID, entry.ActorID, entry.At, details,
	)
	return errors.Wrap(err, "inserting audit entry")
}
