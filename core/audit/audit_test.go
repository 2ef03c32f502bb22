package audit_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/audit"
	inmemdb "github.com/tatumdale/studystreaks/storage/database/inmem"
	testutil "github.com/tatumdale/studystreaks/tests"
)

type failingSink struct {
	err error
}

func (s *failingSink) Append(ctx context.Context, entry audit.Entry) error { return s.err }

func Test_Emitter_Record(t *testing.T) {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	sink := inmemdb.NewAuditSink(db)
	log := &testutil.Logger{}
	em := audit.NewEmitter(sink, log, core.NewTestConfig())

	err = em.Record(context.Background(), audit.EventLogin, "sch1", "u1", map[string]interface{}{"user_type": "teacher"})
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("sink holds %d entries; want 1", len(entries))
	}
	e := entries[0]
	if e.ID == "" || e.At.IsZero() {
		t.Errorf("Record() did not stamp the entry: %+v", e)
	}
	if e.Event != audit.EventLogin || e.SchoolID != "sch1" || e.ActorID != "u1" {
		t.Errorf("Record() stored %+v", e)
	}
}

func Test_Emitter_sinkFailureNeverFailsTheOperation(t *testing.T) {
	log := &testutil.Logger{}
	em := audit.NewEmitter(&failingSink{err: errors.New("disk full")}, log, core.NewTestConfig())

	if err := em.Record(context.Background(), audit.EventLogin, "sch1", "u1", nil); err != nil {
		t.Errorf("Record() = %v; want nil despite sink failure", err)
	}
	// the failure is degraded to the fallback log
	if len(log.Entries) == 0 {
		t.Error("sink failure was not logged")
	}
}

func Test_Emitter_criticalEventsRequireTheWrite(t *testing.T) {
	log := &testutil.Logger{}
	em := audit.NewEmitter(&failingSink{err: errors.New("disk full")}, log, core.NewTestConfig())

	for _, event := range []string{audit.EventDataExport, audit.EventBulkDelete} {
		if !em.IsCritical(event) {
			t.Errorf("IsCritical(%s) = false; want true", event)
		}
		if err := em.Record(context.Background(), event, "sch1", "u1", nil); err == nil {
			t.Errorf("Record(%s) = nil; want error when the sink write fails", event)
		}
	}

	if em.IsCritical(audit.EventLogin) {
		t.Error("IsCritical(login) = true; want false")
	}
}
