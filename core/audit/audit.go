package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tatumdale/studystreaks/core"
)

// Security-relevant events. The set is closed: storage sinks may index on it.
const (
	EventLogin                = "login"
	EventLoginFailed          = "login_failed"
	EventLogout               = "logout"
	EventAccountLocked        = "account_locked"
	EventAccountUnlocked      = "account_unlocked"
	EventPrincipalDeactivated = "principal_deactivated"
	EventTenantViolation      = "tenant_violation"
	EventPermissionGranted    = "permission_granted"
	EventPermissionRevoked    = "permission_revoked"
	EventEntityDeleted        = "entity_deleted"
	EventBulkDelete           = "bulk_delete"
	EventDataExport           = "data_export"
)

var NowFunc = time.Now // mockable

// Entry is an append-only audit record tied to a tenant and an actor.
// Entries are never updated or deleted except by retention expiry.
type Entry struct {
	ID       string                 `json:"id"`
	Event    string                 `json:"event"`
	SchoolID string                 `json:"school_id"`
	ActorID  string                 `json:"actor_id"`
	At       time.Time              `json:"at"` // UTC
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Sink persists audit entries. Append must be atomic per entry.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Emitter records security-relevant events. Sink failures never fail the
// operation being audited: the emitter degrades to the fallback logger and
// continues. The one exception is the configured allow-list of critical
// events, for which a successful sink write is a precondition.
type Emitter struct {
	sink     Sink
	log      core.Logger
	critical map[string]struct{}
}

func NewEmitter(sink Sink, log core.Logger, conf *core.Config) *Emitter {
	critical := make(map[string]struct{}, len(conf.Audit.CriticalEvents))
	for _, event := range conf.Audit.CriticalEvents {
		critical[event] = struct{}{}
	}
	return &Emitter{sink: sink, log: log, critical: critical}
}

// Record appends an audit entry. The returned error is always nil unless the
// event is on the critical allow-list and the sink write failed.
func (em *Emitter) Record(ctx context.Context, event, schoolID, actorID string, details map[string]interface{}) error {
	entry := Entry{
		ID:       uuid.New().String(),
		Event:    event,
		SchoolID: schoolID,
		ActorID:  actorID,
		At:       NowFunc().UTC(),
		Details:  details,
	}

	if err := em.sink.Append(ctx, entry); err != nil {
		// degrade to the fallback log and keep going
		em.log.Error("audit: sink append failed", err, entry)
		if em.IsCritical(event) {
			return errors.Wrapf(err, "audit write required for %s", event)
		}
	}
	return nil
}

// IsCritical reports whether audit-write success is a precondition for the
// operation accompanying `event`.
func (em *Emitter) IsCritical(event string) bool {
	_, ok := em.critical[event]
	return ok
}
