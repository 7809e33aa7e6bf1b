package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"projectmarket/internal/domain"
)

const (
	UserRegistered     = "user.registered"
	UserRoleChanged    = "user.role_changed"
	UserProfileUpdated = "user.profile_updated"
	ProjectCreated     = "project.created"
	ProjectUpdated     = "project.updated"
	ProjectCancelled   = "project.cancelled"
	ProjectAssigned    = "project.assigned"
	ProjectStarted     = "project.started"
	ProjectCompleted   = "project.completed"
	RequestCreated     = "request.created"
	RequestAccepted    = "request.accepted"
	RequestRejected    = "request.rejected"
	TaskCreated        = "task.created"
	TaskUpdated        = "task.updated"
	TaskDeleted        = "task.deleted"
	TaskCompleted      = "task.completed"
	SubmissionCreated  = "submission.created"
	SubmissionReviewed = "submission.reviewed"
)

// Writer appends audit rows inside the caller's transaction so an event exists
// iff the mutation it describes committed.
type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Entry describes one event row.
type Entry struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	payload := e.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(domain.TimeLayout), e.Type, nullable(e.ProjectID), e.EntityKind, nullable(e.EntityID), e.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", e.Type, err)
	}
	return nil
}

// AppendAll writes entries in order, stopping at the first failure.
func (w Writer) AppendAll(ctx context.Context, tx *sql.Tx, entries ...Entry) error {
	for _, e := range entries {
		if err := w.Append(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
