package engine

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"projectmarket/internal/domain"
	"projectmarket/internal/events"
	"projectmarket/internal/repo"
)

// TaskCompleted is raised inside the transaction that moved a task to completed.
type TaskCompleted struct {
	TaskID    string
	ProjectID string
	ActorID   string
}

// taskCompleted records the event and runs the completion cascade for it.
func (e Engine) taskCompleted(ctx context.Context, tx *sql.Tx, evt TaskCompleted) ([]transition, error) {
	if err := e.appendEvents(ctx, tx, events.Entry{
		Type: events.TaskCompleted, ProjectID: evt.ProjectID, EntityKind: "task", EntityID: evt.TaskID, ActorID: evt.ActorID,
	}); err != nil {
		return nil, err
	}
	return e.cascade(ctx, tx, evt.ProjectID, evt.ActorID)
}

// cascade completes the project once every one of its tasks is completed.
// Re-running it is a no-op.
func (e Engine) cascade(ctx context.Context, tx *sql.Tx, projectID, actorID string) ([]transition, error) {
	statuses, err := e.Repo.TaskStatusesTx(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if !domain.AllTasksCompleted(statuses) {
		return nil, nil
	}
	moved, err := e.Repo.TransitionProjectTx(ctx, tx, repo.ProjectTransition{
		ID: projectID, From: domain.ProjectInProgress, To: domain.ProjectCompleted, UpdatedAt: e.stamp(),
	})
	if err != nil || !moved {
		return nil, err
	}
	if err := e.appendEvents(ctx, tx, events.Entry{
		Type: events.ProjectCompleted, ProjectID: projectID, EntityKind: "project", EntityID: projectID, ActorID: actorID,
		Payload: events.Payload{"tasks": len(statuses)},
	}); err != nil {
		return nil, err
	}
	e.log().Info("project completed by cascade", zap.String("project_id", projectID), zap.Int("tasks", len(statuses)))
	return []transition{{entity: "project", id: projectID, from: string(domain.ProjectInProgress), to: string(domain.ProjectCompleted)}}, nil
}

// CompletionCascade re-evaluates a project's completion in its own transaction
// and returns the project as it stands afterwards.
func (e Engine) CompletionCascade(ctx context.Context, projectID string) (domain.Project, error) {
	var out domain.Project
	err := e.inTx(ctx, "completion cascade", func(tx *sql.Tx) ([]transition, error) {
		if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
			return nil, notFound(err, "project")
		}
		changes, err := e.cascade(ctx, tx, projectID, "system")
		if err != nil {
			return nil, err
		}
		out, err = e.Repo.GetProjectTx(ctx, tx, projectID)
		return changes, err
	})
	return out, err
}
