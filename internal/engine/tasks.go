package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"projectmarket/internal/domain"
	"projectmarket/internal/engine/auth"
	"projectmarket/internal/events"
	"projectmarket/internal/repo"
)

type TaskCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	Deadline    *string
	Priority    domain.Priority
	Tags        []string
	Notes       string
}

// TaskUpdateOptions is a task patch; nil fields are left unchanged.
type TaskUpdateOptions struct {
	Status      *domain.TaskStatus
	Title       *string
	Description *string
	Deadline    *string
	Priority    *domain.Priority
	Tags        *[]string
	Notes       *string
}

func (o TaskUpdateOptions) editsContent() bool {
	return o.Title != nil || o.Description != nil || o.Deadline != nil || o.Priority != nil || o.Tags != nil || o.Notes != nil
}

// CreateTask adds a task to an assigned project. The first task moves the
// project from assigned to in_progress.
func (e Engine) CreateTask(ctx context.Context, actor domain.User, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, domain.Validationf("title is required")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Priority.Valid() {
		return domain.Task{}, domain.Validationf("priority must be low, medium or high")
	}
	now := e.stamp()
	t := domain.Task{
		ID:          uuid.New().String(),
		ProjectID:   opts.ProjectID,
		CreatedBy:   actor.ID,
		Title:       title,
		Description: strings.TrimSpace(opts.Description),
		Deadline:    opts.Deadline,
		Status:      domain.TaskTodo,
		Metadata: domain.TaskMetadata{
			Priority: opts.Priority,
			Tags:     cleanList(opts.Tags),
			Notes:    strings.TrimSpace(opts.Notes),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := e.inTx(ctx, "create task", func(tx *sql.Tx) ([]transition, error) {
		p, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID)
		if err != nil {
			return nil, notFound(err, "project")
		}
		if !p.Status.AcceptsTasks() {
			return nil, domain.InvalidStatef("project is %s; tasks need an assigned project", p.Status)
		}
		if err := auth.Authorize(subject(actor), auth.CapTaskCreate, auth.Of(p)); err != nil {
			return nil, err
		}
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return nil, err
		}
		if err := e.appendEvents(ctx, tx, events.Entry{
			Type: events.TaskCreated, ProjectID: p.ID, EntityKind: "task", EntityID: t.ID, ActorID: actor.ID,
			Payload: events.Payload{"title": t.Title},
		}); err != nil {
			return nil, err
		}
		if p.Status != domain.ProjectAssigned {
			return nil, nil
		}
		started, err := e.Repo.TransitionProjectTx(ctx, tx, repo.ProjectTransition{
			ID: p.ID, From: domain.ProjectAssigned, To: domain.ProjectInProgress, UpdatedAt: now,
		})
		if err != nil || !started {
			return nil, err
		}
		if err := e.appendEvents(ctx, tx, events.Entry{
			Type: events.ProjectStarted, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: actor.ID,
		}); err != nil {
			return nil, err
		}
		return []transition{{entity: "project", id: p.ID, from: string(domain.ProjectAssigned), to: string(domain.ProjectInProgress)}}, nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTask applies a patch according to the caller's part in the task: the
// creator edits content and starts work, the owning buyer accepts or rejects
// submitted work, admins may do either.
func (e Engine) UpdateTask(ctx context.Context, actor domain.User, id string, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Status == nil && !opts.editsContent() {
		return domain.Task{}, domain.Validationf("nothing to update")
	}
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return domain.Task{}, domain.Validationf("title must not be empty")
	}
	if opts.Priority != nil && !opts.Priority.Valid() {
		return domain.Task{}, domain.Validationf("priority must be low, medium or high")
	}
	var out domain.Task
	err := e.inTx(ctx, "update task", func(tx *sql.Tx) ([]transition, error) {
		t, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return nil, notFound(err, "task")
		}
		p, err := e.Repo.GetProjectTx(ctx, tx, t.ProjectID)
		if err != nil {
			return nil, err
		}
		role, err := auth.ResolveTaskActor(subject(actor), auth.OfTask(p, t))
		if err != nil {
			return nil, err
		}
		if opts.editsContent() {
			if err := auth.CheckTaskContentEdit(role, t.Status); err != nil {
				return nil, err
			}
		}
		if opts.Status != nil {
			if err := auth.CheckTaskStatus(role, t.Status, *opts.Status); err != nil {
				return nil, err
			}
		}
		ok, err := e.Repo.UpdateTaskTx(ctx, tx, repo.TaskUpdate{
			ID:          id,
			Expect:      t.Status,
			Status:      opts.Status,
			Title:       trimmedPtr(opts.Title),
			Description: trimmedPtr(opts.Description),
			Deadline:    opts.Deadline,
			Priority:    opts.Priority,
			Tags:        cleanListPtr(opts.Tags),
			Notes:       trimmedPtr(opts.Notes),
			UpdatedAt:   e.stamp(),
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.InvalidStatef("task changed while updating; retry")
		}
		payload := events.Payload{"by": string(role)}
		if opts.Status != nil {
			payload["from"] = t.Status
			payload["to"] = *opts.Status
		}
		if err := e.appendEvents(ctx, tx, events.Entry{
			Type: events.TaskUpdated, ProjectID: t.ProjectID, EntityKind: "task", EntityID: id, ActorID: actor.ID, Payload: payload,
		}); err != nil {
			return nil, err
		}
		var changes []transition
		if opts.Status != nil && *opts.Status != t.Status {
			changes = append(changes, transition{entity: "task", id: id, from: string(t.Status), to: string(*opts.Status)})
		}
		if verdict, ok := submissionVerdict(t.Status, opts.Status); ok {
			subID, settled, err := e.Repo.SettleLatestSubmissionTx(ctx, tx, id, verdict, e.stamp())
			if err != nil {
				return nil, err
			}
			if settled {
				if err := e.appendEvents(ctx, tx, events.Entry{
					Type: events.SubmissionReviewed, ProjectID: t.ProjectID, EntityKind: "submission", EntityID: subID, ActorID: actor.ID,
					Payload: events.Payload{"decision": verdict, "task_id": id},
				}); err != nil {
					return nil, err
				}
				changes = append(changes, transition{entity: "submission", id: subID, from: string(domain.SubmissionPending), to: string(verdict)})
			}
		}
		if opts.Status != nil && *opts.Status == domain.TaskCompleted {
			more, err := e.taskCompleted(ctx, tx, TaskCompleted{TaskID: id, ProjectID: t.ProjectID, ActorID: actor.ID})
			if err != nil {
				return nil, err
			}
			changes = append(changes, more...)
		}
		out, err = e.Repo.GetTaskTx(ctx, tx, id)
		return changes, err
	})
	return out, err
}

// submissionVerdict maps an owner verdict on submitted work to the decision
// its pending submission receives.
func submissionVerdict(from domain.TaskStatus, to *domain.TaskStatus) (domain.SubmissionStatus, bool) {
	if from != domain.TaskSubmitted || to == nil {
		return "", false
	}
	switch *to {
	case domain.TaskCompleted:
		return domain.SubmissionAccepted, true
	case domain.TaskRejected:
		return domain.SubmissionRejected, true
	}
	return "", false
}

// DeleteTask removes a task its creator has not started yet.
func (e Engine) DeleteTask(ctx context.Context, actor domain.User, id string) error {
	return e.inTx(ctx, "delete task", func(tx *sql.Tx) ([]transition, error) {
		t, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return nil, notFound(err, "task")
		}
		p, err := e.Repo.GetProjectTx(ctx, tx, t.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := auth.Authorize(subject(actor), auth.CapTaskDelete, auth.OfTask(p, t)); err != nil {
			return nil, hideForeign(err, "task")
		}
		if t.Status != domain.TaskTodo {
			return nil, domain.InvalidStatef("only todo tasks can be deleted; task is %s", t.Status)
		}
		ok, err := e.Repo.DeleteTodoTaskTx(ctx, tx, id, actor.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.InvalidStatef("task changed while deleting; retry")
		}
		return nil, e.appendEvents(ctx, tx, events.Entry{
			Type: events.TaskDeleted, ProjectID: t.ProjectID, EntityKind: "task", EntityID: id, ActorID: actor.ID,
		})
	})
}

// ListTasks is visible to the owning buyer, the assigned solver and admins.
func (e Engine) ListTasks(ctx context.Context, actor domain.User, projectID string) ([]domain.Task, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, e.fail("list tasks", notFound(err, "project"))
	}
	if err := auth.Authorize(subject(actor), auth.CapTaskList, auth.Of(p)); err != nil {
		return nil, err
	}
	tasks, err := e.Repo.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, e.fail("list tasks", err)
	}
	return tasks, nil
}

func (e Engine) GetTask(ctx context.Context, actor domain.User, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, e.fail("get task", notFound(err, "task"))
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Task{}, e.fail("get task", err)
	}
	if err := auth.Authorize(subject(actor), auth.CapTaskList, auth.Of(p)); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func cleanListPtr(items *[]string) *[]string {
	if items == nil {
		return nil
	}
	out := cleanList(*items)
	return &out
}
