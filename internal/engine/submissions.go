package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"projectmarket/internal/domain"
	"projectmarket/internal/engine/auth"
	"projectmarket/internal/events"
	"projectmarket/internal/metrics"
	"projectmarket/internal/repo"
	"projectmarket/internal/storage"
)

type SubmitOptions struct {
	TaskID string
	Notes  string
	File   *storage.Upload
}

type ReviewOptions struct {
	Decision   domain.SubmissionStatus
	ReviewNote string
}

// SubmitWork stores the artifact and records a pending submission, moving the
// task to submitted. A rejected upload leaves the task untouched.
func (e Engine) SubmitWork(ctx context.Context, actor domain.User, opts SubmitOptions) (domain.Submission, error) {
	if opts.File == nil || opts.File.Body == nil {
		return domain.Submission{}, domain.Validationf("file is required")
	}
	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Submission{}, e.fail("submit work", notFound(err, "task"))
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Submission{}, e.fail("submit work", err)
	}
	if err := auth.Authorize(subject(actor), auth.CapSubmissionCreate, auth.OfTask(p, t)); err != nil {
		return domain.Submission{}, err
	}
	if !t.Status.Submittable() {
		return domain.Submission{}, domain.InvalidStatef("task is %s; work can be submitted only for todo, in_progress or rejected tasks", t.Status)
	}
	stored, err := e.Storage.Save(*opts.File)
	if err != nil {
		if domain.IsKind(err, domain.KindValidation) {
			e.Metrics.Upload(metrics.UploadRejected, 0)
		}
		return domain.Submission{}, e.fail("submit work", err)
	}

	now := e.stamp()
	sub := domain.Submission{
		ID:          uuid.New().String(),
		TaskID:      t.ID,
		SubmittedBy: actor.ID,
		FileName:    stored.Name,
		FilePath:    stored.Path,
		FileSize:    stored.Size,
		Notes:       strings.TrimSpace(opts.Notes),
		Status:      domain.SubmissionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = e.inTx(ctx, "submit work", func(tx *sql.Tx) ([]transition, error) {
		cur, err := e.Repo.GetTaskTx(ctx, tx, t.ID)
		if err != nil {
			return nil, notFound(err, "task")
		}
		if cur.CreatedBy != actor.ID {
			return nil, auth.ForbiddenError{Capability: auth.CapSubmissionCreate, Reason: "only the task creator can submit work"}
		}
		if !cur.Status.Submittable() {
			return nil, domain.InvalidStatef("task is %s; work can be submitted only for todo, in_progress or rejected tasks", cur.Status)
		}
		submitted := domain.TaskSubmitted
		ok, err := e.Repo.UpdateTaskTx(ctx, tx, repo.TaskUpdate{ID: cur.ID, Expect: cur.Status, Status: &submitted, UpdatedAt: now})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.InvalidStatef("task changed while submitting; retry")
		}
		// the project reference is taken from the task row, never from the caller
		sub.ProjectID = cur.ProjectID
		if err := e.Repo.InsertSubmissionTx(ctx, tx, sub); err != nil {
			return nil, err
		}
		if err := e.appendEvents(ctx, tx, events.Entry{
			Type: events.SubmissionCreated, ProjectID: cur.ProjectID, EntityKind: "submission", EntityID: sub.ID, ActorID: actor.ID,
			Payload: events.Payload{"task_id": cur.ID, "file": sub.FileName, "size": sub.FileSize},
		}); err != nil {
			return nil, err
		}
		return []transition{{entity: "task", id: cur.ID, from: string(cur.Status), to: string(domain.TaskSubmitted)}}, nil
	})
	if err != nil {
		if rmErr := e.Storage.Remove(stored); rmErr != nil {
			e.log().Warn("remove orphaned artifact", zap.String("path", stored.Path), zap.Error(rmErr))
		}
		return domain.Submission{}, err
	}
	e.Metrics.Upload(metrics.UploadAccepted, stored.Size)
	return sub, nil
}

// ReviewSubmission records the owning buyer's verdict on the latest
// submission of a task and moves the task to completed or rejected.
func (e Engine) ReviewSubmission(ctx context.Context, actor domain.User, id string, opts ReviewOptions) (domain.Submission, error) {
	var out domain.Submission
	err := e.inTx(ctx, "review submission", func(tx *sql.Tx) ([]transition, error) {
		sub, err := e.Repo.GetSubmissionTx(ctx, tx, id)
		if err != nil {
			return nil, notFound(err, "submission")
		}
		t, err := e.Repo.GetTaskTx(ctx, tx, sub.TaskID)
		if err != nil {
			return nil, err
		}
		if sub.ProjectID != t.ProjectID {
			return nil, errors.New("submission project does not match its task")
		}
		p, err := e.Repo.GetProjectTx(ctx, tx, t.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := auth.Authorize(subject(actor), auth.CapSubmissionReview, auth.OfTask(p, t)); err != nil {
			return nil, err
		}
		var next domain.TaskStatus
		switch opts.Decision {
		case domain.SubmissionAccepted:
			next = domain.TaskCompleted
		case domain.SubmissionRejected:
			next = domain.TaskRejected
		default:
			return nil, domain.Validationf("decision must be accepted or rejected")
		}
		if sub.Status != domain.SubmissionPending {
			return nil, domain.InvalidStatef("submission was already %s", sub.Status)
		}
		latest, err := e.Repo.LatestSubmissionIDTx(ctx, tx, t.ID)
		if err != nil {
			return nil, err
		}
		if latest != sub.ID {
			return nil, domain.InvalidStatef("only the latest submission of a task can be reviewed")
		}
		now := e.stamp()
		ok, err := e.Repo.ReviewSubmissionTx(ctx, tx, id, opts.Decision, strings.TrimSpace(opts.ReviewNote), now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.InvalidStatef("submission was reviewed concurrently")
		}
		ok, err = e.Repo.UpdateTaskTx(ctx, tx, repo.TaskUpdate{ID: t.ID, Expect: domain.TaskSubmitted, Status: &next, UpdatedAt: now})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.InvalidStatef("Task must be submitted first")
		}
		if err := e.appendEvents(ctx, tx, events.Entry{
			Type: events.SubmissionReviewed, ProjectID: t.ProjectID, EntityKind: "submission", EntityID: id, ActorID: actor.ID,
			Payload: events.Payload{"decision": opts.Decision, "task_id": t.ID},
		}); err != nil {
			return nil, err
		}
		changes := []transition{
			{entity: "submission", id: id, from: string(domain.SubmissionPending), to: string(opts.Decision)},
			{entity: "task", id: t.ID, from: string(domain.TaskSubmitted), to: string(next)},
		}
		if next == domain.TaskCompleted {
			more, err := e.taskCompleted(ctx, tx, TaskCompleted{TaskID: t.ID, ProjectID: t.ProjectID, ActorID: actor.ID})
			if err != nil {
				return nil, err
			}
			changes = append(changes, more...)
		}
		out, err = e.Repo.GetSubmissionTx(ctx, tx, id)
		return changes, err
	})
	return out, err
}

// ListSubmissions returns a task's submissions newest first; the first entry
// is the one under review.
func (e Engine) ListSubmissions(ctx context.Context, actor domain.User, taskID string) ([]domain.Submission, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, e.fail("list submissions", notFound(err, "task"))
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return nil, e.fail("list submissions", err)
	}
	if err := auth.Authorize(subject(actor), auth.CapSubmissionList, auth.OfTask(p, t)); err != nil {
		return nil, err
	}
	subs, err := e.Repo.ListSubmissionsByTask(ctx, taskID)
	if err != nil {
		return nil, e.fail("list submissions", err)
	}
	return subs, nil
}
