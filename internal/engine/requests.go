package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"projectmarket/internal/domain"
	"projectmarket/internal/engine/auth"
	"projectmarket/internal/events"
	"projectmarket/internal/repo"
)

// CreateRequest applies to an open project. The insert itself is conditional
// on the project being open and the (project, solver) pair is unique in storage.
func (e Engine) CreateRequest(ctx context.Context, actor domain.User, projectID, message string) (domain.Request, error) {
	if err := auth.Authorize(subject(actor), auth.CapRequestCreate, auth.Resource{}); err != nil {
		return domain.Request{}, err
	}
	if strings.TrimSpace(projectID) == "" {
		return domain.Request{}, domain.Validationf("project id is required")
	}
	now := e.stamp()
	req := domain.Request{
		ID:              uuid.New().String(),
		ProjectID:       projectID,
		ProblemSolverID: actor.ID,
		Message:         strings.TrimSpace(message),
		Status:          domain.RequestPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := e.inTx(ctx, "create request", func(tx *sql.Tx) ([]transition, error) {
		err := e.Repo.InsertRequestIfOpenTx(ctx, tx, req)
		switch {
		case errors.Is(err, repo.ErrUniqueViolation):
			return nil, domain.Conflictf("you have already requested this project")
		case errors.Is(err, repo.ErrConditionFailed):
			p, gerr := e.Repo.GetProjectTx(ctx, tx, projectID)
			if gerr != nil {
				return nil, notFound(gerr, "project")
			}
			return nil, domain.InvalidStatef("project is %s, not open for requests", p.Status)
		case err != nil:
			return nil, err
		}
		return nil, e.appendEvents(ctx, tx, events.Entry{
			Type: events.RequestCreated, ProjectID: projectID, EntityKind: "request", EntityID: req.ID, ActorID: actor.ID,
		})
	})
	if err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

// ListRequestsForProject is visible to the owning buyer and admins.
func (e Engine) ListRequestsForProject(ctx context.Context, actor domain.User, projectID string) ([]domain.Request, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, e.fail("list requests", notFound(err, "project"))
	}
	if err := auth.Authorize(subject(actor), auth.CapRequestListProject, auth.Of(p)); err != nil {
		return nil, hideForeign(err, "project")
	}
	reqs, err := e.Repo.ListRequestsByProject(ctx, projectID)
	if err != nil {
		return nil, e.fail("list requests", err)
	}
	return reqs, nil
}

func (e Engine) ListMyRequests(ctx context.Context, actor domain.User) ([]domain.Request, error) {
	if err := auth.Authorize(subject(actor), auth.CapRequestListMine, auth.Resource{}); err != nil {
		return nil, err
	}
	reqs, err := e.Repo.ListRequestsBySolver(ctx, actor.ID)
	if err != nil {
		return nil, e.fail("list my requests", err)
	}
	return reqs, nil
}
