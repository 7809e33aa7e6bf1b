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
	"projectmarket/internal/repo"
)

type ProjectCreateOptions struct {
	Title       string
	Description string
	Budget      *float64
	Deadline    *string
	Skills      []string
	Attachments []string
}

// ProjectEditOptions holds buyer edits; nil fields are left unchanged.
type ProjectEditOptions struct {
	Title       *string
	Description *string
	Budget      *float64
	Deadline    *string
	Skills      *[]string
	Attachments *[]string
}

func checkBudget(b *float64) error {
	if b != nil && *b < 0 {
		return domain.Validationf("budget must not be negative")
	}
	return nil
}

func (e Engine) CreateProject(ctx context.Context, actor domain.User, opts ProjectCreateOptions) (domain.Project, error) {
	if err := auth.Authorize(subject(actor), auth.CapProjectCreate, auth.Resource{}); err != nil {
		return domain.Project{}, err
	}
	title := strings.TrimSpace(opts.Title)
	desc := strings.TrimSpace(opts.Description)
	if title == "" || desc == "" {
		return domain.Project{}, domain.Validationf("title and description are required")
	}
	if err := checkBudget(opts.Budget); err != nil {
		return domain.Project{}, err
	}
	now := e.stamp()
	p := domain.Project{
		ID:          uuid.New().String(),
		Title:       title,
		Description: desc,
		Budget:      opts.Budget,
		Deadline:    opts.Deadline,
		Skills:      cleanList(opts.Skills),
		Status:      domain.ProjectOpen,
		BuyerID:     actor.ID,
		Attachments: cleanList(opts.Attachments),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.inTx(ctx, "create project", func(tx *sql.Tx) ([]transition, error) {
		if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
			return nil, err
		}
		return nil, e.appendEvents(ctx, tx, events.Entry{
			Type: events.ProjectCreated, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: actor.ID,
			Payload: events.Payload{"title": p.Title},
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ownedOpenProject loads a project for a buyer-only mutation: foreign
// projects read as missing and anything but open is an invalid state.
func (e Engine) ownedOpenProject(ctx context.Context, tx *sql.Tx, actor domain.User, c auth.Capability, id string) (domain.Project, error) {
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return p, notFound(err, "project")
	}
	if err := auth.Authorize(subject(actor), c, auth.Of(p)); err != nil {
		return p, hideForeign(err, "project")
	}
	if p.Status != domain.ProjectOpen {
		return p, domain.InvalidStatef("project is %s, not open", p.Status)
	}
	return p, nil
}

func (e Engine) EditProject(ctx context.Context, actor domain.User, id string, opts ProjectEditOptions) (domain.Project, error) {
	patch := repo.ProjectPatch{
		Title:       trimmedPtr(opts.Title),
		Description: trimmedPtr(opts.Description),
		Budget:      opts.Budget,
		Deadline:    opts.Deadline,
	}
	if (patch.Title != nil && *patch.Title == "") || (patch.Description != nil && *patch.Description == "") {
		return domain.Project{}, domain.Validationf("title and description must not be empty")
	}
	if err := checkBudget(opts.Budget); err != nil {
		return domain.Project{}, err
	}
	if opts.Skills != nil {
		skills := cleanList(*opts.Skills)
		patch.Skills = &skills
	}
	if opts.Attachments != nil {
		att := cleanList(*opts.Attachments)
		patch.Attachments = &att
	}
	var out domain.Project
	err := e.inTx(ctx, "edit project", func(tx *sql.Tx) ([]transition, error) {
		if _, err := e.ownedOpenProject(ctx, tx, actor, auth.CapProjectEdit, id); err != nil {
			return nil, err
		}
		if patch.Empty() {
			return nil, domain.Validationf("nothing to update")
		}
		err := e.Repo.EditOpenProjectTx(ctx, tx, id, actor.ID, patch, e.stamp())
		if errors.Is(err, repo.ErrConditionFailed) {
			return nil, domain.InvalidStatef("project is no longer open")
		}
		if err != nil {
			return nil, err
		}
		if err := e.appendEvents(ctx, tx, events.Entry{
			Type: events.ProjectUpdated, ProjectID: id, EntityKind: "project", EntityID: id, ActorID: actor.ID,
		}); err != nil {
			return nil, err
		}
		out, err = e.Repo.GetProjectTx(ctx, tx, id)
		return nil, err
	})
	return out, err
}

// AssignProject accepts solverID's pending request, rejects every other
// pending request and assigns the project, all in one transaction.
func (e Engine) AssignProject(ctx context.Context, actor domain.User, projectID, solverID string) (domain.Project, error) {
	if strings.TrimSpace(solverID) == "" {
		return domain.Project{}, domain.Validationf("problem solver id is required")
	}
	var out domain.Project
	var rejected []string
	err := e.inTx(ctx, "assign project", func(tx *sql.Tx) ([]transition, error) {
		if _, err := e.ownedOpenProject(ctx, tx, actor, auth.CapProjectAssign, projectID); err != nil {
			return nil, err
		}
		req, err := e.Repo.GetRequestTx(ctx, tx, projectID, solverID)
		if err != nil {
			return nil, notFound(err, "request")
		}
		if req.Status != domain.RequestPending {
			return nil, domain.InvalidStatef("request is %s, not pending", req.Status)
		}
		now := e.stamp()
		ok, err := e.Repo.AcceptRequestTx(ctx, tx, projectID, solverID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.InvalidStatef("request is no longer pending")
		}
		rejected, err = e.Repo.RejectPendingRequestsTx(ctx, tx, projectID, now)
		if err != nil {
			return nil, err
		}
		ok, err = e.Repo.TransitionProjectTx(ctx, tx, repo.ProjectTransition{
			ID: projectID, From: domain.ProjectOpen, To: domain.ProjectAssigned,
			BuyerID: actor.ID, AssignTo: solverID, UpdatedAt: now,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.InvalidStatef("project is no longer open")
		}
		entries := []events.Entry{
			{Type: events.ProjectAssigned, ProjectID: projectID, EntityKind: "project", EntityID: projectID, ActorID: actor.ID,
				Payload: events.Payload{"assigned_to": solverID}},
			{Type: events.RequestAccepted, ProjectID: projectID, EntityKind: "request", EntityID: req.ID, ActorID: actor.ID},
		}
		changes := []transition{
			{entity: "project", id: projectID, from: string(domain.ProjectOpen), to: string(domain.ProjectAssigned)},
			{entity: "request", id: req.ID, from: string(domain.RequestPending), to: string(domain.RequestAccepted)},
		}
		for _, id := range rejected {
			entries = append(entries, events.Entry{Type: events.RequestRejected, ProjectID: projectID, EntityKind: "request", EntityID: id, ActorID: actor.ID})
			changes = append(changes, transition{entity: "request", id: id, from: string(domain.RequestPending), to: string(domain.RequestRejected)})
		}
		if err := e.appendEvents(ctx, tx, entries...); err != nil {
			return nil, err
		}
		out, err = e.Repo.GetProjectTx(ctx, tx, projectID)
		return changes, err
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.log().Info("project assigned",
		zap.String("project_id", projectID),
		zap.String("solver_id", solverID),
		zap.Int("rejected_requests", len(rejected)))
	return out, nil
}

// CancelProject withdraws an open project. Pending requests are left as they are.
func (e Engine) CancelProject(ctx context.Context, actor domain.User, id string) (domain.Project, error) {
	var out domain.Project
	err := e.inTx(ctx, "cancel project", func(tx *sql.Tx) ([]transition, error) {
		if _, err := e.ownedOpenProject(ctx, tx, actor, auth.CapProjectCancel, id); err != nil {
			return nil, err
		}
		ok, err := e.Repo.TransitionProjectTx(ctx, tx, repo.ProjectTransition{
			ID: id, From: domain.ProjectOpen, To: domain.ProjectCancelled, BuyerID: actor.ID, UpdatedAt: e.stamp(),
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.InvalidStatef("project is no longer open")
		}
		if err := e.appendEvents(ctx, tx, events.Entry{
			Type: events.ProjectCancelled, ProjectID: id, EntityKind: "project", EntityID: id, ActorID: actor.ID,
		}); err != nil {
			return nil, err
		}
		out, err = e.Repo.GetProjectTx(ctx, tx, id)
		return []transition{{entity: "project", id: id, from: string(domain.ProjectOpen), to: string(domain.ProjectCancelled)}}, err
	})
	return out, err
}

func (e Engine) GetProject(ctx context.Context, actor domain.User, id string) (domain.Project, error) {
	if err := auth.Authorize(subject(actor), auth.CapProjectRead, auth.Resource{}); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, e.fail("get project", notFound(err, "project"))
	}
	return p, nil
}

// ListProjects returns the projects visible to actor, newest first: buyers see
// their own, solvers see open ones plus those assigned to them, admins see all
// and everyone else sees open projects.
func (e Engine) ListProjects(ctx context.Context, actor domain.User) ([]domain.Project, error) {
	if err := auth.Authorize(subject(actor), auth.CapProjectRead, auth.Resource{}); err != nil {
		return nil, err
	}
	var f repo.ProjectFilters
	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleBuyer:
		f.BuyerID = actor.ID
	case domain.RoleProblemSolver:
		f.AssignedTo = actor.ID
		f.Statuses = []domain.ProjectStatus{domain.ProjectOpen}
	default:
		f.Statuses = []domain.ProjectStatus{domain.ProjectOpen}
	}
	projects, err := e.Repo.ListProjects(ctx, f)
	if err != nil {
		return nil, e.fail("list projects", err)
	}
	return projects, nil
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
