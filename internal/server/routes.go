package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"projectmarket/internal/domain"
	"projectmarket/internal/engine"
	"projectmarket/internal/repo"
)

type idPath struct {
	ID string `path:"id"`
}

var commonErrors = []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "user-count",
		Method:      http.MethodGet,
		Path:        "/auth/user-count",
		Summary:     "Number of registered users",
	}, func(ctx context.Context, _ *struct{}) (*body[UserCountResponse], error) {
		n, err := e.UserCount(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(UserCountResponse{Count: n}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register an account",
		Description:   "The first account ever registered becomes the admin.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*body[engine.Session], error) {
		s, err := e.Register(ctx, engine.RegisterOptions{
			Name:     input.Body.Name,
			Email:    input.Body.Email,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*body[engine.Session], error) {
		s, err := e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*body[domain.User], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		return reply(u), nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects visible to the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Project], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		ps, err := e.ListProjects(ctx, u)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(ps)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *idPath) (*body[domain.Project], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		p, err := e.GetProject(ctx, u, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Post a project",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*body[domain.Project], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		p, err := e.CreateProject(ctx, u, engine.ProjectCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Budget:      input.Body.Budget,
			Deadline:    input.Body.Deadline,
			Skills:      input.Body.Skills,
			Attachments: input.Body.Attachments,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Edit an open project",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body EditProjectRequest `json:"body"`
	}) (*body[domain.Project], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		p, err := e.EditProject(ctx, u, input.ID, engine.ProjectEditOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Budget:      input.Body.Budget,
			Deadline:    input.Body.Deadline,
			Skills:      input.Body.Skills,
			Attachments: input.Body.Attachments,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}/assign",
		Summary:     "Assign a project to a requesting problem solver",
		Description: "Accepts that solver's request and rejects every other pending request for the project.",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body AssignProjectRequest `json:"body"`
	}) (*body[domain.Project], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		p, err := e.AssignProject(ctx, u, input.ID, input.Body.ProblemSolverID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}/cancel",
		Summary:     "Cancel an open project",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *idPath) (*body[domain.Project], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		p, err := e.CancelProject(ctx, u, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-project-requests",
		Method:      http.MethodGet,
		Path:        "/requests/project/{projectId}",
		Summary:     "List requests for a project",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
	}) (*body[[]domain.Request], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		reqs, err := e.ListRequestsForProject(ctx, u, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(reqs)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-requests",
		Method:      http.MethodGet,
		Path:        "/requests/mine",
		Summary:     "List the caller's requests",
		Errors:      commonErrors,
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Request], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		reqs, err := e.ListMyRequests(ctx, u)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(reqs)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Request to work on an open project",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateRequestRequest `json:"body"`
	}) (*body[domain.Request], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		r, err := e.CreateRequest(ctx, u, input.Body.ProjectID, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(r), nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/project/{projectId}",
		Summary:     "List a project's tasks",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectId"`
	}) (*body[[]domain.Task], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		tasks, err := e.ListTasks(ctx, u, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(tasks)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task on an assigned project",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*body[domain.Task], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		t, err := e.CreateTask(ctx, u, engine.TaskCreateOptions{
			ProjectID:   input.Body.ProjectID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Deadline:    input.Body.Deadline,
			Priority:    domain.Priority(input.Body.Priority),
			Tags:        input.Body.Tags,
			Notes:       input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update a task",
		Description: "The creator edits content and starts work; the owning buyer accepts or rejects submitted work.",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*body[domain.Task], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		opts := engine.TaskUpdateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Deadline:    input.Body.Deadline,
			Tags:        input.Body.Tags,
			Notes:       input.Body.Notes,
		}
		if input.Body.Status != nil {
			s := domain.TaskStatus(*input.Body.Status)
			opts.Status = &s
		}
		if input.Body.Priority != nil {
			p := domain.Priority(*input.Body.Priority)
			opts.Priority = &p
		}
		t, err := e.UpdateTask(ctx, u, input.ID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete a todo task",
		DefaultStatus: http.StatusNoContent,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteTask(ctx, u, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      commonErrors,
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.User], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		users, err := e.ListUsers(ctx, u)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(users)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-role",
		Method:      http.MethodPatch,
		Path:        "/users/{id}/role",
		Summary:     "Change a user's role",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body SetRoleRequest `json:"body"`
	}) (*body[domain.User], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		out, err := e.SetRole(ctx, u, input.ID, domain.Role(input.Body.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/users/profile",
		Summary:     "Replace the caller's problem solver profile",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest `json:"body"`
	}) (*body[domain.User], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		out, err := e.UpdateProfile(ctx, u, domain.Profile{
			Bio:        input.Body.Bio,
			Skills:     input.Body.Skills,
			Experience: input.Body.Experience,
			Portfolio:  input.Body.Portfolio,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get user",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *idPath) (*body[domain.User], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		out, err := e.GetUser(ctx, u, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(out), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List lifecycle events newest first",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0" maximum:"500"`
		Cursor     int64  `query:"cursor" minimum:"0"`
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*body[EventsResponse], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		f := repo.EventFilters{
			Limit:      input.Limit,
			Cursor:     input.Cursor,
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		}
		if f.Limit <= 0 {
			f.Limit = 50
		}
		evts, err := e.ListEvents(ctx, u, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := EventsResponse{Events: nonNil(evts)}
		if len(evts) == f.Limit {
			resp.NextCursor = evts[len(evts)-1].ID
		}
		return reply(resp), nil
	})
}
