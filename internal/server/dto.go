package server

import (
	"projectmarket/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Name     string `json:"name" minLength:"1"`
	Email    string `json:"email" minLength:"3"`
	Password string `json:"password" minLength:"6"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateProjectRequest struct {
	Title       string   `json:"title" minLength:"1"`
	Description string   `json:"description" minLength:"1"`
	Budget      *float64 `json:"budget,omitempty" minimum:"0"`
	Deadline    *string  `json:"deadline,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type EditProjectRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Budget      *float64  `json:"budget,omitempty" minimum:"0"`
	Deadline    *string   `json:"deadline,omitempty"`
	Skills      *[]string `json:"skills,omitempty"`
	Attachments *[]string `json:"attachments,omitempty"`
}

type AssignProjectRequest struct {
	ProblemSolverID string `json:"problem_solver_id" minLength:"1"`
}

type CreateRequestRequest struct {
	ProjectID string `json:"project_id" minLength:"1"`
	Message   string `json:"message,omitempty"`
}

type CreateTaskRequest struct {
	ProjectID   string   `json:"project_id" minLength:"1"`
	Title       string   `json:"title" minLength:"1"`
	Description string   `json:"description,omitempty"`
	Deadline    *string  `json:"deadline,omitempty"`
	Priority    string   `json:"priority,omitempty" enum:"low,medium,high"`
	Tags        []string `json:"tags,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

type UpdateTaskRequest struct {
	Status      *string   `json:"status,omitempty" enum:"todo,in_progress,submitted,completed,rejected"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Deadline    *string   `json:"deadline,omitempty"`
	Priority    *string   `json:"priority,omitempty" enum:"low,medium,high"`
	Tags        *[]string `json:"tags,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
}

type ReviewSubmissionRequest struct {
	Decision   string `json:"decision" enum:"accepted,rejected"`
	ReviewNote string `json:"review_note,omitempty"`
}

type SetRoleRequest struct {
	Role string `json:"role" enum:"admin,buyer,problem_solver,user"`
}

type UpdateProfileRequest struct {
	Bio        string   `json:"bio,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Experience string   `json:"experience,omitempty"`
	Portfolio  string   `json:"portfolio,omitempty"`
}

// Responses

type UserCountResponse struct {
	Count int `json:"count"`
}

type EventsResponse struct {
	Events     []domain.Event `json:"events"`
	NextCursor int64          `json:"next_cursor,omitempty"`
}

type body[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *body[T] {
	return &body[T]{Body: v}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
