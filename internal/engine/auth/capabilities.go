package auth

import (
	"fmt"
	"strings"

	"projectmarket/internal/domain"
)

type Capability string

const (
	CapProjectCreate      Capability = "project.create"
	CapProjectEdit        Capability = "project.edit"
	CapProjectAssign      Capability = "project.assign"
	CapProjectCancel      Capability = "project.cancel"
	CapProjectRead        Capability = "project.read"
	CapRequestCreate      Capability = "request.create"
	CapRequestListProject Capability = "request.list_project"
	CapRequestListMine    Capability = "request.list_mine"
	CapTaskCreate         Capability = "task.create"
	CapTaskUpdate         Capability = "task.update"
	CapTaskDelete         Capability = "task.delete"
	CapTaskList           Capability = "task.list"
	CapSubmissionCreate   Capability = "submission.create"
	CapSubmissionReview   Capability = "submission.review"
	CapSubmissionList     Capability = "submission.list"
	CapUserList           Capability = "user.list"
	CapUserSetRole        Capability = "user.set_role"
	CapUserRead           Capability = "user.read"
	CapProfileUpdate      Capability = "profile.update"
	CapEventList          Capability = "event.list"
)

// Relation ties a subject to a resource.
type Relation string

const (
	RelOwner    Relation = "owner"
	RelAssignee Relation = "assignee"
	RelCreator  Relation = "creator"
)

// Rule grants a capability to Roles, further restricted to subjects holding
// one of Relations when any are listed. AdminBypass lets admin skip both checks.
type Rule struct {
	Roles       []domain.Role
	Relations   []Relation
	AdminBypass bool
}

var (
	anyRole    = []domain.Role{domain.RoleAdmin, domain.RoleBuyer, domain.RoleProblemSolver, domain.RoleUser}
	buyers     = []domain.Role{domain.RoleBuyer}
	solvers    = []domain.Role{domain.RoleProblemSolver}
	admins     = []domain.Role{domain.RoleAdmin}
	buyerOrSol = []domain.Role{domain.RoleBuyer, domain.RoleProblemSolver}
)

var capabilities = map[Capability]Rule{
	CapProjectCreate:      {Roles: buyers},
	CapProjectEdit:        {Roles: buyers, Relations: []Relation{RelOwner}},
	CapProjectAssign:      {Roles: buyers, Relations: []Relation{RelOwner}},
	CapProjectCancel:      {Roles: buyers, Relations: []Relation{RelOwner}},
	CapProjectRead:        {Roles: anyRole},
	CapRequestCreate:      {Roles: solvers},
	CapRequestListProject: {Roles: buyers, Relations: []Relation{RelOwner}, AdminBypass: true},
	CapRequestListMine:    {Roles: solvers},
	CapTaskCreate:         {Roles: solvers, Relations: []Relation{RelAssignee}},
	CapTaskUpdate:         {Roles: buyerOrSol, Relations: []Relation{RelCreator, RelOwner}, AdminBypass: true},
	CapTaskDelete:         {Roles: solvers, Relations: []Relation{RelCreator}},
	CapTaskList:           {Roles: buyerOrSol, Relations: []Relation{RelOwner, RelAssignee}, AdminBypass: true},
	CapSubmissionCreate:   {Roles: solvers, Relations: []Relation{RelCreator}},
	CapSubmissionReview:   {Roles: buyers, Relations: []Relation{RelOwner}},
	CapSubmissionList:     {Roles: buyerOrSol, Relations: []Relation{RelCreator, RelOwner}, AdminBypass: true},
	CapUserList:           {Roles: admins},
	CapUserSetRole:        {Roles: admins},
	CapUserRead:           {Roles: anyRole},
	CapProfileUpdate:      {Roles: solvers},
	CapEventList:          {Roles: admins},
}

// Rules returns a copy of the capability table.
func Rules() map[Capability]Rule {
	out := make(map[Capability]Rule, len(capabilities))
	for k, v := range capabilities {
		out[k] = v
	}
	return out
}

func (r Rule) allowsRole(role domain.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func (r Rule) roleReason() string {
	names := make([]string, len(r.Roles))
	for i, role := range r.Roles {
		names[i] = string(role)
	}
	return fmt.Sprintf("requires role %s", strings.Join(names, " or "))
}

func (r Rule) relationReason() string {
	names := make([]string, len(r.Relations))
	for i, rel := range r.Relations {
		names[i] = string(rel)
	}
	return fmt.Sprintf("requires the %s of this resource", strings.Join(names, " or "))
}
