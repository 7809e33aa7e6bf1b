package auth

import (
	"fmt"

	"projectmarket/internal/domain"
)

// ForbiddenError indicates the subject may not use a capability on a resource.
type ForbiddenError struct {
	Capability Capability
	Reason     string
	// Ownership is set when the role was acceptable but the subject is not
	// related to the resource. Callers that hide foreign resources report
	// these as not found.
	Ownership bool
}

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("capability %s not granted", e.Capability)
}

func (e ForbiddenError) Kind() domain.ErrorKind { return domain.KindForbidden }

// Subject is the authenticated caller.
type Subject struct {
	UserID string
	Role   domain.Role
}

// Resource carries the ownership facts of the entity being acted on.
// Empty fields never match.
type Resource struct {
	BuyerID    string
	AssignedTo string
	CreatedBy  string
}

// Of returns the resource facts of a project.
func Of(p domain.Project) Resource {
	r := Resource{BuyerID: p.BuyerID}
	if p.AssignedTo != nil {
		r.AssignedTo = *p.AssignedTo
	}
	return r
}

// OfTask returns the resource facts of a task under project p.
func OfTask(p domain.Project, t domain.Task) Resource {
	r := Of(p)
	r.CreatedBy = t.CreatedBy
	return r
}

func (r Resource) holds(rel Relation, userID string) bool {
	if userID == "" {
		return false
	}
	switch rel {
	case RelOwner:
		return r.BuyerID == userID
	case RelAssignee:
		return r.AssignedTo == userID
	case RelCreator:
		return r.CreatedBy == userID
	}
	return false
}

// Authorize checks s against the capability table. It returns nil or a
// ForbiddenError.
func Authorize(s Subject, c Capability, r Resource) error {
	rule, ok := capabilities[c]
	if !ok {
		return ForbiddenError{Capability: c, Reason: fmt.Sprintf("unknown capability %s", c)}
	}
	if s.Role == domain.RoleAdmin && rule.AdminBypass {
		return nil
	}
	if !rule.allowsRole(s.Role) {
		return ForbiddenError{Capability: c, Reason: rule.roleReason()}
	}
	if len(rule.Relations) == 0 {
		return nil
	}
	for _, rel := range rule.Relations {
		if r.holds(rel, s.UserID) {
			return nil
		}
	}
	return ForbiddenError{Capability: c, Reason: rule.relationReason(), Ownership: true}
}
