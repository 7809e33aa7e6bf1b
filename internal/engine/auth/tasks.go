package auth

import (
	"projectmarket/internal/domain"
)

// TaskActor is the part a subject plays in a task update.
type TaskActor string

const (
	ActorCreator TaskActor = "creator"
	ActorOwner   TaskActor = "owner"
	ActorAdmin   TaskActor = "admin"
)

// taskPatches lists, per actor, the target statuses reachable by a direct
// task patch and the statuses each may be set from. Submitted is reached
// only by creating a submission.
var taskPatches = map[TaskActor]map[domain.TaskStatus][]domain.TaskStatus{
	ActorCreator: {
		domain.TaskInProgress: {domain.TaskTodo, domain.TaskRejected},
	},
	ActorOwner: {
		domain.TaskCompleted: {domain.TaskSubmitted},
		domain.TaskRejected:  {domain.TaskSubmitted},
	},
}

// ResolveTaskActor decides in which capacity s is patching a task.
func ResolveTaskActor(s Subject, r Resource) (TaskActor, error) {
	if err := Authorize(s, CapTaskUpdate, r); err != nil {
		return "", err
	}
	switch {
	case r.holds(RelCreator, s.UserID):
		return ActorCreator, nil
	case r.holds(RelOwner, s.UserID):
		return ActorOwner, nil
	case s.Role == domain.RoleAdmin:
		return ActorAdmin, nil
	}
	return "", ForbiddenError{Capability: CapTaskUpdate, Reason: "not allowed to update this task"}
}

func patchSources(actor TaskActor, to domain.TaskStatus) ([]domain.TaskStatus, bool) {
	if actor == ActorAdmin {
		var union []domain.TaskStatus
		found := false
		for _, a := range []TaskActor{ActorCreator, ActorOwner} {
			if from, ok := taskPatches[a][to]; ok {
				union = append(union, from...)
				found = true
			}
		}
		return union, found
	}
	from, ok := taskPatches[actor][to]
	return from, ok
}

// CheckTaskStatus validates a status patch from -> to by actor. A target the
// actor may never set is forbidden; a legal target from the wrong current
// status is an invalid state.
func CheckTaskStatus(actor TaskActor, from, to domain.TaskStatus) error {
	if !to.Valid() {
		return domain.Validationf("unknown task status %q", to)
	}
	sources, ok := patchSources(actor, to)
	if !ok {
		if to == domain.TaskSubmitted {
			return ForbiddenError{Capability: CapTaskUpdate, Reason: "tasks are submitted by creating a submission"}
		}
		return ForbiddenError{Capability: CapTaskUpdate, Reason: "not allowed to set task status " + string(to)}
	}
	for _, s := range sources {
		if s == from && from.CanTransition(to) {
			return nil
		}
	}
	if actor == ActorOwner || (actor == ActorAdmin && (to == domain.TaskCompleted || to == domain.TaskRejected)) {
		return domain.InvalidStatef("Task must be submitted first")
	}
	return domain.InvalidStatef("task cannot move from %s to %s", from, to)
}

// CheckTaskContentEdit validates edits to title, description, deadline or
// metadata.
func CheckTaskContentEdit(actor TaskActor, status domain.TaskStatus) error {
	if actor == ActorOwner {
		return ForbiddenError{Capability: CapTaskUpdate, Reason: "project owners may only change task status"}
	}
	if status == domain.TaskCompleted {
		return domain.InvalidStatef("completed tasks cannot be edited")
	}
	return nil
}
