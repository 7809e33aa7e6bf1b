package domain

// Project and task state machines. Every status write in the engine is checked
// against these tables before it is issued as a conditional update.

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectOpen:       {ProjectAssigned, ProjectCancelled},
	ProjectAssigned:   {ProjectInProgress},
	ProjectInProgress: {ProjectCompleted},
}

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskTodo:       {TaskInProgress, TaskSubmitted},
	TaskInProgress: {TaskSubmitted},
	TaskSubmitted:  {TaskCompleted, TaskRejected},
	TaskRejected:   {TaskInProgress, TaskSubmitted},
}

// CanTransition reports whether the project may move from s to next.
func (s ProjectStatus) CanTransition(next ProjectStatus) bool {
	for _, to := range projectTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s ProjectStatus) Terminal() bool {
	return len(projectTransitions[s]) == 0
}

// HasAssignee reports whether a project in status s must carry assignedTo.
func (s ProjectStatus) HasAssignee() bool {
	return s == ProjectAssigned || s == ProjectInProgress || s == ProjectCompleted
}

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectOpen, ProjectAssigned, ProjectInProgress, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

// AcceptsTasks reports whether tasks may be created under a project in status s.
func (s ProjectStatus) AcceptsTasks() bool {
	return s == ProjectAssigned || s == ProjectInProgress
}

func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, to := range taskTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskSubmitted, TaskCompleted, TaskRejected:
		return true
	}
	return false
}

// Submittable reports whether a new submission may be created for a task in status s.
func (s TaskStatus) Submittable() bool {
	return s.CanTransition(TaskSubmitted)
}

// SubmittableTaskStatuses lists the statuses from which work may be submitted.
func SubmittableTaskStatuses() []TaskStatus {
	var out []TaskStatus
	for _, s := range []TaskStatus{TaskTodo, TaskInProgress, TaskSubmitted, TaskCompleted, TaskRejected} {
		if s.Submittable() {
			out = append(out, s)
		}
	}
	return out
}

// AllTasksCompleted is the completion predicate: a non-empty set where every task is completed.
func AllTasksCompleted(statuses []TaskStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s != TaskCompleted {
			return false
		}
	}
	return true
}
