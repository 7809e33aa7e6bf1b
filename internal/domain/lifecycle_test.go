package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"projectmarket/internal/domain"
)

func TestProjectTransitionsAreForwardOnly(t *testing.T) {
	order := []domain.ProjectStatus{domain.ProjectOpen, domain.ProjectAssigned, domain.ProjectInProgress, domain.ProjectCompleted}
	for i, from := range order {
		for j, to := range order {
			if j <= i {
				assert.Falsef(t, from.CanTransition(to), "%s -> %s must not be allowed", from, to)
			}
		}
	}
	assert.True(t, domain.ProjectOpen.CanTransition(domain.ProjectCancelled))
	assert.False(t, domain.ProjectAssigned.CanTransition(domain.ProjectCancelled))
	assert.True(t, domain.ProjectCompleted.Terminal())
	assert.True(t, domain.ProjectCancelled.Terminal())
	assert.False(t, domain.ProjectInProgress.Terminal())
}

func TestProjectAssigneeStatuses(t *testing.T) {
	assert.False(t, domain.ProjectOpen.HasAssignee())
	assert.False(t, domain.ProjectCancelled.HasAssignee())
	assert.True(t, domain.ProjectAssigned.HasAssignee())
	assert.True(t, domain.ProjectInProgress.HasAssignee())
	assert.True(t, domain.ProjectCompleted.HasAssignee())
}

func TestTaskTransitions(t *testing.T) {
	cases := []struct {
		from, to domain.TaskStatus
		ok       bool
	}{
		{domain.TaskTodo, domain.TaskInProgress, true},
		{domain.TaskTodo, domain.TaskSubmitted, true},
		{domain.TaskInProgress, domain.TaskSubmitted, true},
		{domain.TaskRejected, domain.TaskSubmitted, true},
		{domain.TaskRejected, domain.TaskInProgress, true},
		{domain.TaskSubmitted, domain.TaskCompleted, true},
		{domain.TaskSubmitted, domain.TaskRejected, true},
		{domain.TaskCompleted, domain.TaskRejected, false},
		{domain.TaskCompleted, domain.TaskSubmitted, false},
		{domain.TaskTodo, domain.TaskCompleted, false},
		{domain.TaskInProgress, domain.TaskTodo, false},
		{domain.TaskSubmitted, domain.TaskSubmitted, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.ElementsMatch(t, []domain.TaskStatus{domain.TaskTodo, domain.TaskInProgress, domain.TaskRejected}, domain.SubmittableTaskStatuses())
}

func TestAllTasksCompleted(t *testing.T) {
	assert.False(t, domain.AllTasksCompleted(nil))
	assert.True(t, domain.AllTasksCompleted([]domain.TaskStatus{domain.TaskCompleted}))
	assert.True(t, domain.AllTasksCompleted([]domain.TaskStatus{domain.TaskCompleted, domain.TaskCompleted}))
	assert.False(t, domain.AllTasksCompleted([]domain.TaskStatus{domain.TaskCompleted, domain.TaskSubmitted}))
	assert.False(t, domain.AllTasksCompleted([]domain.TaskStatus{domain.TaskRejected}))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, domain.KindConflict, domain.KindOf(domain.Conflictf("dup")))
	assert.Equal(t, domain.KindInternal, domain.KindOf(assert.AnError))
	assert.Equal(t, domain.KindInternal, domain.KindOf(domain.Internal(assert.AnError)))
	assert.True(t, domain.IsKind(domain.NotFoundf("x"), domain.KindNotFound))
	assert.ErrorIs(t, domain.Internal(assert.AnError), assert.AnError)
}
