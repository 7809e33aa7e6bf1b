package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectmarket/internal/domain"
)

var (
	buyer  = Subject{UserID: "b1", Role: domain.RoleBuyer}
	other  = Subject{UserID: "b2", Role: domain.RoleBuyer}
	solver = Subject{UserID: "s1", Role: domain.RoleProblemSolver}
	admin  = Subject{UserID: "a1", Role: domain.RoleAdmin}
	plain  = Subject{UserID: "u1", Role: domain.RoleUser}
)

func forbidden(t *testing.T, err error) ForbiddenError {
	t.Helper()
	var fe ForbiddenError
	require.True(t, errors.As(err, &fe), "expected ForbiddenError, got %v", err)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
	return fe
}

func TestEveryCapabilityHasARule(t *testing.T) {
	for c, rule := range Rules() {
		assert.NotEmpty(t, rule.Roles, "capability %s", c)
	}
}

func TestProjectCapabilities(t *testing.T) {
	res := Resource{BuyerID: "b1"}
	assert.NoError(t, Authorize(buyer, CapProjectCreate, Resource{}))
	forbidden(t, Authorize(solver, CapProjectCreate, Resource{}))

	assert.NoError(t, Authorize(buyer, CapProjectEdit, res))
	fe := forbidden(t, Authorize(other, CapProjectEdit, res))
	assert.True(t, fe.Ownership)

	// admin cannot act as a buyer
	fe = forbidden(t, Authorize(admin, CapProjectAssign, res))
	assert.False(t, fe.Ownership)
	forbidden(t, Authorize(admin, CapProjectCreate, Resource{}))

	for _, s := range []Subject{buyer, solver, admin, plain} {
		assert.NoError(t, Authorize(s, CapProjectRead, res))
	}
}

func TestAdminBypassesOwnershipOnReads(t *testing.T) {
	res := Resource{BuyerID: "b1", AssignedTo: "s1", CreatedBy: "s1"}
	assert.NoError(t, Authorize(admin, CapRequestListProject, res))
	assert.NoError(t, Authorize(admin, CapTaskList, res))
	assert.NoError(t, Authorize(admin, CapSubmissionList, res))
	forbidden(t, Authorize(admin, CapSubmissionReview, res))
	forbidden(t, Authorize(admin, CapTaskCreate, res))
}

func TestTaskListVisibility(t *testing.T) {
	res := Resource{BuyerID: "b1", AssignedTo: "s1"}
	assert.NoError(t, Authorize(buyer, CapTaskList, res))
	assert.NoError(t, Authorize(solver, CapTaskList, res))
	forbidden(t, Authorize(other, CapTaskList, res))
	forbidden(t, Authorize(Subject{UserID: "s2", Role: domain.RoleProblemSolver}, CapTaskList, res))
	forbidden(t, Authorize(plain, CapTaskList, res))
}

func TestEmptyRelationNeverMatches(t *testing.T) {
	fe := forbidden(t, Authorize(Subject{Role: domain.RoleProblemSolver}, CapTaskCreate, Resource{}))
	assert.True(t, fe.Ownership)
}

func TestTaskPatchMatrix(t *testing.T) {
	cases := []struct {
		name  string
		actor TaskActor
		from  domain.TaskStatus
		to    domain.TaskStatus
		kind  domain.ErrorKind
	}{
		{"creator starts", ActorCreator, domain.TaskTodo, domain.TaskInProgress, ""},
		{"creator restarts rejected", ActorCreator, domain.TaskRejected, domain.TaskInProgress, ""},
		{"creator cannot submit directly", ActorCreator, domain.TaskInProgress, domain.TaskSubmitted, domain.KindForbidden},
		{"creator cannot complete", ActorCreator, domain.TaskSubmitted, domain.TaskCompleted, domain.KindForbidden},
		{"creator restart from submitted", ActorCreator, domain.TaskSubmitted, domain.TaskInProgress, domain.KindInvalidState},
		{"owner accepts", ActorOwner, domain.TaskSubmitted, domain.TaskCompleted, ""},
		{"owner rejects", ActorOwner, domain.TaskSubmitted, domain.TaskRejected, ""},
		{"owner before submit", ActorOwner, domain.TaskInProgress, domain.TaskCompleted, domain.KindInvalidState},
		{"owner cannot start", ActorOwner, domain.TaskTodo, domain.TaskInProgress, domain.KindForbidden},
		{"admin starts", ActorAdmin, domain.TaskTodo, domain.TaskInProgress, ""},
		{"admin accepts", ActorAdmin, domain.TaskSubmitted, domain.TaskCompleted, ""},
		{"admin before submit", ActorAdmin, domain.TaskTodo, domain.TaskCompleted, domain.KindInvalidState},
		{"unknown status", ActorAdmin, domain.TaskTodo, domain.TaskStatus("done"), domain.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckTaskStatus(tc.actor, tc.from, tc.to)
			if tc.kind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.kind, domain.KindOf(err))
		})
	}
	err := CheckTaskStatus(ActorOwner, domain.TaskTodo, domain.TaskRejected)
	assert.EqualError(t, err, "Task must be submitted first")
}

func TestResolveTaskActor(t *testing.T) {
	res := Resource{BuyerID: "b1", AssignedTo: "s1", CreatedBy: "s1"}
	a, err := ResolveTaskActor(solver, res)
	require.NoError(t, err)
	assert.Equal(t, ActorCreator, a)

	a, err = ResolveTaskActor(buyer, res)
	require.NoError(t, err)
	assert.Equal(t, ActorOwner, a)

	a, err = ResolveTaskActor(admin, res)
	require.NoError(t, err)
	assert.Equal(t, ActorAdmin, a)

	_, err = ResolveTaskActor(other, res)
	forbidden(t, err)
}

func TestContentEdits(t *testing.T) {
	forbidden(t, CheckTaskContentEdit(ActorOwner, domain.TaskTodo))
	assert.NoError(t, CheckTaskContentEdit(ActorCreator, domain.TaskSubmitted))
	assert.True(t, domain.IsKind(CheckTaskContentEdit(ActorCreator, domain.TaskCompleted), domain.KindInvalidState))
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)
	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))
}

func TestTokens(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tok := Tokens{Secret: []byte("k"), TTL: time.Hour, Now: func() time.Time { return now }}
	signed, exp, err := tok.Issue(domain.User{ID: "u1", Role: domain.RoleBuyer})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	sub, err := tok.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)

	_, err = Tokens{Secret: []byte("other"), Now: tok.Now}.Verify(signed)
	assert.Error(t, err)

	later := Tokens{Secret: []byte("k"), Now: func() time.Time { return now.Add(2 * time.Hour) }}
	_, err = later.Verify(signed)
	assert.Error(t, err)

	_, _, err = Tokens{}.Issue(domain.User{ID: "u1"})
	assert.Error(t, err)
}
