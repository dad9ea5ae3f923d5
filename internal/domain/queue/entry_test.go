package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

func TestEntry_Lifecycle(t *testing.T) {
	e := NewEntry(1, 2, 3)
	assert.Equal(t, StatusWaiting, e.Status)
	assert.Nil(t, e.ExaminerID)

	require.NoError(t, e.Assign(9))
	assert.Equal(t, StatusDiscussing, e.Status)
	assert.True(t, e.HasExaminer(9))

	assert.ErrorIs(t, e.Assign(10), shared.ErrAlreadyAssigned)

	require.NoError(t, e.Withdraw())
	assert.Equal(t, StatusWaiting, e.Status)
	assert.Nil(t, e.ExaminerID)

	assert.ErrorIs(t, e.Withdraw(), shared.ErrNotAssigned)
	assert.ErrorIs(t, e.Resolve(OutcomeSuccess), shared.ErrNotAssigned)

	require.NoError(t, e.Assign(10))
	require.NoError(t, e.Resolve(OutcomeFail))
	assert.Equal(t, StatusFail, e.Status)
	assert.True(t, e.Status.IsTerminal())
	assert.True(t, e.HasExaminer(10), "examiner stays recorded after judging")
}

func TestEntry_Leave(t *testing.T) {
	e := NewEntry(1, 2, 3)
	require.NoError(t, e.Leave())
	assert.Equal(t, StatusCanceled, e.Status)
	assert.ErrorIs(t, e.Leave(), shared.ErrNotQueued)

	d := NewEntry(1, 2, 3)
	require.NoError(t, d.Assign(5))
	assert.ErrorIs(t, d.Leave(), shared.ErrAlreadyAssigned)
	assert.Equal(t, StatusDiscussing, d.Status)
}

func TestEntry_Cancel(t *testing.T) {
	d := NewEntry(1, 2, 3)
	require.NoError(t, d.Assign(5))
	require.NoError(t, d.Cancel())
	assert.Equal(t, StatusCanceled, d.Status)
	assert.ErrorIs(t, d.Cancel(), shared.ErrNotQueued)
}

func TestEntry_ResolveRejectsUnknownOutcome(t *testing.T) {
	e := NewEntry(1, 2, 3)
	require.NoError(t, e.Assign(5))
	assert.ErrorIs(t, e.Resolve(Outcome("maybe")), shared.ErrValidation)
	assert.Equal(t, StatusDiscussing, e.Status)
}

func TestAttemptsLeft(t *testing.T) {
	history := []*Entry{
		{ProblemID: 1, Status: StatusFail},
		{ProblemID: 1, Status: StatusCanceled},
		{ProblemID: 2, Status: StatusFail},
		{ProblemID: 1, Status: StatusFail},
	}
	assert.Equal(t, 1, AttemptsLeft(history, 1))
	assert.Equal(t, 2, AttemptsLeft(history, 2))
	assert.Equal(t, 3, AttemptsLeft(history, 3))

	history = append(history, &Entry{ProblemID: 1, Status: StatusFail}, &Entry{ProblemID: 1, Status: StatusFail})
	assert.Equal(t, 0, AttemptsLeft(history, 1), "never negative")
}

func TestIsSolved(t *testing.T) {
	history := []*Entry{
		{ProblemID: 1, Status: StatusFail},
		{ProblemID: 1, Status: StatusSuccess},
		{ProblemID: 2, Status: StatusDiscussing},
	}
	assert.True(t, IsSolved(history, 1))
	assert.False(t, IsSolved(history, 2))
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusWaiting.IsActive())
	assert.True(t, StatusDiscussing.IsActive())
	assert.False(t, StatusSuccess.IsActive())
	assert.True(t, StatusCanceled.IsTerminal())
	assert.False(t, Status("lost").IsValid())
}
