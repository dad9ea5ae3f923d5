package olymp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

func TestNew(t *testing.T) {
	o, err := New("  Осенняя олимпиада ")
	require.NoError(t, err)
	assert.Equal(t, "Осенняя олимпиада", o.Name)
	assert.Equal(t, StatusTBA, o.Status)

	_, err = New("   ")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestOlymp_HappyPath(t *testing.T) {
	o := &Olymp{Status: StatusTBA}

	require.NoError(t, o.StartRegistration())
	assert.Equal(t, StatusRegistration, o.Status)

	require.NoError(t, o.StartContest())
	assert.Equal(t, StatusContest, o.Status)

	require.NoError(t, o.Finish(false))
	assert.Equal(t, StatusResults, o.Status)
}

func TestOlymp_FinishDrainsQueue(t *testing.T) {
	o := &Olymp{Status: StatusContest}

	require.NoError(t, o.Finish(true))
	assert.Equal(t, StatusQueue, o.Status)

	assert.False(t, o.CompleteDraining(true))
	assert.Equal(t, StatusQueue, o.Status)

	err := o.Finish(true)
	assert.ErrorIs(t, err, shared.ErrInvalidPhaseTransition)
	assert.Equal(t, StatusQueue, o.Status)

	assert.True(t, o.CompleteDraining(false))
	assert.Equal(t, StatusResults, o.Status)
	assert.False(t, o.CompleteDraining(false))
}

func TestOlymp_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		op     func(o *Olymp) error
	}{
		{"registration twice", StatusRegistration, (*Olymp).StartRegistration},
		{"registration after contest", StatusContest, (*Olymp).StartRegistration},
		{"contest from tba", StatusTBA, (*Olymp).StartContest},
		{"contest twice", StatusContest, (*Olymp).StartContest},
		{"contest after results", StatusResults, (*Olymp).StartContest},
		{"finish from tba", StatusTBA, func(o *Olymp) error { return o.Finish(false) }},
		{"finish from registration", StatusRegistration, func(o *Olymp) error { return o.Finish(true) }},
		{"finish twice", StatusResults, func(o *Olymp) error { return o.Finish(false) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Olymp{Status: tt.status}
			err := tt.op(o)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrInvalidPhaseTransition))
			assert.Equal(t, tt.status, o.Status, "status must not change on failure")
			assert.True(t, shared.IsUserFacing(err))
		})
	}
}

func TestOlymp_Guards(t *testing.T) {
	tests := []struct {
		status      Status
		register    bool
		join        bool
		examination bool
	}{
		{StatusTBA, true, false, false},
		{StatusRegistration, true, false, false},
		{StatusContest, false, true, true},
		{StatusQueue, false, false, true},
		{StatusResults, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			o := &Olymp{Status: tt.status}
			assert.Equal(t, tt.register, o.RequireRegistration("op") == nil)
			assert.Equal(t, tt.join, o.RequireQueueOpen("op") == nil)
			assert.Equal(t, tt.examination, o.RequireExamination("op") == nil)
		})
	}
}

func TestContextOf(t *testing.T) {
	assert.True(t, ContextOf(nil).IsZero())

	c := ContextOf(&Olymp{ID: 7, Name: "Весна", Status: StatusQueue})
	assert.Equal(t, Context{OlympID: 7, Name: "Весна", Status: StatusQueue}, c)
	assert.False(t, c.IsZero())
	assert.Equal(t, "QUEUE", c.Status.Label())
}
