package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	err := NewDomainError("queue", "Join", ErrAlreadyQueued, "Ты уже стоишь в очереди")

	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.NotErrorIs(t, err, ErrNotQueued)
	assert.Equal(t, "queue.Join: Ты уже стоишь в очереди", err.Error())

	wrapped := fmt.Errorf("engine: %w", err)
	assert.True(t, IsUserFacing(wrapped))
	assert.Equal(t, "Ты уже стоишь в очереди", UserMessage(wrapped))
}

func TestWrapError(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("member", "Create", ErrConstraintViolation, "Пользователь уже существует", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConstraintViolation)
	assert.True(t, IsConstraintViolation(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIsUserFacing(t *testing.T) {
	assert.False(t, IsUserFacing(nil))
	assert.False(t, IsUserFacing(errors.New("dial tcp: refused")))
	assert.True(t, IsUserFacing(ErrProblemNumberOutOfRange))
	assert.ErrorIs(t, ErrProblemNumberOutOfRange, ErrProblemNotUnlocked)
	assert.True(t, IsNotFound(NewDomainError("olymp", "Find", ErrNotFound, "")))
}

func TestUserMessage_FallsBackToKind(t *testing.T) {
	err := NewDomainError("queue", "Leave", ErrNotQueued, "")
	assert.Equal(t, "queue.Leave: ", UserMessage(err))
	assert.Equal(t, "plain", UserMessage(errors.New("plain")))
}
