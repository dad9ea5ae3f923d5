package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

func createOlymp(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	var id int64
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		o, err := olymp.New(name)
		if err != nil {
			return err
		}
		if err := tx.Olymps().Create(ctx, o); err != nil {
			return err
		}
		id = o.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

func TestStore_CommitAndRollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	first := createOlymp(t, s, "Осенняя")

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		o, _ := olymp.New("Зимняя")
		require.NoError(t, tx.Olymps().Create(ctx, o))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		current, err := tx.Olymps().GetCurrent(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, current.ID, "rolled back olymp must not be visible")
		assert.Equal(t, "Осенняя", current.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_DuplicateName(t *testing.T) {
	s := NewStore()
	createOlymp(t, s, "Весенняя")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		o, _ := olymp.New("Весенняя")
		return tx.Olymps().Create(ctx, o)
	})
	require.Error(t, err)
	assert.True(t, shared.IsConstraintViolation(err))
	assert.True(t, shared.IsUserFacing(err))
}

func TestStore_SharedSequence(t *testing.T) {
	s := NewStore()
	a := createOlymp(t, s, "A")
	b := createOlymp(t, s, "B")
	assert.Equal(t, a+1, b)
}

func TestStore_GetUnfinished(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		_, err := tx.Olymps().GetUnfinished(ctx)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	id := createOlymp(t, s, "Летняя")
	err = s.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		o, err := tx.Olymps().GetUnfinished(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, o.ID)

		o.Status = olymp.StatusResults
		require.NoError(t, tx.Olymps().UpdateStatus(ctx, o))
		_, err = tx.Olymps().GetUnfinished(ctx)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_CanceledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(context.Context, port.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
