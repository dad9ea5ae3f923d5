package problem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

func TestLocate(t *testing.T) {
	tests := []struct {
		n, block, index int
	}{
		{1, 1, 0},
		{2, 1, 1},
		{3, 1, 2},
		{4, 2, 0},
		{6, 2, 2},
		{7, 3, 0},
		{9, 3, 2},
	}
	for _, tt := range tests {
		block, index, err := Locate(tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.block, block, "n=%d", tt.n)
		assert.Equal(t, tt.index, index, "n=%d", tt.n)
	}

	for _, n := range []int{-1, 0, 10} {
		_, _, err := Locate(n)
		assert.ErrorIs(t, err, shared.ErrProblemNotUnlocked, "n=%d", n)
	}
}

func TestParseBlockType(t *testing.T) {
	bt, err := ParseBlockType("SENIOR_2")
	require.NoError(t, err)
	assert.Equal(t, BlockType{Tier: TierSenior, Sequence: 2}, bt)
	assert.Equal(t, "senior_2", bt.String())

	for _, s := range []string{"junior", "junior_0", "junior_4", "middle_1", "junior_x"} {
		_, err := ParseBlockType(s)
		assert.ErrorIs(t, err, shared.ErrValidation, s)
	}
}

func TestTierOf(t *testing.T) {
	assert.Equal(t, TierJunior, TierOf(9))
	assert.Equal(t, TierSenior, TierOf(10))
	assert.Equal(t, TierSenior, TierOf(11))
}

func TestNewBlock(t *testing.T) {
	bt := BlockType{Tier: TierJunior, Sequence: 1}
	b, err := NewBlock(1, []int64{10, 11, 12}, &bt, " blocks/j1.pdf ")
	require.NoError(t, err)
	assert.Equal(t, [3]int64{10, 11, 12}, b.Problems)
	assert.Equal(t, "blocks/j1.pdf", b.Path)
	assert.True(t, b.Contains(11))
	assert.True(t, b.IsLast(12))
	assert.False(t, b.IsLast(10))
	assert.Equal(t, 2, b.Number(11))

	_, err = NewBlock(1, []int64{10, 11}, nil, "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewBlock(1, []int64{10, 10, 12}, nil, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestBlock_NumberUsesSequence(t *testing.T) {
	bt := BlockType{Tier: TierSenior, Sequence: 3}
	b := &Block{Problems: [3]int64{4, 5, 6}, Type: &bt}
	assert.Equal(t, 7, b.Number(4))
	assert.Equal(t, 9, b.Number(6))
	assert.Equal(t, 0, b.Number(1))

	untyped := &Block{Problems: [3]int64{4, 5, 6}}
	assert.Equal(t, 0, untyped.Number(4))
	assert.Equal(t, 0, untyped.Sequence())
}
