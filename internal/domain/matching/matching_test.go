package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
)

func examiner(id int64, busyness int, busy bool, problems ...int64) *member.Examiner {
	return &member.Examiner{ID: id, BusynessLevel: busyness, IsBusy: busy, Problems: problems}
}

func TestSelectExaminer_HighestBusynessWins(t *testing.T) {
	e1 := examiner(1, 2, false, 7)
	e2 := examiner(2, 5, false, 7)

	got := DefaultPolicy().SelectExaminer([]*member.Examiner{e1, e2}, 7)
	assert.Same(t, e2, got)
}

func TestSelectExaminer_AscendingPolicy(t *testing.T) {
	e1 := examiner(1, 2, false, 7)
	e2 := examiner(2, 5, false, 7)

	got := Policy{Order: BusynessAsc}.SelectExaminer([]*member.Examiner{e2, e1}, 7)
	assert.Same(t, e1, got)
}

func TestSelectExaminer_Filters(t *testing.T) {
	busy := examiner(1, 9, true, 7)
	other := examiner(2, 9, false, 8)
	capable := examiner(3, 0, false, 7, 8)

	got := DefaultPolicy().SelectExaminer([]*member.Examiner{busy, other, capable}, 7)
	assert.Same(t, capable, got)

	assert.Nil(t, DefaultPolicy().SelectExaminer([]*member.Examiner{busy, other}, 7))
	assert.Nil(t, DefaultPolicy().SelectExaminer(nil, 7))
}

func TestSelectExaminer_TieBreaksOnLowestID(t *testing.T) {
	a := examiner(5, 3, false, 1)
	b := examiner(4, 3, false, 1)

	got := DefaultPolicy().SelectExaminer([]*member.Examiner{a, b}, 1)
	assert.Same(t, b, got)
}

func TestSelectEntry_FIFOByID(t *testing.T) {
	x := examiner(1, 0, false, 2, 5)
	entries := []*queue.Entry{
		{ID: 30, ProblemID: 5, Status: queue.StatusWaiting},
		{ID: 10, ProblemID: 3, Status: queue.StatusWaiting},
		{ID: 20, ProblemID: 2, Status: queue.StatusWaiting},
		{ID: 5, ProblemID: 2, Status: queue.StatusDiscussing},
	}

	got := SelectEntry(entries, x)
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(20), got.ID)
	}

	assert.Nil(t, SelectEntry(entries, examiner(2, 0, false, 9)))
}
