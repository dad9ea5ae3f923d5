package telegram

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/storage"
	"github.com/hselingforschool/olymp-queue-bot/pkg/circuitbreaker"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

const (
	participantChat = 1001
	examinerChat    = 2001
)

func newAnnouncer(t *testing.T, linker storage.Linker) (*fakeAPI, *Announcer) {
	t.Helper()
	api, client := newFakeAPI(t)
	return api, NewAnnouncer(client, linker, AnnouncerConfig{Logger: logger.Discard()})
}

func testParticipant(id int64, tg shared.TelegramID) member.Participant {
	return member.Participant{
		ID:      id,
		OlympID: 1,
		UserIdentity: member.UserIdentity{
			UserID:     id,
			TelegramID: tg,
			Handle:     shared.Handle(fmt.Sprintf("pupil%d", id)),
			Name:       "Иван",
			Surname:    "Петров",
		},
		Grade:           8,
		LastBlockNumber: 1,
	}
}

func testExaminer(tg shared.TelegramID) member.Examiner {
	return member.Examiner{
		ID:      50,
		OlympID: 1,
		UserIdentity: member.UserIdentity{
			UserID:     50,
			TelegramID: tg,
			Handle:     "teacher",
			Name:       "Мария",
			Surname:    "Иванова",
		},
		ConferenceLink: "https://meet.example/abc",
	}
}

func queueNotice(p member.Participant) port.QueueNotice {
	return port.QueueNotice{
		Olymp:       olymp.Context{OlympID: 1, Name: "Весенняя", Status: olymp.StatusContest},
		Participant: p,
		Entry:       queue.Entry{ID: 9, OlympID: 1, ParticipantID: p.ID, ProblemID: 3, Status: queue.StatusWaiting},
		Problem:     problem.Problem{ID: 3, OlympID: 1, Name: "Шахматы"},
		Number:      2,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE NOTICES
// ══════════════════════════════════════════════════════════════════════════════

func TestAnnouncer_QueueJoined(t *testing.T) {
	api, a := newAnnouncer(t, nil)

	err := a.QueueJoined(context.Background(), queueNotice(testParticipant(1, participantChat)))
	require.NoError(t, err)

	texts := api.textsTo(participantChat)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Ты записан в очередь")
	assert.Contains(t, texts[0], "задача 2 (_Шахматы_)")
}

func TestAnnouncer_SkipsUnlinkedMembers(t *testing.T) {
	api, a := newAnnouncer(t, nil)

	err := a.QueueLeft(context.Background(), queueNotice(testParticipant(1, 0)))
	require.NoError(t, err)
	assert.Empty(t, api.Calls("sendMessage"))
}

func TestAnnouncer_ExaminerAssigned(t *testing.T) {
	api, a := newAnnouncer(t, nil)

	n := port.AssignmentNotice{
		QueueNotice: queueNotice(testParticipant(1, participantChat)),
		Examiner:    testExaminer(examinerChat),
	}
	require.NoError(t, a.ExaminerAssigned(context.Background(), n))

	toParticipant := api.textsTo(participantChat)
	require.Len(t, toParticipant, 1)
	assert.Contains(t, toParticipant[0], "Мария Иванова")
	assert.Contains(t, toParticipant[0], "https://meet.example/abc")

	var toExaminer []apiCall
	for _, c := range api.Calls("sendMessage") {
		if c.chatID() == examinerChat {
			toExaminer = append(toExaminer, c)
		}
	}
	require.Len(t, toExaminer, 1)
	assert.Contains(t, toExaminer[0].text(), "Иван Петров")
	assert.Contains(t, toExaminer[0].Body, "reply_markup")
}

func TestAnnouncer_EntryJudged(t *testing.T) {
	tests := []struct {
		name     string
		outcome  queue.Outcome
		left     int
		unlocked int
		want     []string
	}{
		{"success", queue.OutcomeSuccess, 2, 0, []string{"принята!"}},
		{"success with block", queue.OutcomeSuccess, 2, 2, []string{"принята!", "открыт блок задач 2"}},
		{"fail", queue.OutcomeFail, 1, 0, []string{"не принята", "Осталась 1 попытка"}},
		{"fail last", queue.OutcomeFail, 0, 0, []string{"Попыток по этой задаче больше нет"}},
		{"canceled", queue.OutcomeCanceled, 3, 0, []string{"Сдача отменена", "Попытка не потрачена"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, a := newAnnouncer(t, nil)
			n := port.JudgementNotice{
				AssignmentNotice: port.AssignmentNotice{
					QueueNotice: queueNotice(testParticipant(1, participantChat)),
					Examiner:    testExaminer(examinerChat),
				},
				Outcome:       tt.outcome,
				AttemptsLeft:  tt.left,
				UnlockedBlock: tt.unlocked,
			}
			require.NoError(t, a.EntryJudged(context.Background(), n))

			texts := api.textsTo(participantChat)
			require.Len(t, texts, 1)
			for _, w := range tt.want {
				assert.Contains(t, texts[0], w)
			}
			assert.Empty(t, api.textsTo(examinerChat))
		})
	}
}

func TestAnnouncer_ExaminerWithdrawn(t *testing.T) {
	api, a := newAnnouncer(t, nil)
	n := port.WithdrawalNotice{
		AssignmentNotice: port.AssignmentNotice{
			QueueNotice: queueNotice(testParticipant(1, participantChat)),
			Examiner:    testExaminer(examinerChat),
		},
		Reason: port.WithdrawAbsent,
	}
	require.NoError(t, a.ExaminerWithdrawn(context.Background(), n))

	assert.Len(t, api.textsTo(participantChat), 1)
	toExaminer := api.textsTo(examinerChat)
	require.Len(t, toExaminer, 1)
	assert.Contains(t, toExaminer[0], "/free")
}

func TestAnnouncer_ErrorsAreJoined(t *testing.T) {
	api, a := newAnnouncer(t, nil)
	x := testExaminer(examinerChat)
	n := port.CancelNotice{
		QueueNotice: queueNotice(testParticipant(1, blockedChat)),
		Examiner:    &x,
	}

	err := a.EntryCanceled(context.Background(), n)
	require.Error(t, err)
	assert.True(t, IsUserBlocked(err))
	assert.Len(t, api.textsTo(examinerChat), 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// PHASES
// ══════════════════════════════════════════════════════════════════════════════

func TestAnnouncer_PhaseChanged_Queue(t *testing.T) {
	api, a := newAnnouncer(t, nil)
	queued := testParticipant(1, participantChat)
	idle := testParticipant(2, participantChat+1)
	unlinked := testParticipant(3, 0)

	err := a.PhaseChanged(context.Background(), port.PhaseNotice{
		Olymp:        olymp.Context{OlympID: 1, Status: olymp.StatusQueue},
		Previous:     olymp.StatusContest,
		Participants: []member.Participant{queued, idle, unlinked},
		Examiners:    []member.Examiner{testExaminer(examinerChat)},
		Queued:       map[int64]bool{queued.ID: true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{participantQueuedText}, api.textsTo(participantChat))
	assert.Equal(t, []string{participantFinishedText}, api.textsTo(participantChat+1))
	toExaminer := api.textsTo(examinerChat)
	require.Len(t, toExaminer, 1)
	assert.Contains(t, toExaminer[0], "работаем с очередью")
	assert.Len(t, api.Calls("sendMessage"), 3)
}

func TestAnnouncer_PhaseChanged_ContestAndResults(t *testing.T) {
	api, a := newAnnouncer(t, nil)
	p := testParticipant(1, participantChat)
	x := testExaminer(examinerChat)

	require.NoError(t, a.PhaseChanged(context.Background(), port.PhaseNotice{
		Olymp:        olymp.Context{OlympID: 1, Status: olymp.StatusContest},
		Previous:     olymp.StatusRegistration,
		Participants: []member.Participant{p},
		Examiners:    []member.Examiner{x},
	}))
	require.NoError(t, a.PhaseChanged(context.Background(), port.PhaseNotice{
		Olymp:     olymp.Context{OlympID: 1, Status: olymp.StatusResults},
		Previous:  olymp.StatusContest,
		Examiners: []member.Examiner{x},
	}))

	assert.Equal(t, []string{"Олимпиада началась! Можешь приступать к решению задач"}, api.textsTo(participantChat))
	assert.Equal(t, []string{
		"Олимпиада началась! Напиши /free и ожидай участников",
		"Олимпиада завершилась! Очередь пуста, так что можешь идти отдыхать",
	}, api.textsTo(examinerChat))
}

func TestAnnouncer_PhaseChanged_IgnoresOtherPhases(t *testing.T) {
	api, a := newAnnouncer(t, nil)

	err := a.PhaseChanged(context.Background(), port.PhaseNotice{
		Olymp:        olymp.Context{OlympID: 1, Status: olymp.StatusTBA},
		Participants: []member.Participant{testParticipant(1, participantChat)},
	})
	require.NoError(t, err)
	assert.Empty(t, api.Calls("sendMessage"))
}

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTION
// ══════════════════════════════════════════════════════════════════════════════

func juniorBlock(seq int, path string) problem.Block {
	return problem.Block{
		ID:       int64(seq),
		OlympID:  1,
		Problems: [problem.ProblemsPerBlock]int64{1, 2, 3},
		Type:     &problem.BlockType{Tier: problem.TierJunior, Sequence: seq},
		Path:     path,
	}
}

func TestAnnouncer_DistributeBlock_Document(t *testing.T) {
	linker, err := storage.NewPublicLinker("https://files.example.org/olymp")
	require.NoError(t, err)
	api, a := newAnnouncer(t, linker)

	err = a.DistributeBlock(context.Background(), testParticipant(1, participantChat), juniorBlock(2, "blocks/junior_2.pdf"))
	require.NoError(t, err)

	docs := api.Calls("sendDocument")
	require.Len(t, docs, 1)
	assert.Equal(t, "https://files.example.org/olymp/blocks/junior_2.pdf", docs[0].Body["document"])
	assert.Equal(t, "Блок задач 2: задачи 4–6", docs[0].Body["caption"])
	assert.Empty(t, api.Calls("sendMessage"))
}

func TestAnnouncer_DistributeBlock_TextWithoutStorage(t *testing.T) {
	api, a := newAnnouncer(t, nil)

	err := a.DistributeBlock(context.Background(), testParticipant(1, participantChat), juniorBlock(1, "blocks/junior_1.pdf"))
	require.NoError(t, err)

	assert.Empty(t, api.Calls("sendDocument"))
	texts := api.textsTo(participantChat)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "задачи 1–3")
}

func TestAnnouncer_DistributeBlock_UnlinkedParticipant(t *testing.T) {
	api, a := newAnnouncer(t, nil)

	err := a.DistributeBlock(context.Background(), testParticipant(1, 0), juniorBlock(1, ""))
	require.NoError(t, err)
	assert.Empty(t, api.Calls("sendMessage"))
}

func TestAnnouncer_PhaseChanged_Muted(t *testing.T) {
	api, client := newFakeAPI(t)
	a := NewAnnouncer(client, nil, AnnouncerConfig{MutePhaseChanges: true, Logger: logger.Discard()})

	err := a.PhaseChanged(context.Background(), port.PhaseNotice{
		Olymp:        olymp.Context{OlympID: 1, Status: olymp.StatusContest},
		Participants: []member.Participant{testParticipant(1, participantChat)},
	})
	require.NoError(t, err)
	assert.Empty(t, api.Calls("sendMessage"))
}

// ══════════════════════════════════════════════════════════════════════════════
// CIRCUIT BREAKER
// ══════════════════════════════════════════════════════════════════════════════

func TestAnnouncer_SendBreakerIgnoresBlockedUsers(t *testing.T) {
	api, client := newFakeAPI(t)
	breaker := NewSendBreaker(logger.Discard())
	a := NewAnnouncer(client, nil, AnnouncerConfig{Breaker: breaker, Logger: logger.Discard()})

	for i := 0; i < 10; i++ {
		err := a.QueueJoined(context.Background(), queueNotice(testParticipant(1, blockedChat)))
		require.Error(t, err)
		assert.True(t, IsUserBlocked(err))
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())

	require.NoError(t, a.QueueJoined(context.Background(), queueNotice(testParticipant(2, participantChat))))
	assert.Len(t, api.textsTo(participantChat), 1)
}

func TestAnnouncer_OpenBreakerStopsSends(t *testing.T) {
	api, client := newFakeAPI(t)
	breaker := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithTimeout(time.Hour))
	a := NewAnnouncer(client, nil, AnnouncerConfig{Breaker: breaker, Logger: logger.Discard()})

	for i := 0; i < 2; i++ {
		_ = a.QueueJoined(context.Background(), queueNotice(testParticipant(1, blockedChat)))
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	err := a.QueueJoined(context.Background(), queueNotice(testParticipant(2, participantChat)))
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Empty(t, api.textsTo(participantChat))
}
