package telegram

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/command"
	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/application/query"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/matching"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/locking"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/persistence/memory"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

const (
	ownerID     = 1
	ownerHandle = "@organizer"
	pupilID     = 10
	teacherID   = 20
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeAPI struct {
	mu      sync.Mutex
	sent    map[int64][]string
	answers []string
	edited  []int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{sent: make(map[int64][]string)}
}

func (f *fakeAPI) SendText(_ context.Context, chatID int64, text string) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[chatID] = append(f.sent[chatID], text)
	return &telegram.Message{MessageID: int64(len(f.sent[chatID])), Chat: &telegram.Chat{ID: chatID}}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAPI) EditMessageKeyboard(_ context.Context, _ int64, messageID int64, _ *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, messageID)
	return nil
}

func (f *fakeAPI) GetMe(context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 1, IsBot: true, Username: "olymp_queue_bot"}, nil
}

func (f *fakeAPI) StartPolling(ctx context.Context, _ telegram.UpdateHandler) error {
	<-ctx.Done()
	return nil
}

func (f *fakeAPI) last(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

// nopAnnouncer drops announcements; replies are what the bot tests check.
type nopAnnouncer struct{}

func (nopAnnouncer) QueueJoined(context.Context, port.QueueNotice) error            { return nil }
func (nopAnnouncer) QueueLeft(context.Context, port.QueueNotice) error              { return nil }
func (nopAnnouncer) ExaminerAssigned(context.Context, port.AssignmentNotice) error  { return nil }
func (nopAnnouncer) EntryJudged(context.Context, port.JudgementNotice) error        { return nil }
func (nopAnnouncer) ExaminerWithdrawn(context.Context, port.WithdrawalNotice) error { return nil }
func (nopAnnouncer) EntryCanceled(context.Context, port.CancelNotice) error         { return nil }
func (nopAnnouncer) PhaseChanged(context.Context, port.PhaseNotice) error           { return nil }
func (nopAnnouncer) DistributeBlock(context.Context, member.Participant, problem.Block) error {
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type botFixture struct {
	t       *testing.T
	ctx     context.Context
	api     *fakeAPI
	engine  *command.Engine
	queries *query.Service
	bot     *Bot
	nextID  int64
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	store := memory.NewStore()
	engine := command.NewEngine(command.Deps{
		Store:       store,
		Locker:      locking.NewLocalLocker(),
		Announcer:   nopAnnouncer{},
		Distributor: nopAnnouncer{},
		Logger:      logger.Discard(),
	})
	queries := query.NewService(store, matching.DefaultPolicy())
	api := newFakeAPI()

	bot, err := NewBot(BotConfig{
		OwnerID:     ownerID,
		OwnerHandle: ownerHandle,
		Logger:      logger.Discard(),
	}, BotDependencies{API: api, Engine: engine, Queries: queries})
	require.NoError(t, err)

	return &botFixture{t: t, ctx: context.Background(), api: api, engine: engine, queries: queries, bot: bot}
}

// send delivers a private message from the user and returns the last reply.
func (f *botFixture) send(from int64, username, text string) string {
	f.t.Helper()
	f.nextID++

	msg := &telegram.Message{
		MessageID: f.nextID,
		From:      &telegram.User{ID: from, Username: username},
		Chat:      &telegram.Chat{ID: from, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		length := len(text)
		if i := strings.IndexByte(text, ' '); i >= 0 {
			length = i
		}
		msg.Entities = []telegram.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	}

	require.NoError(f.t, f.bot.HandleUpdate(f.ctx, &telegram.Update{UpdateID: f.nextID, Message: msg}))
	return f.api.last(from)
}

func (f *botFixture) press(from int64, data string, messageID int64) {
	f.t.Helper()
	f.nextID++
	cq := &telegram.CallbackQuery{
		ID:      "cb",
		From:    &telegram.User{ID: from},
		Message: &telegram.Message{MessageID: messageID, Chat: &telegram.Chat{ID: from, Type: "private"}},
		Data:    data,
	}
	require.NoError(f.t, f.bot.HandleUpdate(f.ctx, &telegram.Update{UpdateID: f.nextID, CallbackQuery: cq}))
}

// setUp creates an olymp in REGISTRATION with one junior block, a participant
// and an examiner for the first problem.
func (f *botFixture) setUp() {
	f.t.Helper()
	assert.Contains(f.t, f.send(ownerID, "", "/olymp_create Весенняя устная"), "создана")
	assert.Contains(f.t, f.send(ownerID, "", "/olymp_reg_start"), "Регистрация открыта")
	for _, name := range []string{"Шахматы", "Домино", "Спички"} {
		assert.Contains(f.t, f.send(ownerID, "", "/add_problem "+name), "добавлена")
	}

	problems, err := f.queries.Problems(f.ctx, f.engine.Contexts().Get())
	require.NoError(f.t, err)
	require.Len(f.t, problems, 3)
	ids := make([]string, 0, 3)
	for _, p := range problems {
		ids = append(ids, strconv.FormatInt(p.ID, 10))
	}

	assert.Contains(f.t, f.send(ownerID, "", "/add_block junior_1 "+strings.Join(ids, " ")), "добавлен")
	assert.Contains(f.t, f.send(ownerID, "", "/add_participant pupil Иван Петров 8"), "Участник")
	assert.Contains(f.t, f.send(ownerID, "", "/add_examiner teacher Мария Иванова https://meet.example/abc "+ids[0]), "Принимающий")
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestBot_OwnerSetsUpOlymp(t *testing.T) {
	f := newBotFixture(t)
	f.setUp()

	info := f.send(ownerID, "", "/olymp_info")
	assert.Contains(t, info, "Участников: 1")
	assert.Contains(t, info, "Принимающих: 1")
	assert.Contains(t, info, "Задач: 3")
}

func TestBot_OwnerCommandsAreRestricted(t *testing.T) {
	f := newBotFixture(t)

	reply := f.send(pupilID, "pupil", "/olymp_create Чужая")
	assert.Equal(t, AccessOwner.denial(), reply)
	assert.True(t, f.engine.Contexts().Get().IsZero())
}

func TestBot_UnknownCommandAndText(t *testing.T) {
	f := newBotFixture(t)

	assert.Contains(t, f.send(pupilID, "pupil", "/dance"), "Неизвестная команда")
	assert.Contains(t, f.send(pupilID, "pupil", "привет"), "только команды")
}

func TestBot_UserFacingError(t *testing.T) {
	f := newBotFixture(t)

	reply := f.send(ownerID, "", "/olymp_start")
	assert.True(t, strings.HasPrefix(reply, "Ошибка!\n"), reply)
	assert.Contains(t, reply, "Нет текущей олимпиады")
	assert.Contains(t, reply, "сообщи "+ownerHandle)
}

func TestBot_ValidationErrorShowsUsage(t *testing.T) {
	f := newBotFixture(t)
	f.setUp()

	reply := f.send(ownerID, "", "/add_participant pupil2 Анна")
	assert.Contains(t, reply, "Формат команды")
}

func TestBot_ParticipantFlow(t *testing.T) {
	f := newBotFixture(t)
	f.setUp()

	assert.Contains(t, f.send(pupilID, "Pupil", "/start"), "Ты успешно авторизовался как участник")
	assert.Contains(t, f.send(pupilID, "pupil", "/start"), "Ты уже авторизован")

	// Queue is closed before the contest.
	assert.Contains(t, f.send(pupilID, "pupil", "/queue 1"), "Ошибка!")

	assert.Contains(t, f.send(ownerID, "", "/olymp_start"), "Олимпиада началась")

	before := len(f.api.sent[pupilID])
	f.send(pupilID, "pupil", "/queue 1")
	assert.Len(t, f.api.sent[pupilID], before, "queue confirmation comes from the announcer")

	snap, err := f.queries.QueueSnapshot(f.ctx, f.engine.Contexts().Get())
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, queue.StatusWaiting, snap.Entries[0].Status)

	assert.Contains(t, f.send(pupilID, "pupil", "/queue 2"), "Ошибка!")

	progress := f.send(pupilID, "pupil", "/progress")
	assert.Contains(t, progress, "Шахматы")
	assert.Contains(t, progress, "Ты сейчас в очереди")

	f.send(pupilID, "pupil", "/leave")
	snap, err = f.queries.QueueSnapshot(f.ctx, f.engine.Contexts().Get())
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
}

func TestBot_ParticipantCommandsNeedAuthentication(t *testing.T) {
	f := newBotFixture(t)
	f.setUp()

	assert.Equal(t, AccessParticipant.denial(), f.send(pupilID, "pupil", "/queue 1"))
	assert.Equal(t, AccessExaminer.denial(), f.send(teacherID, "teacher", "/free"))
}

func TestBot_ExaminerJudgesWithButtons(t *testing.T) {
	f := newBotFixture(t)
	f.setUp()
	f.send(pupilID, "pupil", "/start")
	assert.Contains(t, f.send(teacherID, "teacher", "/start"), "принимающий")
	f.send(ownerID, "", "/olymp_start")

	assert.Contains(t, f.send(teacherID, "teacher", "/free"), "Ты свободен")
	f.send(pupilID, "pupil", "/queue 1")

	snap, err := f.queries.QueueSnapshot(f.ctx, f.engine.Contexts().Get())
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, queue.StatusDiscussing, snap.Entries[0].Status)

	// Participant-only buttons are refused.
	f.press(pupilID, telegram.CallbackJudgeSuccess, 7)
	require.Len(t, f.api.answers, 1)
	assert.Equal(t, AccessExaminer.denial(), f.api.answers[0])

	f.press(teacherID, telegram.CallbackJudgeSuccess, 7)
	require.Len(t, f.api.answers, 2)
	assert.Contains(t, f.api.answers[1], "Задача принята")
	assert.Contains(t, f.api.edited, int64(7))

	progress, err := f.queries.ParticipantProgress(f.ctx, f.engine.Contexts().Get(), snap.Entries[0].ParticipantID)
	require.NoError(t, err)
	require.NotEmpty(t, progress.Problems)
	assert.True(t, progress.Problems[0].Solved)

	// A second press finds nothing to judge.
	f.press(teacherID, telegram.CallbackJudgeSuccess, 7)
	require.Len(t, f.api.answers, 3)
	assert.Contains(t, f.api.answers[2], "Ошибка!")
}

func TestBot_OwnerWithdrawReleasesExaminer(t *testing.T) {
	f := newBotFixture(t)
	f.setUp()
	f.send(pupilID, "pupil", "/start")
	f.send(teacherID, "teacher", "/start")
	f.send(ownerID, "", "/olymp_start")
	f.send(teacherID, "teacher", "/free")
	f.send(pupilID, "pupil", "/queue 1")

	snap, err := f.queries.QueueSnapshot(f.ctx, f.engine.Contexts().Get())
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	require.NotNil(t, snap.Entries[0].ExaminerID)
	judgeID := *snap.Entries[0].ExaminerID
	examinerID := strconv.FormatInt(judgeID, 10)

	assert.Contains(t, f.send(ownerID, "", "/withdraw "+examinerID+" later"), "Формат команды")

	reply := f.send(ownerID, "", "/withdraw "+examinerID+" free")
	assert.Contains(t, reply, "возвращена в очередь")
	assert.Contains(t, reply, "Принимающий освобождён")

	snap, err = f.queries.QueueSnapshot(f.ctx, f.engine.Contexts().Get())
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, queue.StatusWaiting, snap.Entries[0].Status)
	assert.Nil(t, snap.Entries[0].ExaminerID)
	assert.Equal(t, []int64{judgeID}, snap.FreeExaminers)
}

func TestBot_MergeAfterHandleChange(t *testing.T) {
	f := newBotFixture(t)

	// First olymp: the user is linked under the old handle.
	f.send(ownerID, "", "/olymp_create Осенняя")
	f.send(ownerID, "", "/olymp_reg_start")
	f.send(ownerID, "", "/add_participant old_nick Иван Петров 8")
	assert.Contains(t, f.send(pupilID, "old_nick", "/start"), "успешно")
	f.send(ownerID, "", "/olymp_start")
	assert.Equal(t, "Олимпиада завершена", f.send(ownerID, "", "/olymp_finish"))

	// Second olymp: registered under the new handle.
	f.send(ownerID, "", "/olymp_create Весенняя")
	f.send(ownerID, "", "/olymp_reg_start")
	f.send(ownerID, "", "/add_participant new_nick Иван Петров 9")

	reply := f.send(pupilID, "new_nick", "/start")
	assert.Contains(t, reply, "Подтверди командой")

	assert.Contains(t, f.send(pupilID, "new_nick", "/confirm_merge"), "Ты успешно авторизовался как участник")
	assert.Contains(t, f.send(pupilID, "new_nick", "/confirm_merge"), "Нет объединений")

	m, err := f.queries.ResolveMember(f.ctx, f.engine.Contexts().Get(), pupilID)
	require.NoError(t, err)
	assert.Equal(t, "new_nick", m.Identity().Handle.String())
}

func TestBot_PanicIsReportedToOwner(t *testing.T) {
	f := newBotFixture(t)
	f.bot.router.RegisterCommand("boom", AccessAnyone, "", func(context.Context, CommandContext) (string, error) {
		panic("kaboom")
	})

	reply := f.send(pupilID, "pupil", "/boom")
	assert.Contains(t, reply, "Что-то пошло не так")
	assert.Contains(t, f.api.last(ownerID), "kaboom")
}

func TestRouter_Help(t *testing.T) {
	f := newBotFixture(t)

	help := f.send(pupilID, "pupil", "/help")
	assert.Contains(t, help, "/start")
	assert.NotContains(t, help, "/olymp\\_create")

	ownerHelp := f.send(ownerID, "", "/help")
	assert.Contains(t, ownerHelp, "/olymp\\_create")
	assert.NotContains(t, ownerHelp, "/olymp\\_reg\\_start")
}

func TestMergeBook_Expires(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	book := newMergeBook(10 * time.Minute)
	book.now = func() time.Time { return now }

	book.put(5, member.MergeProposal{})
	_, ok := book.take(5)
	assert.True(t, ok)
	_, ok = book.take(5)
	assert.False(t, ok, "proposal is single-use")

	book.put(5, member.MergeProposal{})
	now = now.Add(11 * time.Minute)
	_, ok = book.take(5)
	assert.False(t, ok)
}
