package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/storage"
	"github.com/hselingforschool/olymp-queue-bot/pkg/circuitbreaker"
)

// Callback data of the buttons under an assignment message.
const (
	CallbackJudgeSuccess  = "judge:success"
	CallbackJudgeFail     = "judge:fail"
	CallbackJudgeCanceled = "judge:canceled"
)

// JudgeKeyboard is attached to the message an examiner gets on assignment.
func JudgeKeyboard() *InlineKeyboardMarkup {
	return Keyboard(
		[]InlineKeyboardButton{
			Button("✅ Принято", CallbackJudgeSuccess),
			Button("❌ Не принято", CallbackJudgeFail),
		},
		[]InlineKeyboardButton{
			Button("↩️ Отменить сдачу", CallbackJudgeCanceled),
		},
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// ANNOUNCER
// ══════════════════════════════════════════════════════════════════════════════

// AnnouncerConfig configures the Announcer.
type AnnouncerConfig struct {
	// BroadcastConcurrency limits parallel sends during phase changes.
	BroadcastConcurrency int

	// MutePhaseChanges turns off broadcasts to everyone on phase changes.
	MutePhaseChanges bool

	// Breaker guards outgoing messages. Nil sends unguarded.
	Breaker *circuitbreaker.CircuitBreaker

	Logger *slog.Logger
}

// Announcer implements port.Announcer and port.Distributor with Telegram
// messages.
type Announcer struct {
	client      *Client
	linker      storage.Linker
	concurrency int
	mutePhases  bool
	breaker     *circuitbreaker.CircuitBreaker
	logger      *slog.Logger
}

var (
	_ port.Announcer   = (*Announcer)(nil)
	_ port.Distributor = (*Announcer)(nil)
)

// NewAnnouncer creates an Announcer. linker may be nil: blocks are then
// announced as text only.
func NewAnnouncer(client *Client, linker storage.Linker, cfg AnnouncerConfig) *Announcer {
	if cfg.BroadcastConcurrency <= 0 {
		cfg.BroadcastConcurrency = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Announcer{
		client:      client,
		linker:      linker,
		concurrency: cfg.BroadcastConcurrency,
		mutePhases:  cfg.MutePhaseChanges,
		breaker:     cfg.Breaker,
		logger:      cfg.Logger.With("component", "announcer"),
	}
}

// NewSendBreaker returns a breaker for Announcer that ignores per-chat
// failures such as a user who blocked the bot.
func NewSendBreaker(log *slog.Logger) *circuitbreaker.CircuitBreaker {
	if log == nil {
		log = slog.Default()
	}
	return circuitbreaker.ForTelegram(
		func(err error) bool {
			return !IsUserBlocked(err) && !errors.Is(err, context.Canceled)
		},
		func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	)
}

func (a *Announcer) guarded(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.breaker == nil {
		return fn(ctx)
	}
	return a.breaker.Execute(ctx, fn)
}

// send skips users who have not linked Telegram yet.
func (a *Announcer) send(ctx context.Context, to shared.TelegramID, text string) error {
	if !to.IsValid() {
		return nil
	}
	return a.guarded(ctx, func(ctx context.Context) error {
		_, err := a.client.SendText(ctx, to.Int64(), text)
		return err
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Queue
// ─────────────────────────────────────────────────────────────────────────────

// QueueJoined implements port.Announcer.
func (a *Announcer) QueueJoined(ctx context.Context, n port.QueueNotice) error {
	return a.send(ctx, n.Participant.TelegramID, fmt.Sprintf(
		"Ты записан в очередь: %s. Как только освободится принимающий, я пришлю ссылку",
		problemTitle(n.Number, n.Problem)))
}

// QueueLeft implements port.Announcer.
func (a *Announcer) QueueLeft(ctx context.Context, n port.QueueNotice) error {
	return a.send(ctx, n.Participant.TelegramID, fmt.Sprintf(
		"Ты покинул очередь (%s). Попытка не потрачена", problemTitle(n.Number, n.Problem)))
}

// ExaminerAssigned implements port.Announcer.
func (a *Announcer) ExaminerAssigned(ctx context.Context, n port.AssignmentNotice) error {
	var errs []error
	errs = append(errs, a.send(ctx, n.Participant.TelegramID, fmt.Sprintf(
		"Принимающий найден! Сдаёшь %s\nПринимающий: %s\nСсылка: %s\nЕсли принимающий не пришёл, напиши /absent",
		problemTitle(n.Number, n.Problem),
		EscapeMarkdown(n.Examiner.FullName()),
		EscapeMarkdown(n.Examiner.ConferenceLink))))

	if n.Examiner.TelegramID.IsValid() {
		text := fmt.Sprintf("К тебе идёт участник %s (%s, %d класс), %s",
			EscapeMarkdown(n.Participant.FullName()),
			EscapeMarkdown(n.Participant.Handle.Mention()),
			int(n.Participant.Grade),
			problemTitle(0, n.Problem))
		errs = append(errs, a.guarded(ctx, func(ctx context.Context) error {
			_, err := a.client.SendWithKeyboard(ctx, n.Examiner.TelegramID.Int64(), text, JudgeKeyboard())
			return err
		}))
	}
	return errors.Join(errs...)
}

// EntryJudged implements port.Announcer.
func (a *Announcer) EntryJudged(ctx context.Context, n port.JudgementNotice) error {
	title := problemTitle(n.Number, n.Problem)
	var text string
	switch n.Outcome {
	case queue.OutcomeSuccess:
		text = fmt.Sprintf("Поздравляю, %s принята!", title)
		if n.UnlockedBlock > 0 {
			text += fmt.Sprintf("\nТебе открыт блок задач %d", n.UnlockedBlock)
		}
	case queue.OutcomeFail:
		text = fmt.Sprintf("К сожалению, %s не принята. %s",
			title, attemptsText(n.AttemptsLeft))
	default:
		text = fmt.Sprintf("Сдача отменена (%s). Попытка не потрачена, можешь снова записаться в очередь", title)
	}
	return a.send(ctx, n.Participant.TelegramID, text)
}

func attemptsText(left int) string {
	if left <= 0 {
		return "Попыток по этой задаче больше нет"
	}
	return fmt.Sprintf("%s %d %s",
		Decline(left, "Остал", "ась", "ось", "ось"), left, Decline(left, "попыт", "ка", "ки", "ок"))
}

// ExaminerWithdrawn implements port.Announcer.
func (a *Announcer) ExaminerWithdrawn(ctx context.Context, n port.WithdrawalNotice) error {
	var errs []error
	errs = append(errs, a.send(ctx, n.Participant.TelegramID, fmt.Sprintf(
		"Принимающий больше не принимает тебя. Ты снова ждёшь в очереди (%s), твоё место сохранено",
		problemTitle(n.Number, n.Problem))))

	switch n.Reason {
	case port.WithdrawAbsent:
		errs = append(errs, a.send(ctx, n.Examiner.TelegramID,
			"Участник сообщил, что ты не пришёл на сдачу. Запись возвращена в очередь. Когда будешь готов, напиши /free"))
	case port.WithdrawOwnerRequest:
		errs = append(errs, a.send(ctx, n.Examiner.TelegramID, fmt.Sprintf(
			"Организатор снял тебя со сдачи участника %s", EscapeMarkdown(n.Participant.FullName()))))
	}
	return errors.Join(errs...)
}

// EntryCanceled implements port.Announcer.
func (a *Announcer) EntryCanceled(ctx context.Context, n port.CancelNotice) error {
	var errs []error
	errs = append(errs, a.send(ctx, n.Participant.TelegramID, fmt.Sprintf(
		"Организатор отменил твою запись в очередь (%s). Попытка не потрачена", problemTitle(n.Number, n.Problem))))
	if n.Examiner != nil {
		errs = append(errs, a.send(ctx, n.Examiner.TelegramID, fmt.Sprintf(
			"Организатор отменил сдачу участника %s", EscapeMarkdown(n.Participant.FullName()))))
	}
	return errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Phases
// ─────────────────────────────────────────────────────────────────────────────

const (
	participantFinishedText = "Олимпиада завершилась! Больше записываться в очередь нельзя. " +
		"Можешь отправляться на заслуженный отдых"
	participantQueuedText = "Олимпиада завершилась! Больше записываться в очередь нельзя, " +
		"но тех, кто уже записался, мы проверим, так что не уходи"
)

// PhaseChanged implements port.Announcer. Messages go out in parallel, bounded
// by BroadcastConcurrency.
func (a *Announcer) PhaseChanged(ctx context.Context, n port.PhaseNotice) error {
	if a.mutePhases {
		return nil
	}
	var (
		forParticipant func(p member.Participant) string
		forExaminer    string
	)

	switch n.Olymp.Status {
	case olymp.StatusContest:
		forParticipant = func(member.Participant) string {
			return "Олимпиада началась! Можешь приступать к решению задач"
		}
		forExaminer = "Олимпиада началась! Напиши /free и ожидай участников"
	case olymp.StatusQueue:
		forParticipant = func(p member.Participant) string {
			if n.Queued[p.ID] {
				return participantQueuedText
			}
			return participantFinishedText
		}
		forExaminer = "Олимпиада завершилась! Но мы ещё работаем с очередью, так что " +
			"не уходи раньше времени. Если ты завершил проверку и к тебе никто " +
			"не идёт, тогда можешь идти отдыхать"
	case olymp.StatusResults:
		if n.Previous == olymp.StatusQueue {
			forParticipant = func(member.Participant) string {
				return "Очередь полностью обработана. Спасибо за участие!"
			}
			forExaminer = "Очередь полностью обработана. Спасибо за помощь, можно идти отдыхать!"
		} else {
			forParticipant = func(member.Participant) string { return participantFinishedText }
			forExaminer = "Олимпиада завершилась! Очередь пуста, так что можешь идти отдыхать"
		}
	default:
		return nil
	}

	var (
		mu     sync.Mutex
		errs   []error
		failed int
	)
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		failed++
		errs = append(errs, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, p := range n.Participants {
		p := p
		g.Go(func() error {
			record(a.send(gctx, p.TelegramID, forParticipant(p)))
			return nil
		})
	}
	for _, x := range n.Examiners {
		x := x
		g.Go(func() error {
			record(a.send(gctx, x.TelegramID, forExaminer))
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		a.logger.Warn("phase broadcast incomplete",
			"olymp_id", n.Olymp.OlympID,
			"status", string(n.Olymp.Status),
			"failed", failed,
		)
	}
	return errors.Join(errs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTOR
// ══════════════════════════════════════════════════════════════════════════════

// DistributeBlock implements port.Distributor. The block file is sent as a
// document when it has a path and storage is configured, otherwise the
// participant gets a text notice.
func (a *Announcer) DistributeBlock(ctx context.Context, p member.Participant, b problem.Block) error {
	if !p.TelegramID.IsValid() {
		a.logger.Info("participant has no telegram account, block not sent",
			"participant_id", p.ID, "block_id", b.ID)
		return nil
	}

	seq := b.Sequence()
	first := (seq-1)*problem.ProblemsPerBlock + 1
	caption := fmt.Sprintf("Блок задач %d: задачи %d–%d", seq, first, first+problem.ProblemsPerBlock-1)

	if b.Path != "" && a.linker != nil {
		link, err := a.linker.Link(ctx, b.Path)
		if err != nil {
			return fmt.Errorf("link block %d: %w", b.ID, err)
		}
		err = a.guarded(ctx, func(ctx context.Context) error {
			_, err := a.client.SendDocument(ctx, p.TelegramID.Int64(), link, caption)
			return err
		})
		if err != nil {
			return fmt.Errorf("send block %d: %w", b.ID, err)
		}
		return nil
	}

	return a.send(ctx, p.TelegramID, caption+"\nУсловия выдаст организатор")
}
