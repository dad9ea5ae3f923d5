package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/command"
	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
	"github.com/hselingforschool/olymp-queue-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ARGUMENTS
// ══════════════════════════════════════════════════════════════════════════════

func usage(op, text string) error {
	return shared.NewDomainError("bot", op, shared.ErrValidation, "Формат команды: "+text)
}

func parseID(op, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewDomainError("bot", op, shared.ErrValidation, "Некорректный номер: "+s)
	}
	return id, nil
}

// parseIDList parses "1,2,3" or "1 2 3".
func parseIDList(op string, parts ...string) ([]int64, error) {
	var ids []int64
	for _, part := range parts {
		for _, s := range strings.Split(part, ",") {
			if strings.TrimSpace(s) == "" {
				continue
			}
			id, err := parseID(op, s)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PHASES
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleOlympCreate(ctx context.Context, cc CommandContext) (string, error) {
	if cc.Args == "" {
		return "", usage("OlympCreate", "/olymp_create Название")
	}
	res, err := b.engine.CreateOlymp(ctx, cc.Args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Олимпиада _%s_ создана (id %d)", telegram.EscapeMarkdown(res.Olymp.Name), res.Olymp.OlympID), nil
}

func (b *Bot) handleRegistrationStart(ctx context.Context, cc CommandContext) (string, error) {
	if _, err := b.engine.StartRegistration(ctx, cc.Olymp); err != nil {
		return "", err
	}
	return "Регистрация открыта. Участники и принимающие могут авторизоваться через /start", nil
}

func (b *Bot) handleOlympStart(ctx context.Context, cc CommandContext) (string, error) {
	if _, err := b.engine.StartContest(ctx, cc.Olymp); err != nil {
		return "", err
	}
	return "Олимпиада началась, очередь открыта", nil
}

func (b *Bot) handleOlympFinish(ctx context.Context, cc CommandContext) (string, error) {
	res, err := b.engine.FinishOlymp(ctx, cc.Olymp)
	if err != nil {
		return "", err
	}
	if res.Olymp.Status == olymp.StatusQueue {
		return "Запись в очередь закрыта. Олимпиада завершится, когда очередь опустеет", nil
	}
	return "Олимпиада завершена", nil
}

func (b *Bot) handleOlympInfo(ctx context.Context, cc CommandContext) (string, error) {
	info, err := b.queries.OlympInfo(ctx, cc.Olymp)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Олимпиада _%s_ (id %d)\nСтатус: %s\n"+
		"Участников: %d\nПринимающих: %d, свободно: %d\nЗадач: %d\n"+
		"В очереди: %d, сдают сейчас: %d",
		telegram.EscapeMarkdown(info.Name), info.ID, info.Status.Label(),
		info.Participants, info.Examiners, info.FreeExams, info.Problems,
		info.Waiting, info.Discussing), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBLEMS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleAddProblem(ctx context.Context, cc CommandContext) (string, error) {
	if cc.Args == "" {
		return "", usage("AddProblem", "/add_problem Название")
	}
	p, err := b.engine.CreateProblem(ctx, cc.Olymp, cc.Args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Задача _%s_ добавлена, id `%d`", telegram.EscapeMarkdown(p.Name), p.ID), nil
}

// handleAddBlock: /add_block <тип|-> id1 id2 id3 [файл]
func (b *Bot) handleAddBlock(ctx context.Context, cc CommandContext) (string, error) {
	const format = "/add_block junior_1 id1 id2 id3 [файл], тип \"-\" для блока без типа"
	args := cc.Fields()
	if len(args) < 4 || len(args) > 5 {
		return "", usage("AddBlock", format)
	}

	cmd := command.CreateBlockCommand{}
	if args[0] != "-" {
		bt, err := problem.ParseBlockType(args[0])
		if err != nil {
			return "", err
		}
		cmd.Type = &bt
	}
	ids, err := parseIDList("AddBlock", args[1:4]...)
	if err != nil {
		return "", err
	}
	cmd.ProblemIDs = ids
	if len(args) == 5 {
		cmd.Path = args[4]
	}

	block, err := b.engine.CreateBlock(ctx, cc.Olymp, cmd)
	if err != nil {
		return "", err
	}
	kind := "без типа"
	if block.Type != nil {
		kind = block.Type.String()
	}
	return fmt.Sprintf("Блок `%d` (%s) добавлен", block.ID, telegram.EscapeMarkdown(kind)), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBERS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleAddParticipant(ctx context.Context, cc CommandContext) (string, error) {
	args := cc.Fields()
	if len(args) != 4 {
		return "", usage("AddParticipant", "/add_participant ник имя фамилия класс")
	}
	grade, err := strconv.Atoi(args[3])
	if err != nil {
		return "", shared.NewDomainError("bot", "AddParticipant", shared.ErrValidation, "Некорректный класс: "+args[3])
	}
	p, err := b.engine.RegisterParticipant(ctx, cc.Olymp, command.RegisterParticipantCommand{
		Handle:  args[0],
		Name:    args[1],
		Surname: args[2],
		Grade:   grade,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Участник `%d` добавлен: %s", p.ID, telegram.ParticipantCard(*p, b.config.OwnerHandle)), nil
}

func (b *Bot) handleAddExaminer(ctx context.Context, cc CommandContext) (string, error) {
	args := cc.Fields()
	if len(args) < 4 {
		return "", usage("AddExaminer", "/add_examiner ник имя фамилия ссылка [id задач через запятую]")
	}
	ids, err := parseIDList("AddExaminer", args[4:]...)
	if err != nil {
		return "", err
	}
	x, err := b.engine.RegisterExaminer(ctx, cc.Olymp, command.RegisterExaminerCommand{
		Handle:         args[0],
		Name:           args[1],
		Surname:        args[2],
		ConferenceLink: args[3],
		ProblemIDs:     ids,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Принимающий `%d` добавлен: %s", x.ID, telegram.ExaminerCard(*x, b.config.OwnerHandle)), nil
}

func (b *Bot) ownerCapability(cc CommandContext, op string) (command.CapabilityCommand, error) {
	args := cc.Fields()
	if len(args) != 2 {
		return command.CapabilityCommand{}, usage(op, "id_принимающего id_задачи")
	}
	examinerID, err := parseID(op, args[0])
	if err != nil {
		return command.CapabilityCommand{}, err
	}
	problemID, err := parseID(op, args[1])
	if err != nil {
		return command.CapabilityCommand{}, err
	}
	return command.CapabilityCommand{ExaminerID: examinerID, ProblemID: problemID, Override: true}, nil
}

func (b *Bot) handleOwnerAddProblem(ctx context.Context, cc CommandContext) (string, error) {
	cmd, err := b.ownerCapability(cc, "ExaminerAddProblem")
	if err != nil {
		return "", err
	}
	res, err := b.engine.AddExaminerProblem(ctx, cc.Olymp, cmd)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Принимающему %s добавлена задача `%d`",
		telegram.EscapeMarkdown(res.Examiner.FullName()), cmd.ProblemID), nil
}

func (b *Bot) handleOwnerRemoveProblem(ctx context.Context, cc CommandContext) (string, error) {
	cmd, err := b.ownerCapability(cc, "ExaminerRemoveProblem")
	if err != nil {
		return "", err
	}
	res, err := b.engine.RemoveExaminerProblem(ctx, cc.Olymp, cmd)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("У принимающего %s убрана задача `%d`",
		telegram.EscapeMarkdown(res.Examiner.FullName()), cmd.ProblemID), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleOwnerWithdraw(ctx context.Context, cc CommandContext) (string, error) {
	args := strings.Fields(cc.Args)
	if len(args) == 0 || len(args) > 2 || (len(args) == 2 && args[1] != "free") {
		return "", usage("Withdraw", "/withdraw id_принимающего [free]")
	}
	examinerID, err := parseID("Withdraw", args[0])
	if err != nil {
		return "", err
	}
	release := len(args) == 2
	res, err := b.engine.Withdraw(ctx, cc.Olymp, command.WithdrawCommand{
		ExaminerID: examinerID,
		Release:    release,
		Reason:     port.WithdrawOwnerRequest,
	})
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("Запись `%d` возвращена в очередь", res.Entry.ID)
	if res.NewExaminer != nil {
		text += ", новый принимающий: " + telegram.EscapeMarkdown(res.NewExaminer.FullName())
	}
	if release {
		text += ". Принимающий освобождён"
	}
	return text, nil
}

func (b *Bot) handleCancelEntry(ctx context.Context, cc CommandContext) (string, error) {
	if cc.Args == "" {
		return "", usage("CancelEntry", "/cancel_entry id_записи")
	}
	entryID, err := parseID("CancelEntry", cc.Args)
	if err != nil {
		return "", err
	}
	res, err := b.engine.CancelEntry(ctx, cc.Olymp, entryID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Запись `%d` (%s) отменена", res.Entry.ID, problemTitle(res.Number, res.Problem)), nil
}

func (b *Bot) handleQueueList(ctx context.Context, cc CommandContext) (string, error) {
	snap, err := b.queries.QueueSnapshot(ctx, cc.Olymp)
	if err != nil {
		return "", err
	}
	if len(snap.Entries) == 0 {
		return "Очередь пуста", nil
	}

	now := time.Now()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Активных записей: %d, свободных принимающих: %d", len(snap.Entries), len(snap.FreeExaminers))
	for _, e := range snap.Entries {
		fmt.Fprintf(&sb, "\n`%d`: участник %d, задача %d", e.ID, e.ParticipantID, e.ProblemID)
		if e.Status == queue.StatusDiscussing && e.ExaminerID != nil {
			fmt.Fprintf(&sb, ", сдаёт принимающему %d", *e.ExaminerID)
		} else {
			fmt.Fprintf(&sb, ", ждёт %s (с %s)", timeutil.FormatWait(now.Sub(e.CreatedAt)), timeutil.FormatClock(e.CreatedAt, nil))
		}
	}
	return sb.String(), nil
}

func problemTitle(number int, p problem.Problem) string {
	if number > 0 {
		return fmt.Sprintf("задача %d, _%s_", number, telegram.EscapeMarkdown(p.Name))
	}
	return "_" + telegram.EscapeMarkdown(p.Name) + "_"
}
