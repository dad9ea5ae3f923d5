package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/command"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
)

const (
	judgeSuccess  = queue.OutcomeSuccess
	judgeFail     = queue.OutcomeFail
	judgeCanceled = queue.OutcomeCanceled
)

// ══════════════════════════════════════════════════════════════════════════════
// AVAILABILITY
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleFree(ctx context.Context, cc CommandContext) (string, error) {
	res, err := b.engine.SetBusy(ctx, cc.Olymp, command.SetBusyCommand{ExaminerID: cc.Examiner.ID, Busy: false})
	if err != nil {
		return "", err
	}
	if res.Assigned != nil {
		return "", nil
	}
	return "Ты свободен. Ожидай участников", nil
}

func (b *Bot) handleBusy(ctx context.Context, cc CommandContext) (string, error) {
	if _, err := b.engine.SetBusy(ctx, cc.Olymp, command.SetBusyCommand{ExaminerID: cc.Examiner.ID, Busy: true}); err != nil {
		return "", err
	}
	return "Ты занят и не получаешь новых участников. Когда будешь готов, напиши /free", nil
}

// ══════════════════════════════════════════════════════════════════════════════
// JUDGING
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) judge(ctx context.Context, oc olymp.Context, examinerID int64, outcome queue.Outcome) (string, error) {
	res, err := b.engine.Judge(ctx, oc, command.JudgeCommand{ExaminerID: examinerID, Outcome: outcome})
	if err != nil {
		return "", err
	}
	var text string
	switch outcome {
	case queue.OutcomeSuccess:
		text = "Задача принята"
	case queue.OutcomeFail:
		text = "Задача не принята"
	default:
		text = "Сдача отменена"
	}
	if res.NextEntry == nil {
		text += ". Ожидай следующего участника"
	}
	return text, nil
}

// judgeCommand handles /accept, /reject and /cancel.
func (b *Bot) judgeCommand(outcome queue.Outcome) CommandFunc {
	return func(ctx context.Context, cc CommandContext) (string, error) {
		return b.judge(ctx, cc.Olymp, cc.Examiner.ID, outcome)
	}
}

// handleJudgeCallback handles the buttons under an assignment message.
func (b *Bot) handleJudgeCallback(ctx context.Context, cb CallbackContext) (string, error) {
	var outcome queue.Outcome
	switch cb.Data {
	case telegram.CallbackJudgeSuccess:
		outcome = judgeSuccess
	case telegram.CallbackJudgeFail:
		outcome = judgeFail
	case telegram.CallbackJudgeCanceled:
		outcome = judgeCanceled
	default:
		return "Кнопка устарела", nil
	}
	return b.judge(ctx, cb.Olymp, cb.Examiner.ID, outcome)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBLEMS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleProblems(ctx context.Context, cc CommandContext) (string, error) {
	mine, err := b.queries.ExaminerProblems(ctx, cc.Olymp, cc.Examiner.ID)
	if err != nil {
		return "", err
	}
	all, err := b.queries.Problems(ctx, cc.Olymp)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(telegram.ProblemList(mine))
	if len(all) > 0 {
		sb.WriteString("\n\nВсе задачи олимпиады:")
		for _, p := range all {
			fmt.Fprintf(&sb, "\n- `%d` _%s_", p.ID, telegram.EscapeMarkdown(p.Name))
		}
		sb.WriteString("\n\nДобавить задачу: /take id, убрать: /drop id")
	}
	return sb.String(), nil
}

func (b *Bot) handleTake(ctx context.Context, cc CommandContext) (string, error) {
	if cc.Args == "" {
		return "", usage("Take", "/take id задачи")
	}
	problemID, err := parseID("Take", cc.Args)
	if err != nil {
		return "", err
	}
	res, err := b.engine.AddExaminerProblem(ctx, cc.Olymp, command.CapabilityCommand{
		ExaminerID: cc.Examiner.ID,
		ProblemID:  problemID,
	})
	if err != nil {
		return "", err
	}
	return b.examinerProblems(ctx, cc, res.Examiner.ID)
}

func (b *Bot) handleDrop(ctx context.Context, cc CommandContext) (string, error) {
	if cc.Args == "" {
		return "", usage("Drop", "/drop id задачи")
	}
	problemID, err := parseID("Drop", cc.Args)
	if err != nil {
		return "", err
	}
	res, err := b.engine.RemoveExaminerProblem(ctx, cc.Olymp, command.CapabilityCommand{
		ExaminerID: cc.Examiner.ID,
		ProblemID:  problemID,
	})
	if err != nil {
		return "", err
	}
	return b.examinerProblems(ctx, cc, res.Examiner.ID)
}

func (b *Bot) examinerProblems(ctx context.Context, cc CommandContext, examinerID int64) (string, error) {
	mine, err := b.queries.ExaminerProblems(ctx, cc.Olymp, examinerID)
	if err != nil {
		return "", err
	}
	return telegram.ProblemList(mine), nil
}
