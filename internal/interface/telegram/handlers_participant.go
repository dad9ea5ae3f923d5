package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/command"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT COMMANDS
// Confirmations of queue changes come from the announcer, so most handlers
// reply with nothing.
// ══════════════════════════════════════════════════════════════════════════════

// handleQueue: /queue <номер задачи>
func (b *Bot) handleQueue(ctx context.Context, cc CommandContext) (string, error) {
	if cc.Args == "" {
		return "", usage("Queue", "/queue номер задачи, например /queue 2")
	}
	n, err := strconv.Atoi(strings.TrimSpace(cc.Args))
	if err != nil {
		return "", shared.NewDomainError("bot", "Queue", shared.ErrValidation, "Некорректный номер задачи: "+cc.Args)
	}
	_, err = b.engine.JoinQueue(ctx, cc.Olymp, command.JoinQueueCommand{
		ParticipantID: cc.Participant.ID,
		Number:        n,
	})
	return "", err
}

func (b *Bot) handleLeave(ctx context.Context, cc CommandContext) (string, error) {
	_, err := b.engine.LeaveQueue(ctx, cc.Olymp, cc.Participant.ID)
	return "", err
}

func (b *Bot) handleAbsent(ctx context.Context, cc CommandContext) (string, error) {
	_, err := b.engine.ReportAbsentExaminer(ctx, cc.Olymp, cc.Participant.ID)
	return "", err
}

func (b *Bot) handleProgress(ctx context.Context, cc CommandContext) (string, error) {
	progress, err := b.queries.ParticipantProgress(ctx, cc.Olymp, cc.Participant.ID)
	if err != nil {
		return "", err
	}
	if len(progress.Problems) == 0 {
		return "У тебя пока нет открытых задач", nil
	}

	var sb strings.Builder
	sb.WriteString("Твои задачи:")
	for _, p := range progress.Problems {
		state := attemptsState(p.AttemptsLeft)
		if p.Solved {
			state = "✅ принята"
		}
		fmt.Fprintf(&sb, "\n%d. _%s_: %s", p.Number, telegram.EscapeMarkdown(p.Name), state)
	}
	if progress.Active != nil {
		fmt.Fprintf(&sb, "\n\nТы сейчас в очереди (запись `%d`)", progress.Active.ID)
	}
	return sb.String(), nil
}

func attemptsState(left int) string {
	if left <= 0 {
		return "❌ попыток не осталось"
	}
	return fmt.Sprintf("%s %d %s", telegram.Decline(left, "остал", "ась", "ось", "ось"),
		left, telegram.Decline(left, "попыт", "ка", "ки", "ок"))
}
