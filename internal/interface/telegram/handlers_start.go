package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/command"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// START & AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) isOwner(telegramID int64) bool {
	return b.config.OwnerID != 0 && telegramID == b.config.OwnerID
}

// handleStart links the Telegram account to a registered member, by Telegram
// ID first and by username second.
func (b *Bot) handleStart(ctx context.Context, cc CommandContext) (string, error) {
	if b.isOwner(cc.TelegramID) {
		return "Привет! Ты организатор. Список команд: /help", nil
	}
	if cc.Olymp.IsZero() || cc.Olymp.Status == olymp.StatusTBA {
		return "Привет! Регистрация на олимпиаду ещё не началась, загляни позже", nil
	}
	if cc.Olymp.Status.IsFinished() {
		return "Привет! Олимпиада уже завершилась", nil
	}

	res, err := b.engine.Authenticate(ctx, cc.Olymp, command.AuthenticateCommand{
		TelegramID: shared.TelegramID(cc.TelegramID),
		Handle:     cc.Username,
	})
	if err != nil {
		var mergeErr *member.MergeRequiredError
		if errors.As(err, &mergeErr) {
			b.merges.put(cc.TelegramID, mergeErr.Proposal)
			logger.FromContext(ctx).Info("merge proposed",
				slog.Int64("canonical_user_id", mergeErr.Proposal.Canonical.UserID),
				slog.Int64("duplicate_user_id", mergeErr.Proposal.Duplicate.UserID),
			)
		}
		if shared.IsNotFound(err) && cc.Username == "" {
			return "", shared.WrapError("member", "Authenticate", shared.ErrNotFound,
				"Не получилось найти тебя: у твоего аккаунта нет ника в Telegram. Установи ник и повтори /start", err)
		}
		return "", err
	}
	return greeting(res, b.config.OwnerHandle), nil
}

// handleConfirmMerge applies the merge proposed by the last /start.
func (b *Bot) handleConfirmMerge(ctx context.Context, cc CommandContext) (string, error) {
	proposal, ok := b.merges.take(cc.TelegramID)
	if !ok {
		return "Нет объединений, ожидающих подтверждения. Напиши /start", nil
	}
	res, err := b.engine.ApplyMerge(ctx, cc.Olymp, command.ApplyMergeCommand{
		Proposal:  proposal,
		Confirmed: true,
	})
	if err != nil {
		return "", err
	}
	return greeting(res, b.config.OwnerHandle), nil
}

func greeting(res *command.AuthResult, ownerHandle string) string {
	prefix := "Ты успешно авторизовался"
	if res.AlreadyLinked {
		prefix = "Ты уже авторизован"
	}
	return fmt.Sprintf("%s как %s!\n%s\nСписок команд: /help",
		prefix, res.Member.Role().Title(), telegram.MemberCard(res.Member, ownerHandle))
}

// handleHelp lists commands available to the user.
func (b *Bot) handleHelp(ctx context.Context, cc CommandContext) (string, error) {
	levels := []Access{AccessAnyone}
	if b.isOwner(cc.TelegramID) {
		levels = append(levels, AccessOwner)
	}
	if !cc.Olymp.IsZero() {
		m, err := b.queries.ResolveMember(ctx, cc.Olymp, shared.TelegramID(cc.TelegramID))
		switch {
		case err == nil && m.Role() == member.RoleParticipant:
			levels = append(levels, AccessParticipant)
		case err == nil && m.Role() == member.RoleExaminer:
			levels = append(levels, AccessExaminer)
		case err != nil && !shared.IsNotFound(err):
			return "", err
		}
	}
	return "Доступные команды:\n" + b.router.Help(levels...), nil
}
