package member

import (
	"fmt"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// MergeProposal - предложение слить две записи одного человека. Возникает,
// когда пользователь сменил ник: старая запись знает его Telegram ID, новая
// создана регистрацией по новому нику.
type MergeProposal struct {
	// Canonical - запись, которая останется (с Telegram ID).
	Canonical UserIdentity

	// Duplicate - запись, которая будет удалена.
	Duplicate UserIdentity

	// Result - итоговые данные канонической записи: Telegram ID от Canonical,
	// ник и имя от Duplicate.
	Result UserIdentity
}

// Summary возвращает описание слияния для подтверждения.
func (p MergeProposal) Summary() string {
	return fmt.Sprintf("%s (%s) и %s (%s) будут объединены в %s (%s)",
		p.Canonical.FullName(), p.Canonical.Handle.Mention(),
		p.Duplicate.FullName(), p.Duplicate.Handle.Mention(),
		p.Result.FullName(), p.Result.Handle.Mention())
}

// ProposeMerge строит предложение слияния. Ничего не меняет.
// Каноническая запись - та, у которой есть Telegram ID.
func ProposeMerge(old, candidate UserIdentity) (MergeProposal, error) {
	if old.UserID == candidate.UserID {
		return MergeProposal{}, shared.NewDomainError("member", "ProposeMerge", shared.ErrValidation,
			"Нельзя объединить пользователя с самим собой")
	}
	canonical, duplicate := old, candidate
	if !canonical.IsLinked() && duplicate.IsLinked() {
		canonical, duplicate = duplicate, canonical
	}
	if !canonical.IsLinked() {
		return MergeProposal{}, shared.NewDomainError("member", "ProposeMerge", shared.ErrValidation,
			"Ни один из пользователей не авторизован в боте")
	}
	if duplicate.IsLinked() && duplicate.TelegramID != canonical.TelegramID {
		return MergeProposal{}, shared.NewDomainError("member", "ProposeMerge", shared.ErrConstraintViolation,
			"Пользователи привязаны к разным Telegram-аккаунтам")
	}

	result := canonical
	result.Name = duplicate.Name
	result.Surname = duplicate.Surname
	result.Handle = duplicate.Handle

	return MergeProposal{Canonical: canonical, Duplicate: duplicate, Result: result}, nil
}

// MergeRequiredError возвращается, когда авторизация упирается в
// необходимость слияния. Несёт предложение для подтверждения.
type MergeRequiredError struct {
	Proposal MergeProposal
}

func (e *MergeRequiredError) Error() string {
	return "Похоже, ты сменил ник. " + e.Proposal.Summary() + ". Подтверди командой /confirm_merge"
}

// Is позволяет проверять ошибку через errors.Is(err, shared.ErrMergeRequired).
func (e *MergeRequiredError) Is(target error) bool {
	return target == shared.ErrMergeRequired
}
