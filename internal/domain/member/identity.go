// Package member описывает пользователей и их роли в олимпиаде:
// участников и принимающих.
package member

import (
	"strings"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// UserIdentity - глобальная личность пользователя, общая для всех олимпиад.
// Встраивается в Participant и Examiner.
type UserIdentity struct {
	// UserID - идентификатор глобального пользователя.
	UserID int64

	// TelegramID - ноль, пока пользователь не написал боту.
	TelegramID shared.TelegramID

	// Handle - Telegram-ник в нижнем регистре.
	Handle shared.Handle

	Name    string
	Surname string
}

// NewUserIdentity создаёт личность с проверкой ника и имени.
func NewUserIdentity(handle, name, surname string) (UserIdentity, error) {
	h, err := shared.NewHandle(handle)
	if err != nil {
		return UserIdentity{}, err
	}
	name, surname = strings.TrimSpace(name), strings.TrimSpace(surname)
	if name == "" || surname == "" {
		return UserIdentity{}, shared.NewDomainError("member", "NewUserIdentity", shared.ErrValidation,
			"Необходимо указать имя и фамилию")
	}
	return UserIdentity{Handle: h, Name: name, Surname: surname}, nil
}

// Identity возвращает саму личность. Через этот метод Participant и Examiner
// реализуют Member.
func (u UserIdentity) Identity() UserIdentity {
	return u
}

// FullName возвращает "Имя Фамилия".
func (u UserIdentity) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

// IsLinked проверяет, что пользователь авторизовался в боте.
func (u UserIdentity) IsLinked() bool {
	return u.TelegramID.IsValid()
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER
// ══════════════════════════════════════════════════════════════════════════════

// Role - роль пользователя в олимпиаде.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleExaminer    Role = "examiner"
)

// Title возвращает название роли для сообщений бота.
func (r Role) Title() string {
	if r == RoleParticipant {
		return "участник"
	}
	return "принимающий"
}

// Member - общее поведение участника и принимающего.
type Member interface {
	Identity() UserIdentity
	Role() Role
	MemberID() int64
}
