package member

import (
	"context"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository - глобальные пользователи.
type UserRepository interface {
	// CreateUser сохраняет пользователя и заполняет UserID.
	// Возвращает ошибку вида ErrConstraintViolation при дубликате ника или Telegram ID.
	CreateUser(ctx context.Context, u *UserIdentity) error

	GetUser(ctx context.Context, userID int64) (*UserIdentity, error)
	GetUserByTelegramID(ctx context.Context, tgID shared.TelegramID) (*UserIdentity, error)
	GetUserByHandle(ctx context.Context, handle shared.Handle) (*UserIdentity, error)

	// UpdateUser сохраняет ник, имя и Telegram ID.
	UpdateUser(ctx context.Context, u *UserIdentity) error

	// DeleteUser удаляет пользователя без участий в олимпиадах.
	DeleteUser(ctx context.Context, userID int64) error

	// ReassignMemberships переносит все участия и роли принимающего от
	// fromUserID к toUserID.
	ReassignMemberships(ctx context.Context, fromUserID, toUserID int64) error
}

// ParticipantRepository - участники олимпиад.
type ParticipantRepository interface {
	// CreateParticipant сохраняет участника и заполняет ID.
	// Возвращает ошибку вида ErrConstraintViolation, если пользователь уже участник.
	CreateParticipant(ctx context.Context, p *Participant) error

	GetParticipant(ctx context.Context, id int64) (*Participant, error)
	GetParticipantByUser(ctx context.Context, olympID, userID int64) (*Participant, error)

	// UpdateParticipant сохраняет класс и число открытых блоков.
	UpdateParticipant(ctx context.Context, p *Participant) error

	// ListParticipants возвращает участников олимпиады по возрастанию ID.
	ListParticipants(ctx context.Context, olympID int64) ([]*Participant, error)
}

// ExaminerRepository - принимающие олимпиад.
type ExaminerRepository interface {
	// CreateExaminer сохраняет принимающего вместе со списком задач.
	// Возвращает ошибку вида ErrConstraintViolation, если пользователь уже принимающий.
	CreateExaminer(ctx context.Context, e *Examiner) error

	GetExaminer(ctx context.Context, id int64) (*Examiner, error)
	GetExaminerByUser(ctx context.Context, olympID, userID int64) (*Examiner, error)

	// UpdateExaminer сохраняет ссылку, занятость, загруженность и список задач.
	UpdateExaminer(ctx context.Context, e *Examiner) error

	// ListExaminers возвращает принимающих олимпиады по возрастанию ID.
	ListExaminers(ctx context.Context, olympID int64) ([]*Examiner, error)

	// ListFreeExaminers возвращает свободных принимающих по возрастанию ID.
	ListFreeExaminers(ctx context.Context, olympID int64) ([]*Examiner, error)
}

var (
	// ErrUserNotFound - пользователь не найден.
	ErrUserNotFound = shared.NewDomainError("member", "FindUser", shared.ErrNotFound, "Пользователь не найден")

	// ErrParticipantNotFound - участник не найден.
	ErrParticipantNotFound = shared.NewDomainError("member", "FindParticipant", shared.ErrNotFound,
		"Участник не найден. Если ты участник, авторизуйся при помощи команды /start")

	// ErrExaminerNotFound - принимающий не найден.
	ErrExaminerNotFound = shared.NewDomainError("member", "FindExaminer", shared.ErrNotFound,
		"Принимающий не найден. Если ты принимающий, авторизуйся при помощи команды /start")
)
