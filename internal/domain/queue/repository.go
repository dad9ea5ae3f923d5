package queue

import (
	"context"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// Repository определяет операции хранилища для очереди.
type Repository interface {
	// Create сохраняет запись и заполняет ID. ID растут монотонно и задают
	// порядок очереди.
	Create(ctx context.Context, e *Entry) error

	// GetByID возвращает запись по ID.
	GetByID(ctx context.Context, id int64) (*Entry, error)

	// Update сохраняет статус и принимающего.
	Update(ctx context.Context, e *Entry) error

	// ActiveByParticipant возвращает запись участника в статусе WAITING или DISCUSSING.
	// Возвращает ошибку вида ErrNotFound, если такой нет.
	ActiveByParticipant(ctx context.Context, participantID int64) (*Entry, error)

	// ActiveByExaminer возвращает запись в статусе DISCUSSING, закреплённую за принимающим.
	// Возвращает ошибку вида ErrNotFound, если такой нет.
	ActiveByExaminer(ctx context.Context, examinerID int64) (*Entry, error)

	// ListWaiting возвращает записи WAITING олимпиады по возрастанию ID.
	ListWaiting(ctx context.Context, olympID int64) ([]*Entry, error)

	// ListActive возвращает записи WAITING и DISCUSSING олимпиады по возрастанию ID.
	ListActive(ctx context.Context, olympID int64) ([]*Entry, error)

	// ListByParticipant возвращает все записи участника по возрастанию ID.
	ListByParticipant(ctx context.Context, participantID int64) ([]*Entry, error)

	// CountActive возвращает число активных записей олимпиады.
	CountActive(ctx context.Context, olympID int64) (int, error)
}

// ErrEntryNotFound - запись не найдена.
var ErrEntryNotFound = shared.NewDomainError("queue", "Find", shared.ErrNotFound, "Запись не найдена")
