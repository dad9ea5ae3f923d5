package olymp

import (
	"context"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища для олимпиад.
type Repository interface {
	// Create сохраняет новую олимпиаду и заполняет ID.
	// Возвращает ошибку вида ErrConstraintViolation при дубликате названия.
	Create(ctx context.Context, o *Olymp) error

	// GetByID возвращает олимпиаду по ID.
	// Возвращает ошибку вида ErrNotFound, если олимпиада не найдена.
	GetByID(ctx context.Context, id int64) (*Olymp, error)

	// GetCurrent возвращает последнюю созданную олимпиаду.
	// Возвращает ошибку вида ErrNotFound, если олимпиад ещё нет.
	GetCurrent(ctx context.Context) (*Olymp, error)

	// GetUnfinished возвращает олимпиаду не в фазе RESULTS, если она есть.
	// Возвращает ошибку вида ErrNotFound, если все олимпиады завершены.
	GetUnfinished(ctx context.Context) (*Olymp, error)

	// UpdateStatus сохраняет фазу олимпиады.
	UpdateStatus(ctx context.Context, o *Olymp) error
}

// ErrOlympNotFound - олимпиада не найдена.
var ErrOlympNotFound = shared.NewDomainError("olymp", "Find", shared.ErrNotFound, "Нет текущей олимпиады")
