package problem

import (
	"context"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// Repository определяет операции хранилища для задач и блоков.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Problems
	// ─────────────────────────────────────────────────────────────────────────

	// CreateProblem сохраняет задачу.
	// Возвращает ошибку вида ErrConstraintViolation при дубликате названия.
	CreateProblem(ctx context.Context, p *Problem) error

	// GetProblem возвращает задачу по ID.
	GetProblem(ctx context.Context, id int64) (*Problem, error)

	// ListProblems возвращает задачи олимпиады по возрастанию ID.
	ListProblems(ctx context.Context, olympID int64) ([]*Problem, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Blocks
	// ─────────────────────────────────────────────────────────────────────────

	// CreateBlock сохраняет блок.
	// Возвращает ошибку вида ErrConstraintViolation при дубликате типа.
	CreateBlock(ctx context.Context, b *Block) error

	// GetBlockByType возвращает блок олимпиады нужного типа.
	GetBlockByType(ctx context.Context, olympID int64, t BlockType) (*Block, error)

	// ListBlocks возвращает блоки олимпиады по возрастанию ID.
	ListBlocks(ctx context.Context, olympID int64) ([]*Block, error)
}

var (
	// ErrProblemNotFound - задача не найдена.
	ErrProblemNotFound = shared.NewDomainError("problem", "Find", shared.ErrNotFound, "Задача не найдена")

	// ErrBlockNotFound - блок задач не найден.
	ErrBlockNotFound = shared.NewDomainError("problem", "FindBlock", shared.ErrNotFound, "Блок задач не найден")
)
