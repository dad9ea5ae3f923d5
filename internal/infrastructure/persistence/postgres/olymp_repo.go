package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
)

// OlympRepository implements olymp.Repository for PostgreSQL.
type OlympRepository struct {
	q Querier
}

const olympColumns = `id, name, status, created_at, updated_at`

// Create inserts a new olymp and fills its ID.
func (r *OlympRepository) Create(ctx context.Context, o *olymp.Olymp) error {
	query := `
		INSERT INTO olymps (name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, o.Name, string(o.Status), o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	return mapWriteError(err, "olymp", "Create")
}

// GetByID returns an olymp by ID.
func (r *OlympRepository) GetByID(ctx context.Context, id int64) (*olymp.Olymp, error) {
	row := r.q.QueryRow(ctx, `SELECT `+olympColumns+` FROM olymps WHERE id = $1`, id)
	return r.scan(row, "GetByID")
}

// GetCurrent returns the most recently created olymp.
func (r *OlympRepository) GetCurrent(ctx context.Context) (*olymp.Olymp, error) {
	row := r.q.QueryRow(ctx, `SELECT `+olympColumns+` FROM olymps ORDER BY id DESC LIMIT 1`)
	return r.scan(row, "GetCurrent")
}

// GetUnfinished returns the olymp that has not reached RESULTS.
func (r *OlympRepository) GetUnfinished(ctx context.Context) (*olymp.Olymp, error) {
	row := r.q.QueryRow(ctx, `SELECT `+olympColumns+` FROM olymps WHERE status <> 'results' ORDER BY id LIMIT 1`)
	return r.scan(row, "GetUnfinished")
}

// UpdateStatus stores the phase of the olymp.
func (r *OlympRepository) UpdateStatus(ctx context.Context, o *olymp.Olymp) error {
	tag, err := r.q.Exec(ctx, `UPDATE olymps SET status = $1, updated_at = $2 WHERE id = $3`,
		string(o.Status), o.UpdatedAt, o.ID)
	if err != nil {
		return mapWriteError(err, "olymp", "UpdateStatus")
	}
	if tag.RowsAffected() == 0 {
		return olymp.ErrOlympNotFound
	}
	return nil
}

func (r *OlympRepository) scan(row pgx.Row, op string) (*olymp.Olymp, error) {
	var (
		o      olymp.Olymp
		status string
	)
	if err := row.Scan(&o.ID, &o.Name, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, mapReadError(err, olymp.ErrOlympNotFound, "olymp", op)
	}
	o.Status = olymp.Status(status)
	return &o, nil
}
