package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
)

// QueueRepository implements queue.Repository for PostgreSQL.
type QueueRepository struct {
	q Querier
}

const entryColumns = `id, olymp_id, participant_id, problem_id, status, examiner_id, created_at, updated_at`

// Create inserts an entry. BIGSERIAL IDs define the queue order.
func (r *QueueRepository) Create(ctx context.Context, e *queue.Entry) error {
	query := `
		INSERT INTO queue_entries (olymp_id, participant_id, problem_id, status, examiner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, e.OlympID, e.ParticipantID, e.ProblemID, string(e.Status),
		e.ExaminerID, e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
	return mapWriteError(err, "queue", "Create")
}

// GetByID returns an entry by ID.
func (r *QueueRepository) GetByID(ctx context.Context, id int64) (*queue.Entry, error) {
	return r.scanOne(r.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = $1`, id), "GetByID")
}

// Update stores status and examiner.
func (r *QueueRepository) Update(ctx context.Context, e *queue.Entry) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE queue_entries SET status = $1, examiner_id = $2, updated_at = $3
		WHERE id = $4
	`, string(e.Status), e.ExaminerID, e.UpdatedAt, e.ID)
	if err != nil {
		return mapWriteError(err, "queue", "Update")
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrEntryNotFound
	}
	return nil
}

// ActiveByParticipant returns the waiting or discussing entry of a participant.
func (r *QueueRepository) ActiveByParticipant(ctx context.Context, participantID int64) (*queue.Entry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE participant_id = $1 AND status IN ('waiting', 'discussing')
	`, participantID)
	return r.scanOne(row, "ActiveByParticipant")
}

// ActiveByExaminer returns the entry the examiner is discussing.
func (r *QueueRepository) ActiveByExaminer(ctx context.Context, examinerID int64) (*queue.Entry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE examiner_id = $1 AND status = 'discussing'
	`, examinerID)
	return r.scanOne(row, "ActiveByExaminer")
}

// ListWaiting returns waiting entries in queue order.
func (r *QueueRepository) ListWaiting(ctx context.Context, olympID int64) ([]*queue.Entry, error) {
	return r.list(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE olymp_id = $1 AND status = 'waiting'
		ORDER BY id
	`, olympID)
}

// ListActive returns waiting and discussing entries in queue order.
func (r *QueueRepository) ListActive(ctx context.Context, olympID int64) ([]*queue.Entry, error) {
	return r.list(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE olymp_id = $1 AND status IN ('waiting', 'discussing')
		ORDER BY id
	`, olympID)
}

// ListByParticipant returns the whole history of a participant.
func (r *QueueRepository) ListByParticipant(ctx context.Context, participantID int64) ([]*queue.Entry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE participant_id = $1 ORDER BY id`, participantID)
}

// CountActive returns the number of active entries of an olymp.
func (r *QueueRepository) CountActive(ctx context.Context, olympID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM queue_entries
		WHERE olymp_id = $1 AND status IN ('waiting', 'discussing')
	`, olympID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count active entries: %w", err)
	}
	return n, nil
}

func (r *QueueRepository) list(ctx context.Context, query string, args ...any) ([]*queue.Entry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries: %w", err)
	}
	defer rows.Close()

	var res []*queue.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan entry: %w", err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r *QueueRepository) scanOne(row pgx.Row, op string) (*queue.Entry, error) {
	e, err := scanEntry(row)
	if err != nil {
		return nil, mapReadError(err, queue.ErrEntryNotFound, "queue", op)
	}
	return e, nil
}

func scanEntry(row pgx.Row) (*queue.Entry, error) {
	var (
		e      queue.Entry
		status string
	)
	err := row.Scan(&e.ID, &e.OlympID, &e.ParticipantID, &e.ProblemID, &status, &e.ExaminerID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = queue.Status(status)
	return &e, nil
}
