package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
)

// ProblemRepository implements problem.Repository for PostgreSQL.
type ProblemRepository struct {
	q Querier
}

// ─────────────────────────────────────────────────────────────────────────────
// Problems
// ─────────────────────────────────────────────────────────────────────────────

// CreateProblem inserts a problem and fills its ID.
func (r *ProblemRepository) CreateProblem(ctx context.Context, p *problem.Problem) error {
	err := r.q.QueryRow(ctx, `INSERT INTO problems (olymp_id, name) VALUES ($1, $2) RETURNING id`,
		p.OlympID, p.Name).Scan(&p.ID)
	return mapWriteError(err, "problem", "CreateProblem")
}

// GetProblem returns a problem by ID.
func (r *ProblemRepository) GetProblem(ctx context.Context, id int64) (*problem.Problem, error) {
	var p problem.Problem
	err := r.q.QueryRow(ctx, `SELECT id, olymp_id, name FROM problems WHERE id = $1`, id).
		Scan(&p.ID, &p.OlympID, &p.Name)
	if err != nil {
		return nil, mapReadError(err, problem.ErrProblemNotFound, "problem", "GetProblem")
	}
	return &p, nil
}

// ListProblems returns the problems of an olymp ordered by ID.
func (r *ProblemRepository) ListProblems(ctx context.Context, olympID int64) ([]*problem.Problem, error) {
	rows, err := r.q.Query(ctx, `SELECT id, olymp_id, name FROM problems WHERE olymp_id = $1 ORDER BY id`, olympID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list problems: %w", err)
	}
	defer rows.Close()

	var res []*problem.Problem
	for rows.Next() {
		var p problem.Problem
		if err := rows.Scan(&p.ID, &p.OlympID, &p.Name); err != nil {
			return nil, fmt.Errorf("postgres: scan problem: %w", err)
		}
		res = append(res, &p)
	}
	return res, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Blocks
// ─────────────────────────────────────────────────────────────────────────────

const blockColumns = `id, olymp_id, problem_1, problem_2, problem_3, block_tier, block_sequence, path`

// CreateBlock inserts a block and fills its ID.
func (r *ProblemRepository) CreateBlock(ctx context.Context, b *problem.Block) error {
	var (
		tier *string
		seq  *int
	)
	if b.Type != nil {
		t := string(b.Type.Tier)
		s := b.Type.Sequence
		tier, seq = &t, &s
	}
	query := `
		INSERT INTO problem_blocks (olymp_id, problem_1, problem_2, problem_3, block_tier, block_sequence, path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, b.OlympID, b.Problems[0], b.Problems[1], b.Problems[2], tier, seq, b.Path).
		Scan(&b.ID)
	return mapWriteError(err, "problem", "CreateBlock")
}

// GetBlockByType returns the block of the given type.
func (r *ProblemRepository) GetBlockByType(ctx context.Context, olympID int64, t problem.BlockType) (*problem.Block, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+blockColumns+` FROM problem_blocks
		WHERE olymp_id = $1 AND block_tier = $2 AND block_sequence = $3
	`, olympID, string(t.Tier), t.Sequence)
	b, err := scanBlock(row)
	if err != nil {
		return nil, mapReadError(err, problem.ErrBlockNotFound, "problem", "GetBlockByType")
	}
	return b, nil
}

// ListBlocks returns the blocks of an olymp ordered by ID.
func (r *ProblemRepository) ListBlocks(ctx context.Context, olympID int64) ([]*problem.Block, error) {
	rows, err := r.q.Query(ctx, `SELECT `+blockColumns+` FROM problem_blocks WHERE olymp_id = $1 ORDER BY id`, olympID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list blocks: %w", err)
	}
	defer rows.Close()

	var res []*problem.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan block: %w", err)
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func scanBlock(row pgx.Row) (*problem.Block, error) {
	var (
		b    problem.Block
		tier *string
		seq  *int
	)
	err := row.Scan(&b.ID, &b.OlympID, &b.Problems[0], &b.Problems[1], &b.Problems[2], &tier, &seq, &b.Path)
	if err != nil {
		return nil, err
	}
	if tier != nil && seq != nil {
		b.Type = &problem.BlockType{Tier: problem.Tier(*tier), Sequence: *seq}
	}
	return &b, nil
}
