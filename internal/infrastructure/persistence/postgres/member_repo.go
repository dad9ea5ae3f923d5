package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements member.UserRepository for PostgreSQL.
type UserRepository struct {
	q Querier
}

const userColumns = `id, telegram_id, handle, name, surname`

// CreateUser inserts a user and fills UserID.
func (r *UserRepository) CreateUser(ctx context.Context, u *member.UserIdentity) error {
	query := `
		INSERT INTO users (telegram_id, handle, name, surname)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, nullableTelegramID(u.TelegramID), u.Handle.String(), u.Name, u.Surname).Scan(&u.UserID)
	return mapWriteError(err, "member", "CreateUser")
}

// GetUser returns a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, userID int64) (*member.UserIdentity, error) {
	return r.scan(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID), "GetUser")
}

// GetUserByTelegramID returns a user linked to the Telegram account.
func (r *UserRepository) GetUserByTelegramID(ctx context.Context, tgID shared.TelegramID) (*member.UserIdentity, error) {
	if !tgID.IsValid() {
		return nil, member.ErrUserNotFound
	}
	return r.scan(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, tgID.Int64()), "GetUserByTelegramID")
}

// GetUserByHandle returns a user by handle.
func (r *UserRepository) GetUserByHandle(ctx context.Context, handle shared.Handle) (*member.UserIdentity, error) {
	return r.scan(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE handle = $1`, handle.String()), "GetUserByHandle")
}

// UpdateUser stores handle, names and Telegram ID.
func (r *UserRepository) UpdateUser(ctx context.Context, u *member.UserIdentity) error {
	query := `
		UPDATE users SET telegram_id = $1, handle = $2, name = $3, surname = $4
		WHERE id = $5
	`
	tag, err := r.q.Exec(ctx, query, nullableTelegramID(u.TelegramID), u.Handle.String(), u.Name, u.Surname, u.UserID)
	if err != nil {
		return mapWriteError(err, "member", "UpdateUser")
	}
	if tag.RowsAffected() == 0 {
		return member.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user. Fails while the user has memberships.
func (r *UserRepository) DeleteUser(ctx context.Context, userID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return mapWriteError(err, "member", "DeleteUser")
	}
	if tag.RowsAffected() == 0 {
		return member.ErrUserNotFound
	}
	return nil
}

// ReassignMemberships moves all participant and examiner rows to another user.
func (r *UserRepository) ReassignMemberships(ctx context.Context, fromUserID, toUserID int64) error {
	if _, err := r.q.Exec(ctx, `UPDATE participants SET user_id = $2 WHERE user_id = $1`, fromUserID, toUserID); err != nil {
		return mapWriteError(err, "member", "ReassignMemberships")
	}
	if _, err := r.q.Exec(ctx, `UPDATE examiners SET user_id = $2 WHERE user_id = $1`, fromUserID, toUserID); err != nil {
		return mapWriteError(err, "member", "ReassignMemberships")
	}
	return nil
}

func (r *UserRepository) scan(row pgx.Row, op string) (*member.UserIdentity, error) {
	var (
		u      member.UserIdentity
		tgID   *int64
		handle string
	)
	if err := row.Scan(&u.UserID, &tgID, &handle, &u.Name, &u.Surname); err != nil {
		return nil, mapReadError(err, member.ErrUserNotFound, "member", op)
	}
	u.TelegramID = telegramIDFrom(tgID)
	u.Handle = shared.Handle(handle)
	return &u, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepository implements member.ParticipantRepository for PostgreSQL.
type ParticipantRepository struct {
	q Querier
}

const participantSelect = `
	SELECT p.id, p.olymp_id, u.id, u.telegram_id, u.handle, u.name, u.surname,
		   p.grade, p.last_block_number
	FROM participants p
	JOIN users u ON u.id = p.user_id
`

// CreateParticipant inserts a participant and fills its ID.
func (r *ParticipantRepository) CreateParticipant(ctx context.Context, p *member.Participant) error {
	query := `
		INSERT INTO participants (olymp_id, user_id, grade, last_block_number)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, p.OlympID, p.UserID, int(p.Grade), p.LastBlockNumber).Scan(&p.ID)
	return mapWriteError(err, "member", "CreateParticipant")
}

// GetParticipant returns a participant by ID.
func (r *ParticipantRepository) GetParticipant(ctx context.Context, id int64) (*member.Participant, error) {
	return r.scanOne(r.q.QueryRow(ctx, participantSelect+` WHERE p.id = $1`, id), "GetParticipant")
}

// GetParticipantByUser returns the participant record of a user in an olymp.
func (r *ParticipantRepository) GetParticipantByUser(ctx context.Context, olympID, userID int64) (*member.Participant, error) {
	row := r.q.QueryRow(ctx, participantSelect+` WHERE p.olymp_id = $1 AND p.user_id = $2`, olympID, userID)
	return r.scanOne(row, "GetParticipantByUser")
}

// UpdateParticipant stores grade and unlocked blocks.
func (r *ParticipantRepository) UpdateParticipant(ctx context.Context, p *member.Participant) error {
	tag, err := r.q.Exec(ctx, `UPDATE participants SET grade = $1, last_block_number = $2 WHERE id = $3`,
		int(p.Grade), p.LastBlockNumber, p.ID)
	if err != nil {
		return mapWriteError(err, "member", "UpdateParticipant")
	}
	if tag.RowsAffected() == 0 {
		return member.ErrParticipantNotFound
	}
	return nil
}

// ListParticipants returns the participants of an olymp ordered by ID.
func (r *ParticipantRepository) ListParticipants(ctx context.Context, olympID int64) ([]*member.Participant, error) {
	rows, err := r.q.Query(ctx, participantSelect+` WHERE p.olymp_id = $1 ORDER BY p.id`, olympID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list participants: %w", err)
	}
	defer rows.Close()

	var res []*member.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan participant: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *ParticipantRepository) scanOne(row pgx.Row, op string) (*member.Participant, error) {
	p, err := scanParticipant(row)
	if err != nil {
		return nil, mapReadError(err, member.ErrParticipantNotFound, "member", op)
	}
	return p, nil
}

func scanParticipant(row pgx.Row) (*member.Participant, error) {
	var (
		p      member.Participant
		tgID   *int64
		handle string
		grade  int
	)
	err := row.Scan(&p.ID, &p.OlympID, &p.UserID, &tgID, &handle, &p.Name, &p.Surname, &grade, &p.LastBlockNumber)
	if err != nil {
		return nil, err
	}
	p.TelegramID = telegramIDFrom(tgID)
	p.Handle = shared.Handle(handle)
	p.Grade = shared.Grade(grade)
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAMINER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ExaminerRepository implements member.ExaminerRepository for PostgreSQL.
type ExaminerRepository struct {
	q Querier
}

const examinerSelect = `
	SELECT e.id, e.olymp_id, u.id, u.telegram_id, u.handle, u.name, u.surname,
		   e.conference_link, e.is_busy, e.busyness_level,
		   COALESCE(array_agg(ep.problem_id ORDER BY ep.problem_id)
		            FILTER (WHERE ep.problem_id IS NOT NULL), '{}')
	FROM examiners e
	JOIN users u ON u.id = e.user_id
	LEFT JOIN examiner_problems ep ON ep.examiner_id = e.id
`

const examinerGroup = ` GROUP BY e.id, u.id`

// CreateExaminer inserts an examiner with the list of problems.
func (r *ExaminerRepository) CreateExaminer(ctx context.Context, x *member.Examiner) error {
	query := `
		INSERT INTO examiners (olymp_id, user_id, conference_link, is_busy, busyness_level)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, x.OlympID, x.UserID, x.ConferenceLink, x.IsBusy, x.BusynessLevel).Scan(&x.ID)
	if err != nil {
		return mapWriteError(err, "member", "CreateExaminer")
	}
	return r.saveProblems(ctx, x)
}

// GetExaminer returns an examiner by ID.
func (r *ExaminerRepository) GetExaminer(ctx context.Context, id int64) (*member.Examiner, error) {
	row := r.q.QueryRow(ctx, examinerSelect+` WHERE e.id = $1`+examinerGroup, id)
	return r.scanOne(row, "GetExaminer")
}

// GetExaminerByUser returns the examiner record of a user in an olymp.
func (r *ExaminerRepository) GetExaminerByUser(ctx context.Context, olympID, userID int64) (*member.Examiner, error) {
	row := r.q.QueryRow(ctx, examinerSelect+` WHERE e.olymp_id = $1 AND e.user_id = $2`+examinerGroup, olympID, userID)
	return r.scanOne(row, "GetExaminerByUser")
}

// UpdateExaminer stores link, availability, busyness and problems.
func (r *ExaminerRepository) UpdateExaminer(ctx context.Context, x *member.Examiner) error {
	query := `
		UPDATE examiners SET conference_link = $1, is_busy = $2, busyness_level = $3
		WHERE id = $4
	`
	tag, err := r.q.Exec(ctx, query, x.ConferenceLink, x.IsBusy, x.BusynessLevel, x.ID)
	if err != nil {
		return mapWriteError(err, "member", "UpdateExaminer")
	}
	if tag.RowsAffected() == 0 {
		return member.ErrExaminerNotFound
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM examiner_problems WHERE examiner_id = $1`, x.ID); err != nil {
		return mapWriteError(err, "member", "UpdateExaminer")
	}
	return r.saveProblems(ctx, x)
}

func (r *ExaminerRepository) saveProblems(ctx context.Context, x *member.Examiner) error {
	if len(x.Problems) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO examiner_problems (examiner_id, problem_id)
		SELECT $1, unnest($2::bigint[])
	`, x.ID, x.Problems)
	return mapWriteError(err, "member", "SaveExaminerProblems")
}

// ListExaminers returns the examiners of an olymp ordered by ID.
func (r *ExaminerRepository) ListExaminers(ctx context.Context, olympID int64) ([]*member.Examiner, error) {
	return r.list(ctx, examinerSelect+` WHERE e.olymp_id = $1`+examinerGroup+` ORDER BY e.id`, olympID)
}

// ListFreeExaminers returns free examiners of an olymp ordered by ID.
func (r *ExaminerRepository) ListFreeExaminers(ctx context.Context, olympID int64) ([]*member.Examiner, error) {
	return r.list(ctx, examinerSelect+` WHERE e.olymp_id = $1 AND NOT e.is_busy`+examinerGroup+` ORDER BY e.id`, olympID)
}

func (r *ExaminerRepository) list(ctx context.Context, query string, args ...any) ([]*member.Examiner, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list examiners: %w", err)
	}
	defer rows.Close()

	var res []*member.Examiner
	for rows.Next() {
		x, err := scanExaminer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan examiner: %w", err)
		}
		res = append(res, x)
	}
	return res, rows.Err()
}

func (r *ExaminerRepository) scanOne(row pgx.Row, op string) (*member.Examiner, error) {
	x, err := scanExaminer(row)
	if err != nil {
		return nil, mapReadError(err, member.ErrExaminerNotFound, "member", op)
	}
	return x, nil
}

func scanExaminer(row pgx.Row) (*member.Examiner, error) {
	var (
		x      member.Examiner
		tgID   *int64
		handle string
	)
	err := row.Scan(&x.ID, &x.OlympID, &x.UserID, &tgID, &handle, &x.Name, &x.Surname,
		&x.ConferenceLink, &x.IsBusy, &x.BusynessLevel, &x.Problems)
	if err != nil {
		return nil, err
	}
	x.TelegramID = telegramIDFrom(tgID)
	x.Handle = shared.Handle(handle)
	return &x, nil
}
