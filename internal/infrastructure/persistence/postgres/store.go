package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements port.Store on top of a Connection. Every unit of work is
// one database transaction.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// WithinTx implements port.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(t pgx.Tx) error {
		return fn(ctx, &repositories{q: t})
	})
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

type repositories struct {
	q Querier
}

func (r *repositories) Olymps() olymp.Repository                   { return &OlympRepository{q: r.q} }
func (r *repositories) Users() member.UserRepository               { return &UserRepository{q: r.q} }
func (r *repositories) Participants() member.ParticipantRepository { return &ParticipantRepository{q: r.q} }
func (r *repositories) Examiners() member.ExaminerRepository       { return &ExaminerRepository{q: r.q} }
func (r *repositories) Problems() problem.Repository               { return &ProblemRepository{q: r.q} }
func (r *repositories) Queue() queue.Repository                    { return &QueueRepository{q: r.q} }

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// constraintMessages maps unique constraints to messages shown to users.
var constraintMessages = map[string]string{
	"users_handle_key":                          "Пользователь с таким ником уже существует",
	"users_telegram_id_key":                     "Этот Telegram-аккаунт уже привязан к другому пользователю",
	"olymps_name_key":                           "Олимпиада с таким названием уже существует",
	"olymps_one_unfinished":                     "Уже имеется незавершённая олимпиада",
	"problems_olymp_name_key":                   "Задача с таким названием уже существует",
	"problem_blocks_type_key":                   "Блок такого типа уже существует",
	"participants_olymp_user_key":               "Пользователь уже зарегистрирован как участник",
	"examiners_olymp_user_key":                  "Пользователь уже зарегистрирован как принимающий",
	"queue_entries_one_active_per_participant":  "У участника уже есть активная запись",
	"queue_entries_one_discussion_per_examiner": "Принимающий уже принимает другого участника",
}

// mapWriteError turns constraint violations into domain errors and wraps
// everything else.
func mapWriteError(err error, domain, op string) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) || IsForeignKeyViolation(err) {
		msg, ok := constraintMessages[constraintName(err)]
		if !ok {
			msg = "Нарушено ограничение целостности данных"
		}
		return shared.WrapError(domain, op, shared.ErrConstraintViolation, msg, err)
	}
	return fmt.Errorf("postgres: %s.%s: %w", domain, op, err)
}

// mapReadError turns pgx.ErrNoRows into notFound.
func mapReadError(err error, notFound error, domain, op string) error {
	if IsNoRows(err) {
		return notFound
	}
	return fmt.Errorf("postgres: %s.%s: %w", domain, op, err)
}

func nullableTelegramID(id shared.TelegramID) *int64 {
	if !id.IsValid() {
		return nil
	}
	v := id.Int64()
	return &v
}

func telegramIDFrom(v *int64) shared.TelegramID {
	if v == nil {
		return 0
	}
	return shared.TelegramID(*v)
}
