// Package memory provides an in-process implementation of port.Store.
// It is used for local runs without PostgreSQL and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// Rows are stored the way a relational schema would keep them: participants
// and examiners reference users by ID and are joined on read.
// ══════════════════════════════════════════════════════════════════════════════

type participantRow struct {
	ID              int64
	OlympID         int64
	UserID          int64
	Grade           shared.Grade
	LastBlockNumber int
}

type examinerRow struct {
	ID             int64
	OlympID        int64
	UserID         int64
	ConferenceLink string
	IsBusy         bool
	BusynessLevel  int
	Problems       []int64
}

type state struct {
	seq int64

	olymps       map[int64]olymp.Olymp
	users        map[int64]member.UserIdentity
	participants map[int64]participantRow
	examiners    map[int64]examinerRow
	problems     map[int64]problem.Problem
	blocks       map[int64]problem.Block
	entries      map[int64]queue.Entry
}

func newState() *state {
	return &state{
		olymps:       make(map[int64]olymp.Olymp),
		users:        make(map[int64]member.UserIdentity),
		participants: make(map[int64]participantRow),
		examiners:    make(map[int64]examinerRow),
		problems:     make(map[int64]problem.Problem),
		blocks:       make(map[int64]problem.Block),
		entries:      make(map[int64]queue.Entry),
	}
}

// nextID hands out IDs from one sequence shared by all tables, so IDs grow
// monotonically in creation order.
func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *state) clone() *state {
	c := &state{
		seq:          s.seq,
		olymps:       make(map[int64]olymp.Olymp, len(s.olymps)),
		users:        make(map[int64]member.UserIdentity, len(s.users)),
		participants: make(map[int64]participantRow, len(s.participants)),
		examiners:    make(map[int64]examinerRow, len(s.examiners)),
		problems:     make(map[int64]problem.Problem, len(s.problems)),
		blocks:       make(map[int64]problem.Block, len(s.blocks)),
		entries:      make(map[int64]queue.Entry, len(s.entries)),
	}
	for k, v := range s.olymps {
		c.olymps[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.participants {
		c.participants[k] = v
	}
	for k, v := range s.examiners {
		v.Problems = append([]int64(nil), v.Problems...)
		c.examiners[k] = v
	}
	for k, v := range s.problems {
		c.problems[k] = v
	}
	for k, v := range s.blocks {
		c.blocks[k] = copyBlock(v)
	}
	for k, v := range s.entries {
		c.entries[k] = copyEntry(v)
	}
	return c
}

func copyBlock(b problem.Block) problem.Block {
	if b.Type != nil {
		t := *b.Type
		b.Type = &t
	}
	return b
}

func copyEntry(e queue.Entry) queue.Entry {
	if e.ExaminerID != nil {
		id := *e.ExaminerID
		e.ExaminerID = &id
	}
	return e
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store keeps all data in memory. Transactions are serialized: each one works
// on a private copy of the state which replaces the shared state on success.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithinTx implements port.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{s: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Ping reports the store as healthy. It exists to satisfy health checks.
func (s *Store) Ping(context.Context) error {
	return nil
}

type tx struct {
	s *state
}

func (t *tx) Olymps() olymp.Repository                   { return olympRepo{t.s} }
func (t *tx) Users() member.UserRepository               { return userRepo{t.s} }
func (t *tx) Participants() member.ParticipantRepository { return participantRepo{t.s} }
func (t *tx) Examiners() member.ExaminerRepository       { return examinerRepo{t.s} }
func (t *tx) Problems() problem.Repository               { return problemRepo{t.s} }
func (t *tx) Queue() queue.Repository                    { return queueRepo{t.s} }
