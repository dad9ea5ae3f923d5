// Package command contains write operations (CQRS - Commands) of the olymp
// queue: phase changes, queue moves, examiner actions and registration.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/matching"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// Every mutating operation runs as:
//   lock olymp -> one store transaction (check + mutate + cascade) -> unlock -> announce.
// Announcements are collected in an outbox during the transaction and dropped
// if it rolls back.
// ══════════════════════════════════════════════════════════════════════════════

// Engine executes commands against the store.
type Engine struct {
	store       port.Store
	locker      port.Locker
	announcer   port.Announcer
	distributor port.Distributor
	policy      matching.Policy
	contexts    *ContextHolder
	logger      *slog.Logger
}

// Deps groups the collaborators of Engine.
type Deps struct {
	Store       port.Store
	Locker      port.Locker
	Announcer   port.Announcer
	Policy      matching.Policy
	Contexts    *ContextHolder
	Logger      *slog.Logger

	// Distributor is optional; nil turns block file delivery off.
	Distributor port.Distributor
}

// NewEngine creates a new Engine.
func NewEngine(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if !d.Policy.Order.IsValid() {
		d.Policy = matching.DefaultPolicy()
	}
	if d.Contexts == nil {
		d.Contexts = NewContextHolder()
	}
	return &Engine{
		store:       d.Store,
		locker:      d.Locker,
		announcer:   d.Announcer,
		distributor: d.Distributor,
		policy:      d.Policy,
		contexts:    d.Contexts,
		logger:      d.Logger.With(logger.Component("engine")),
	}
}

// log returns the request logger from ctx, falling back to the engine logger.
func (e *Engine) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOr(ctx, e.logger)
}

// Contexts returns the holder of the current olymp context.
func (e *Engine) Contexts() *ContextHolder {
	return e.contexts
}

func lockKey(olympID int64) string {
	return "olymp:" + strconv.FormatInt(olympID, 10)
}

const globalLockKey = "olymp:global"

// unit is the body of one mutating operation.
type unit func(ctx context.Context, tx port.Tx, out *outbox) error

// run executes u under the lock for key and flushes the outbox on success.
func (e *Engine) run(ctx context.Context, op, key string, u unit) error {
	unlock, err := e.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: acquire lock %s: %w", op, key, err)
	}

	out := &outbox{}
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return u(ctx, tx, out)
	})
	unlock()

	if err != nil {
		if !shared.IsUserFacing(err) {
			e.log(ctx).Error("command failed", logger.Operation(op), logger.Err(err))
		}
		return err
	}

	if out.phase != nil {
		e.contexts.Set(*out.phase)
	}
	e.flush(ctx, op, out)
	return nil
}

// runInOlymp is run for operations scoped to the current olymp. The olymp is
// re-read inside the transaction, so a stale context cannot bypass a phase check.
func (e *Engine) runInOlymp(ctx context.Context, op string, oc olymp.Context, fn func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error) error {
	if oc.IsZero() {
		return olymp.ErrOlympNotFound
	}
	return e.run(ctx, op, lockKey(oc.OlympID), func(ctx context.Context, tx port.Tx, out *outbox) error {
		o, err := tx.Olymps().GetByID(ctx, oc.OlympID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, o, out)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX
// ══════════════════════════════════════════════════════════════════════════════

type delivery func(ctx context.Context, a port.Announcer, d port.Distributor) error

type outbox struct {
	items []namedDelivery
	phase *olymp.Context
}

type namedDelivery struct {
	kind string
	fn   delivery
}

func (o *outbox) add(kind string, fn delivery) {
	o.items = append(o.items, namedDelivery{kind: kind, fn: fn})
}

func (o *outbox) phaseChanged(c olymp.Context) {
	o.phase = &c
}

func (e *Engine) flush(ctx context.Context, op string, out *outbox) {
	for _, item := range out.items {
		if err := item.fn(ctx, e.announcer, e.distributor); err != nil {
			e.log(ctx).Warn("announcement failed",
				logger.Operation(op),
				slog.String("kind", item.kind),
				logger.Err(err),
			)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED STEPS
// ══════════════════════════════════════════════════════════════════════════════

// notFoundAs maps a repository ErrNotFound to a more specific error.
func notFoundAs(err, replacement error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return replacement
	}
	return err
}

func (e *Engine) participant(ctx context.Context, tx port.Tx, o *olymp.Olymp, id int64) (*member.Participant, error) {
	p, err := tx.Participants().GetParticipant(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, member.ErrParticipantNotFound)
	}
	if p.OlympID != o.ID {
		return nil, member.ErrParticipantNotFound
	}
	return p, nil
}

func (e *Engine) examiner(ctx context.Context, tx port.Tx, o *olymp.Olymp, id int64) (*member.Examiner, error) {
	x, err := tx.Examiners().GetExaminer(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, member.ErrExaminerNotFound)
	}
	if x.OlympID != o.ID {
		return nil, member.ErrExaminerNotFound
	}
	return x, nil
}

// activeOfExaminer returns the DISCUSSING entry of x or nil.
func activeOfExaminer(ctx context.Context, tx port.Tx, examinerID int64) (*queue.Entry, error) {
	entry, err := tx.Queue().ActiveByExaminer(ctx, examinerID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

// activeOfParticipant returns the WAITING or DISCUSSING entry of p or nil.
func activeOfParticipant(ctx context.Context, tx port.Tx, participantID int64) (*queue.Entry, error) {
	entry, err := tx.Queue().ActiveByParticipant(ctx, participantID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

// blockOf finds the unlocked block of p that contains problemID. Returns nil
// if the problem is not in any of them.
func blockOf(ctx context.Context, tx port.Tx, p *member.Participant, problemID int64) (*problem.Block, error) {
	for seq := 1; seq <= p.LastBlockNumber; seq++ {
		b, err := tx.Problems().GetBlockByType(ctx, p.OlympID, p.BlockType(seq))
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if b.Contains(problemID) {
			return b, nil
		}
	}
	return nil, nil
}

// queueNotice loads what a notice about entry needs.
func queueNotice(ctx context.Context, tx port.Tx, o *olymp.Olymp, p *member.Participant, entry *queue.Entry) (port.QueueNotice, error) {
	pr, err := tx.Problems().GetProblem(ctx, entry.ProblemID)
	if err != nil {
		return port.QueueNotice{}, fmt.Errorf("load problem %d: %w", entry.ProblemID, err)
	}
	n := port.QueueNotice{
		Olymp:       olymp.ContextOf(o),
		Participant: *p,
		Entry:       *entry,
		Problem:     *pr,
	}
	b, err := blockOf(ctx, tx, p, entry.ProblemID)
	if err != nil {
		return port.QueueNotice{}, err
	}
	if b != nil {
		n.Number = b.Number(entry.ProblemID)
	}
	return n, nil
}

// assign pairs x with a waiting entry: entry -> DISCUSSING, x busy, busyness+1.
func (e *Engine) assign(ctx context.Context, tx port.Tx, o *olymp.Olymp, x *member.Examiner, entry *queue.Entry, out *outbox) error {
	current, err := activeOfExaminer(ctx, tx, x.ID)
	if err != nil {
		return err
	}
	if current != nil {
		return shared.NewDomainError("queue", "Assign", shared.ErrAlreadyAssigned, "Принимающий уже принимает другого участника")
	}
	if err := entry.Assign(x.ID); err != nil {
		return err
	}
	x.MarkAssigned()

	if err := tx.Queue().Update(ctx, entry); err != nil {
		return fmt.Errorf("update entry %d: %w", entry.ID, err)
	}
	if err := tx.Examiners().UpdateExaminer(ctx, x); err != nil {
		return fmt.Errorf("update examiner %d: %w", x.ID, err)
	}

	p, err := tx.Participants().GetParticipant(ctx, entry.ParticipantID)
	if err != nil {
		return fmt.Errorf("load participant %d: %w", entry.ParticipantID, err)
	}
	qn, err := queueNotice(ctx, tx, o, p, entry)
	if err != nil {
		return err
	}
	notice := port.AssignmentNotice{QueueNotice: qn, Examiner: *x}
	out.add("assigned", func(ctx context.Context, a port.Announcer, _ port.Distributor) error {
		return a.ExaminerAssigned(ctx, notice)
	})
	return nil
}

// matchEntry looks for a free examiner for a waiting entry and assigns them.
// exclude is skipped, 0 means nobody. Returns the chosen examiner or nil.
func (e *Engine) matchEntry(ctx context.Context, tx port.Tx, o *olymp.Olymp, entry *queue.Entry, exclude int64, out *outbox) (*member.Examiner, error) {
	free, err := tx.Examiners().ListFreeExaminers(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list free examiners: %w", err)
	}
	candidates := make([]*member.Examiner, 0, len(free))
	for _, x := range free {
		if x.ID != exclude {
			candidates = append(candidates, x)
		}
	}
	x := e.policy.SelectExaminer(candidates, entry.ProblemID)
	if x == nil {
		return nil, nil
	}
	if err := e.assign(ctx, tx, o, x, entry, out); err != nil {
		return nil, err
	}
	return x, nil
}

// matchExaminer looks for the oldest waiting entry x can judge and assigns it.
// The entry with ID exclude is skipped. Returns the entry or nil.
func (e *Engine) matchExaminer(ctx context.Context, tx port.Tx, o *olymp.Olymp, x *member.Examiner, exclude int64, out *outbox) (*queue.Entry, error) {
	if !x.IsFree() {
		return nil, nil
	}
	waiting, err := tx.Queue().ListWaiting(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}
	candidates := make([]*queue.Entry, 0, len(waiting))
	for _, w := range waiting {
		if w.ID != exclude {
			candidates = append(candidates, w)
		}
	}
	entry := matching.SelectEntry(candidates, x)
	if entry == nil {
		return nil, nil
	}
	if err := e.assign(ctx, tx, o, x, entry, out); err != nil {
		return nil, err
	}
	return entry, nil
}

// completeDraining moves a QUEUE olymp to RESULTS once nothing is active.
func (e *Engine) completeDraining(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
	if o.Status != olymp.StatusQueue {
		return nil
	}
	active, err := tx.Queue().CountActive(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("count active entries: %w", err)
	}
	if !o.CompleteDraining(active > 0) {
		return nil
	}
	if err := tx.Olymps().UpdateStatus(ctx, o); err != nil {
		return fmt.Errorf("update olymp status: %w", err)
	}
	return e.announcePhase(ctx, tx, o, olymp.StatusQueue, out)
}

// announcePhase queues a phase notice for everyone in the olymp.
func (e *Engine) announcePhase(ctx context.Context, tx port.Tx, o *olymp.Olymp, previous olymp.Status, out *outbox) error {
	participants, err := tx.Participants().ListParticipants(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	examiners, err := tx.Examiners().ListExaminers(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("list examiners: %w", err)
	}
	active, err := tx.Queue().ListActive(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("list active entries: %w", err)
	}

	notice := port.PhaseNotice{
		Olymp:        olymp.ContextOf(o),
		Previous:     previous,
		Participants: make([]member.Participant, 0, len(participants)),
		Examiners:    make([]member.Examiner, 0, len(examiners)),
		Queued:       make(map[int64]bool, len(active)),
	}
	for _, p := range participants {
		notice.Participants = append(notice.Participants, *p)
	}
	for _, x := range examiners {
		notice.Examiners = append(notice.Examiners, *x)
	}
	for _, entry := range active {
		notice.Queued[entry.ParticipantID] = true
	}

	out.phaseChanged(notice.Olymp)
	out.add("phase", func(ctx context.Context, a port.Announcer, _ port.Distributor) error {
		return a.PhaseChanged(ctx, notice)
	})
	return nil
}

// distribute queues block file delivery for p.
func distribute(out *outbox, p *member.Participant, b *problem.Block) {
	pc, bc := *p, *b
	out.add("distribute", func(ctx context.Context, _ port.Announcer, d port.Distributor) error {
		if d == nil {
			return nil
		}
		return d.DistributeBlock(ctx, pc, bc)
	})
}
