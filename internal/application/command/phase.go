package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// OLYMP LIFECYCLE COMMANDS
// TBA -> REGISTRATION -> CONTEST -> {QUEUE -> RESULTS | RESULTS}
// ══════════════════════════════════════════════════════════════════════════════

// PhaseResult is returned by phase commands.
type PhaseResult struct {
	Olymp    olymp.Context
	Previous olymp.Status
}

// CreateOlymp creates a new olymp in TBA. Fails while another olymp is not
// finished yet.
func (e *Engine) CreateOlymp(ctx context.Context, name string) (*PhaseResult, error) {
	o, err := olymp.New(name)
	if err != nil {
		return nil, err
	}

	err = e.run(ctx, "CreateOlymp", globalLockKey, func(ctx context.Context, tx port.Tx, out *outbox) error {
		existing, err := tx.Olymps().GetUnfinished(ctx)
		switch {
		case err == nil:
			return shared.NewDomainError("olymp", "Create", shared.ErrInvalidPhaseTransition,
				fmt.Sprintf("Уже имеется незавершённая олимпиада %s. Заверши её, чтобы создать новую", existing.Name))
		case !errors.Is(err, shared.ErrNotFound):
			return err
		}
		if err := tx.Olymps().Create(ctx, o); err != nil {
			return err
		}
		out.phaseChanged(olymp.ContextOf(o))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &PhaseResult{Olymp: olymp.ContextOf(o)}, nil
}

// StartRegistration opens registration and tells every member they can
// authorize in the bot.
func (e *Engine) StartRegistration(ctx context.Context, oc olymp.Context) (*PhaseResult, error) {
	var res PhaseResult
	err := e.runInOlymp(ctx, "StartRegistration", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		res.Previous = o.Status
		if err := o.StartRegistration(); err != nil {
			return err
		}
		if err := tx.Olymps().UpdateStatus(ctx, o); err != nil {
			return fmt.Errorf("update olymp status: %w", err)
		}
		res.Olymp = olymp.ContextOf(o)
		return e.announcePhase(ctx, tx, o, res.Previous, out)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// StartContest starts the olymp: every participant gets block 1 of their tier.
func (e *Engine) StartContest(ctx context.Context, oc olymp.Context) (*PhaseResult, error) {
	var res PhaseResult
	err := e.runInOlymp(ctx, "StartContest", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		res.Previous = o.Status
		if err := o.StartContest(); err != nil {
			return err
		}
		if err := tx.Olymps().UpdateStatus(ctx, o); err != nil {
			return fmt.Errorf("update olymp status: %w", err)
		}

		participants, err := tx.Participants().ListParticipants(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		firstBlocks := make(map[problem.Tier]*problem.Block, 2)
		for _, p := range participants {
			if p.LastBlockNumber > 0 {
				continue
			}
			seq, err := p.GiveNextProblemBlock()
			if err != nil {
				return err
			}
			if err := tx.Participants().UpdateParticipant(ctx, p); err != nil {
				return fmt.Errorf("update participant %d: %w", p.ID, err)
			}

			b, ok := firstBlocks[p.Tier()]
			if !ok {
				b, err = tx.Problems().GetBlockByType(ctx, o.ID, p.BlockType(seq))
				if err != nil && !errors.Is(err, shared.ErrNotFound) {
					return err
				}
				if b == nil {
					e.log(ctx).Warn("first block is missing", logger.OlympID(o.ID), slog.Any("tier", p.Tier()))
				}
				firstBlocks[p.Tier()] = b
			}
			if b != nil {
				distribute(out, p, b)
			}
		}

		res.Olymp = olymp.ContextOf(o)
		return e.announcePhase(ctx, tx, o, res.Previous, out)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// FinishOlymp ends the contest. With active queue entries the olymp goes to
// QUEUE and finishes by itself once the queue is drained.
func (e *Engine) FinishOlymp(ctx context.Context, oc olymp.Context) (*PhaseResult, error) {
	var res PhaseResult
	err := e.runInOlymp(ctx, "FinishOlymp", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		res.Previous = o.Status
		active, err := tx.Queue().CountActive(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("count active entries: %w", err)
		}
		if err := o.Finish(active > 0); err != nil {
			return err
		}
		if err := tx.Olymps().UpdateStatus(ctx, o); err != nil {
			return fmt.Errorf("update olymp status: %w", err)
		}
		res.Olymp = olymp.ContextOf(o)
		return e.announcePhase(ctx, tx, o, res.Previous, out)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
