package command

import (
	"context"
	"fmt"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOIN QUEUE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// JoinQueueCommand puts a participant in the queue for a problem.
type JoinQueueCommand struct {
	ParticipantID int64

	// Number is the problem number as the participant sees it (1..9).
	Number int
}

// QueueResult describes the entry after a queue command.
type QueueResult struct {
	Entry    queue.Entry
	Problem  problem.Problem
	Number   int
	Examiner *member.Examiner
}

// JoinQueue creates a WAITING entry and immediately tries to find an examiner.
func (e *Engine) JoinQueue(ctx context.Context, oc olymp.Context, cmd JoinQueueCommand) (*QueueResult, error) {
	var res QueueResult
	err := e.runInOlymp(ctx, "JoinQueue", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		if err := o.RequireQueueOpen("JoinQueue"); err != nil {
			return err
		}
		p, err := e.participant(ctx, tx, o, cmd.ParticipantID)
		if err != nil {
			return err
		}

		active, err := activeOfParticipant(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return shared.NewDomainError("queue", "Join", shared.ErrAlreadyQueued,
				"Ты уже стоишь в очереди. Чтобы выйти из неё, напиши /leave")
		}

		seq, index, err := p.ProblemFromNumber(cmd.Number)
		if err != nil {
			return err
		}
		b, err := tx.Problems().GetBlockByType(ctx, o.ID, p.BlockType(seq))
		if err != nil {
			return notFoundAs(err, problem.ErrBlockNotFound)
		}
		problemID := b.Problems[index]

		history, err := tx.Queue().ListByParticipant(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list participant entries: %w", err)
		}
		if queue.IsSolved(history, problemID) {
			return shared.NewDomainError("queue", "Join", shared.ErrAlreadySolved, "Эта задача уже решена")
		}
		if queue.AttemptsLeft(history, problemID) == 0 {
			return shared.NewDomainError("queue", "Join", shared.ErrNoAttemptsLeft,
				"По этой задаче не осталось попыток")
		}

		entry := queue.NewEntry(o.ID, p.ID, problemID)
		if err := tx.Queue().Create(ctx, entry); err != nil {
			return fmt.Errorf("create entry: %w", err)
		}

		notice, err := queueNotice(ctx, tx, o, p, entry)
		if err != nil {
			return err
		}
		out.add("queued", func(ctx context.Context, a port.Announcer, _ port.Distributor) error {
			return a.QueueJoined(ctx, notice)
		})

		x, err := e.matchEntry(ctx, tx, o, entry, 0, out)
		if err != nil {
			return err
		}

		res = QueueResult{Entry: *entry, Problem: notice.Problem, Number: notice.Number, Examiner: x}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEAVE QUEUE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// LeaveQueue cancels the participant's waiting entry. A discussion in
// progress cannot be left this way.
func (e *Engine) LeaveQueue(ctx context.Context, oc olymp.Context, participantID int64) (*QueueResult, error) {
	var res QueueResult
	err := e.runInOlymp(ctx, "LeaveQueue", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		if err := o.RequireExamination("LeaveQueue"); err != nil {
			return err
		}
		p, err := e.participant(ctx, tx, o, participantID)
		if err != nil {
			return err
		}
		entry, err := activeOfParticipant(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if entry == nil {
			return shared.NewDomainError("queue", "Leave", shared.ErrNotQueued, "Ты не стоишь в очереди")
		}
		if err := entry.Leave(); err != nil {
			return err
		}
		if err := tx.Queue().Update(ctx, entry); err != nil {
			return fmt.Errorf("update entry %d: %w", entry.ID, err)
		}

		notice, err := queueNotice(ctx, tx, o, p, entry)
		if err != nil {
			return err
		}
		out.add("left", func(ctx context.Context, a port.Announcer, _ port.Distributor) error {
			return a.QueueLeft(ctx, notice)
		})

		res = QueueResult{Entry: *entry, Problem: notice.Problem, Number: notice.Number}
		return e.completeDraining(ctx, tx, o, out)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CANCEL ENTRY COMMAND (owner)
// ══════════════════════════════════════════════════════════════════════════════

// CancelEntry cancels any active entry on behalf of the owner. A discussing
// examiner is released and matched again.
func (e *Engine) CancelEntry(ctx context.Context, oc olymp.Context, entryID int64) (*QueueResult, error) {
	var res QueueResult
	err := e.runInOlymp(ctx, "CancelEntry", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		if err := o.RequireExamination("CancelEntry"); err != nil {
			return err
		}
		entry, err := tx.Queue().GetByID(ctx, entryID)
		if err != nil {
			return notFoundAs(err, queue.ErrEntryNotFound)
		}
		if entry.OlympID != o.ID {
			return queue.ErrEntryNotFound
		}

		var x *member.Examiner
		if entry.Status == queue.StatusDiscussing && entry.ExaminerID != nil {
			x, err = e.examiner(ctx, tx, o, *entry.ExaminerID)
			if err != nil {
				return err
			}
		}
		if err := entry.Cancel(); err != nil {
			return err
		}
		if err := tx.Queue().Update(ctx, entry); err != nil {
			return fmt.Errorf("update entry %d: %w", entry.ID, err)
		}
		if x != nil {
			x.Release()
			if err := tx.Examiners().UpdateExaminer(ctx, x); err != nil {
				return fmt.Errorf("update examiner %d: %w", x.ID, err)
			}
		}

		p, err := e.participant(ctx, tx, o, entry.ParticipantID)
		if err != nil {
			return err
		}
		qn, err := queueNotice(ctx, tx, o, p, entry)
		if err != nil {
			return err
		}
		notice := port.CancelNotice{QueueNotice: qn}
		if x != nil {
			xc := *x
			notice.Examiner = &xc
		}
		out.add("canceled", func(ctx context.Context, a port.Announcer, _ port.Distributor) error {
			return a.EntryCanceled(ctx, notice)
		})
		res = QueueResult{Entry: *entry, Problem: qn.Problem, Number: qn.Number, Examiner: notice.Examiner}

		if x != nil {
			if _, err := e.matchExaminer(ctx, tx, o, x, 0, out); err != nil {
				return err
			}
		}
		return e.completeDraining(ctx, tx, o, out)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
