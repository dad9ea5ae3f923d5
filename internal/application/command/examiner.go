package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET BUSY COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SetBusyCommand toggles examiner availability.
type SetBusyCommand struct {
	ExaminerID int64
	Busy       bool
}

// ExaminerResult describes the examiner after a command and the entry they
// were matched with, if any.
type ExaminerResult struct {
	Examiner member.Examiner
	Assigned *queue.Entry
}

// SetBusy marks an examiner busy or free. Going free immediately looks for
// the oldest waiting entry they can judge.
func (e *Engine) SetBusy(ctx context.Context, oc olymp.Context, cmd SetBusyCommand) (*ExaminerResult, error) {
	var res ExaminerResult
	err := e.runInOlymp(ctx, "SetBusy", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		if err := o.RequireExamination("SetBusy"); err != nil {
			return err
		}
		x, err := e.examiner(ctx, tx, o, cmd.ExaminerID)
		if err != nil {
			return err
		}
		if !cmd.Busy && !x.IsBusy {
			return x.SetBusy(false)
		}
		if !cmd.Busy {
			current, err := activeOfExaminer(ctx, tx, x.ID)
			if err != nil {
				return err
			}
			if current != nil {
				return shared.NewDomainError("member", "SetBusy", shared.ErrAlreadyAssigned,
					"Сначала заверши текущую сдачу: /accept, /reject или /cancel")
			}
		}
		if err := x.SetBusy(cmd.Busy); err != nil {
			return err
		}
		if err := tx.Examiners().UpdateExaminer(ctx, x); err != nil {
			return fmt.Errorf("update examiner %d: %w", x.ID, err)
		}

		assigned, err := e.matchExaminer(ctx, tx, o, x, 0, out)
		if err != nil {
			return err
		}
		res = ExaminerResult{Examiner: *x}
		if assigned != nil {
			ac := *assigned
			res.Assigned = &ac
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// JUDGE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// JudgeCommand resolves the examiner's current discussion.
type JudgeCommand struct {
	ExaminerID int64
	Outcome    queue.Outcome

	// StayBusy keeps the examiner out of matching after the discussion.
	StayBusy bool
}

// Validate validates the command.
func (c JudgeCommand) Validate() error {
	if !c.Outcome.IsValid() {
		return shared.NewDomainError("queue", "Judge", shared.ErrValidation, "Некорректный результат сдачи")
	}
	return nil
}

// JudgeResult describes a resolved discussion.
type JudgeResult struct {
	Entry         queue.Entry
	AttemptsLeft  int
	UnlockedBlock *problem.Block
	NextEntry     *queue.Entry
}

// Judge records the outcome of a discussion, releases the examiner and, on
// success of the last problem of the current block, opens the next block.
func (e *Engine) Judge(ctx context.Context, oc olymp.Context, cmd JudgeCommand) (*JudgeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var res JudgeResult
	err := e.runInOlymp(ctx, "Judge", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		if err := o.RequireExamination("Judge"); err != nil {
			return err
		}
		x, err := e.examiner(ctx, tx, o, cmd.ExaminerID)
		if err != nil {
			return err
		}
		entry, err := activeOfExaminer(ctx, tx, x.ID)
		if err != nil {
			return err
		}
		if entry == nil {
			return shared.NewDomainError("queue", "Judge", shared.ErrNotAssigned, "Сейчас ты никого не принимаешь")
		}
		p, err := e.participant(ctx, tx, o, entry.ParticipantID)
		if err != nil {
			return err
		}

		if err := entry.Resolve(cmd.Outcome); err != nil {
			return err
		}
		if err := tx.Queue().Update(ctx, entry); err != nil {
			return fmt.Errorf("update entry %d: %w", entry.ID, err)
		}
		if !cmd.StayBusy {
			x.Release()
		}
		if err := tx.Examiners().UpdateExaminer(ctx, x); err != nil {
			return fmt.Errorf("update examiner %d: %w", x.ID, err)
		}

		// Notice numbering must use the block the problem was taken from,
		// before the next block is opened.
		qn, err := queueNotice(ctx, tx, o, p, entry)
		if err != nil {
			return err
		}

		unlocked, err := e.unlockNextBlock(ctx, tx, p, entry, out)
		if err != nil {
			return err
		}

		history, err := tx.Queue().ListByParticipant(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list participant entries: %w", err)
		}
		qn.Participant = *p

		notice := port.JudgementNotice{
			AssignmentNotice: port.AssignmentNotice{QueueNotice: qn, Examiner: *x},
			Outcome:          cmd.Outcome,
			AttemptsLeft:     queue.AttemptsLeft(history, entry.ProblemID),
		}
		if unlocked != nil {
			notice.UnlockedBlock = unlocked.Sequence()
		}
		out.add("judged", func(ctx context.Context, a port.Announcer, _ port.Distributor) error {
			return a.EntryJudged(ctx, notice)
		})

		next, err := e.matchExaminer(ctx, tx, o, x, 0, out)
		if err != nil {
			return err
		}

		res = JudgeResult{Entry: *entry, AttemptsLeft: notice.AttemptsLeft, UnlockedBlock: unlocked}
		if next != nil {
			nc := *next
			res.NextEntry = &nc
		}
		return e.completeDraining(ctx, tx, o, out)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// unlockNextBlock opens the next block if entry solved the last problem of
// the participant's latest block. Returns the new block when it exists in
// the store; the participant is advanced either way.
func (e *Engine) unlockNextBlock(ctx context.Context, tx port.Tx, p *member.Participant, entry *queue.Entry, out *outbox) (*problem.Block, error) {
	if entry.Status != queue.StatusSuccess {
		return nil, nil
	}
	b, err := blockOf(ctx, tx, p, entry.ProblemID)
	if err != nil || b == nil {
		return nil, err
	}
	if !b.IsLast(entry.ProblemID) || !p.ShouldGetNewProblem(b.Sequence()) {
		return nil, nil
	}

	seq, err := p.GiveNextProblemBlock()
	if err != nil {
		return nil, err
	}
	if err := tx.Participants().UpdateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("update participant %d: %w", p.ID, err)
	}

	next, err := tx.Problems().GetBlockByType(ctx, p.OlympID, p.BlockType(seq))
	if errors.Is(err, shared.ErrNotFound) {
		e.log(ctx).Warn("unlocked block is missing", logger.ParticipantID(p.ID), slog.String("block", p.BlockType(seq).String()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	distribute(out, p, next)
	return next, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WITHDRAW COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// WithdrawCommand takes an examiner off their discussion. The entry goes back
// to WAITING and keeps its place.
type WithdrawCommand struct {
	ExaminerID int64

	// Release makes the examiner free afterwards and lets them take another
	// waiting entry (never the one just withdrawn). By default the busy flag
	// is left as it was.
	Release bool

	Reason port.WithdrawReason
}

// WithdrawResult describes a withdrawal.
type WithdrawResult struct {
	Entry       queue.Entry
	NewExaminer *member.Examiner
}

// Withdraw returns the examiner's discussing entry to the queue and looks for
// another examiner for it.
func (e *Engine) Withdraw(ctx context.Context, oc olymp.Context, cmd WithdrawCommand) (*WithdrawResult, error) {
	var res *WithdrawResult
	err := e.runInOlymp(ctx, "Withdraw", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		if err := o.RequireExamination("Withdraw"); err != nil {
			return err
		}
		x, err := e.examiner(ctx, tx, o, cmd.ExaminerID)
		if err != nil {
			return err
		}
		res, err = e.withdraw(ctx, tx, o, x, cmd, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReportAbsentExaminer handles a participant complaint that the examiner did
// not show up. The examiner stays busy until they mark themselves free.
func (e *Engine) ReportAbsentExaminer(ctx context.Context, oc olymp.Context, participantID int64) (*WithdrawResult, error) {
	var res *WithdrawResult
	err := e.runInOlymp(ctx, "ReportAbsentExaminer", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		if err := o.RequireExamination("ReportAbsentExaminer"); err != nil {
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
			return shared.NewDomainError("queue", "ReportAbsent", shared.ErrNotQueued, "Ты не стоишь в очереди")
		}
		if entry.Status != queue.StatusDiscussing || entry.ExaminerID == nil {
			return shared.NewDomainError("queue", "ReportAbsent", shared.ErrNotAssigned,
				"Принимающий ещё не назначен, подожди немного")
		}
		x, err := e.examiner(ctx, tx, o, *entry.ExaminerID)
		if err != nil {
			return err
		}
		res, err = e.withdraw(ctx, tx, o, x, WithdrawCommand{ExaminerID: x.ID, Reason: port.WithdrawAbsent}, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) withdraw(ctx context.Context, tx port.Tx, o *olymp.Olymp, x *member.Examiner, cmd WithdrawCommand, out *outbox) (*WithdrawResult, error) {
	entry, err := activeOfExaminer(ctx, tx, x.ID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, shared.NewDomainError("queue", "Withdraw", shared.ErrNotAssigned, "Сейчас ты никого не принимаешь")
	}

	if err := entry.Withdraw(); err != nil {
		return nil, err
	}
	x.MarkWithdrawn()
	if cmd.Release {
		x.Release()
	}
	if err := tx.Queue().Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("update entry %d: %w", entry.ID, err)
	}
	if err := tx.Examiners().UpdateExaminer(ctx, x); err != nil {
		return nil, fmt.Errorf("update examiner %d: %w", x.ID, err)
	}

	p, err := e.participant(ctx, tx, o, entry.ParticipantID)
	if err != nil {
		return nil, err
	}
	qn, err := queueNotice(ctx, tx, o, p, entry)
	if err != nil {
		return nil, err
	}
	reason := cmd.Reason
	if reason == "" {
		reason = port.WithdrawByExaminer
	}
	notice := port.WithdrawalNotice{
		AssignmentNotice: port.AssignmentNotice{QueueNotice: qn, Examiner: *x},
		Reason:           reason,
	}
	out.add("withdrawn", func(ctx context.Context, a port.Announcer, _ port.Distributor) error {
		return a.ExaminerWithdrawn(ctx, notice)
	})

	next, err := e.matchEntry(ctx, tx, o, entry, x.ID, out)
	if err != nil {
		return nil, err
	}
	if _, err := e.matchExaminer(ctx, tx, o, x, entry.ID, out); err != nil {
		return nil, err
	}

	return &WithdrawResult{Entry: *entry, NewExaminer: next}, nil
}
