// Package query contains read operations (CQRS - Queries). Queries never
// change the store.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/matching"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// Service answers read-only questions about the current olymp.
type Service struct {
	store  port.Store
	policy matching.Policy
}

// NewService creates a new query Service.
func NewService(store port.Store, policy matching.Policy) *Service {
	if !policy.Order.IsValid() {
		policy = matching.DefaultPolicy()
	}
	return &Service{store: store, policy: policy}
}

func (s *Service) read(ctx context.Context, oc olymp.Context, fn func(ctx context.Context, tx port.Tx, o *olymp.Olymp) error) error {
	if oc.IsZero() {
		return olymp.ErrOlympNotFound
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		o, err := tx.Olymps().GetByID(ctx, oc.OlympID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, o)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// OLYMP INFO
// ══════════════════════════════════════════════════════════════════════════════

// OlympInfo summarizes the olymp for the owner and the status API.
type OlympInfo struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Status       olymp.Status `json:"status"`
	Participants int          `json:"participants"`
	Examiners    int          `json:"examiners"`
	FreeExams    int          `json:"free_examiners"`
	Waiting      int          `json:"waiting"`
	Discussing   int          `json:"discussing"`
	Problems     int          `json:"problems"`
}

// OlympInfo returns counters of the current olymp.
func (s *Service) OlympInfo(ctx context.Context, oc olymp.Context) (*OlympInfo, error) {
	var info OlympInfo
	err := s.read(ctx, oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp) error {
		info = OlympInfo{ID: o.ID, Name: o.Name, Status: o.Status}

		participants, err := tx.Participants().ListParticipants(ctx, o.ID)
		if err != nil {
			return err
		}
		examiners, err := tx.Examiners().ListExaminers(ctx, o.ID)
		if err != nil {
			return err
		}
		active, err := tx.Queue().ListActive(ctx, o.ID)
		if err != nil {
			return err
		}
		problems, err := tx.Problems().ListProblems(ctx, o.ID)
		if err != nil {
			return err
		}

		info.Participants = len(participants)
		info.Examiners = len(examiners)
		info.Problems = len(problems)
		for _, x := range examiners {
			if x.IsFree() {
				info.FreeExams++
			}
		}
		for _, e := range active {
			if e.Status == queue.StatusWaiting {
				info.Waiting++
			} else {
				info.Discussing++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBERS
// ══════════════════════════════════════════════════════════════════════════════

// ResolveMember returns the participant or examiner linked to a Telegram ID.
func (s *Service) ResolveMember(ctx context.Context, oc olymp.Context, tgID shared.TelegramID) (member.Member, error) {
	var m member.Member
	err := s.read(ctx, oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp) error {
		u, err := tx.Users().GetUserByTelegramID(ctx, tgID)
		if err != nil {
			return notFoundAs(err, member.ErrUserNotFound)
		}
		p, err := tx.Participants().GetParticipantByUser(ctx, o.ID, u.UserID)
		if err == nil {
			m = p
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		x, err := tx.Examiners().GetExaminerByUser(ctx, o.ID, u.UserID)
		if err != nil {
			return notFoundAs(err, member.ErrUserNotFound)
		}
		m = x
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// ProblemProgress is the state of one unlocked problem for a participant.
type ProblemProgress struct {
	Number       int    `json:"number"`
	ProblemID    int64  `json:"problem_id"`
	Name         string `json:"name"`
	Solved       bool   `json:"solved"`
	AttemptsLeft int    `json:"attempts_left"`
}

// Progress is a participant's view of the olymp.
type Progress struct {
	ParticipantID   int64             `json:"participant_id"`
	LastBlockNumber int               `json:"last_block_number"`
	Problems        []ProblemProgress `json:"problems"`
	Active          *queue.Entry      `json:"active,omitempty"`
}

// ParticipantProgress lists unlocked problems with attempts and the active entry.
func (s *Service) ParticipantProgress(ctx context.Context, oc olymp.Context, participantID int64) (*Progress, error) {
	var res Progress
	err := s.read(ctx, oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp) error {
		p, err := tx.Participants().GetParticipant(ctx, participantID)
		if err != nil {
			return notFoundAs(err, member.ErrParticipantNotFound)
		}
		if p.OlympID != o.ID {
			return member.ErrParticipantNotFound
		}
		history, err := tx.Queue().ListByParticipant(ctx, p.ID)
		if err != nil {
			return err
		}

		res = Progress{ParticipantID: p.ID, LastBlockNumber: p.LastBlockNumber}
		for seq := 1; seq <= p.LastBlockNumber; seq++ {
			b, err := tx.Problems().GetBlockByType(ctx, o.ID, p.BlockType(seq))
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			for _, id := range b.Problems {
				pr, err := tx.Problems().GetProblem(ctx, id)
				if err != nil {
					return fmt.Errorf("load problem %d: %w", id, err)
				}
				res.Problems = append(res.Problems, ProblemProgress{
					Number:       b.Number(id),
					ProblemID:    id,
					Name:         pr.Name,
					Solved:       queue.IsSolved(history, id),
					AttemptsLeft: queue.AttemptsLeft(history, id),
				})
			}
		}
		for _, e := range history {
			if e.Status.IsActive() {
				ec := *e
				res.Active = &ec
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is the current queue of the olymp.
type Snapshot struct {
	Status        olymp.Status  `json:"status"`
	Entries       []queue.Entry `json:"entries"`
	FreeExaminers []int64       `json:"free_examiners"`
}

// QueueSnapshot returns active entries in queue order and free examiners.
func (s *Service) QueueSnapshot(ctx context.Context, oc olymp.Context) (*Snapshot, error) {
	var res Snapshot
	err := s.read(ctx, oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp) error {
		active, err := tx.Queue().ListActive(ctx, o.ID)
		if err != nil {
			return err
		}
		free, err := tx.Examiners().ListFreeExaminers(ctx, o.ID)
		if err != nil {
			return err
		}
		res = Snapshot{Status: o.Status, Entries: make([]queue.Entry, 0, len(active)), FreeExaminers: make([]int64, 0, len(free))}
		for _, e := range active {
			res.Entries = append(res.Entries, *e)
		}
		for _, x := range free {
			res.FreeExaminers = append(res.FreeExaminers, x.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING PREVIEW
// ══════════════════════════════════════════════════════════════════════════════

// FindExaminerFor returns the examiner a waiting entry would be assigned to
// right now, or nil.
func (s *Service) FindExaminerFor(ctx context.Context, oc olymp.Context, entryID int64) (*member.Examiner, error) {
	var res *member.Examiner
	err := s.read(ctx, oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp) error {
		entry, err := tx.Queue().GetByID(ctx, entryID)
		if err != nil {
			return notFoundAs(err, queue.ErrEntryNotFound)
		}
		if entry.OlympID != o.ID {
			return queue.ErrEntryNotFound
		}
		if entry.Status != queue.StatusWaiting {
			return nil
		}
		free, err := tx.Examiners().ListFreeExaminers(ctx, o.ID)
		if err != nil {
			return err
		}
		res = s.policy.SelectExaminer(free, entry.ProblemID)
		return nil
	})
	return res, err
}

// FindQueueEntryFor returns the waiting entry an examiner would get right
// now, or nil.
func (s *Service) FindQueueEntryFor(ctx context.Context, oc olymp.Context, examinerID int64) (*queue.Entry, error) {
	var res *queue.Entry
	err := s.read(ctx, oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp) error {
		x, err := tx.Examiners().GetExaminer(ctx, examinerID)
		if err != nil {
			return notFoundAs(err, member.ErrExaminerNotFound)
		}
		if x.OlympID != o.ID {
			return member.ErrExaminerNotFound
		}
		waiting, err := tx.Queue().ListWaiting(ctx, o.ID)
		if err != nil {
			return err
		}
		res = matching.SelectEntry(waiting, x)
		return nil
	})
	return res, err
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBLEMS
// ══════════════════════════════════════════════════════════════════════════════

// Problems returns all problems of the olymp.
func (s *Service) Problems(ctx context.Context, oc olymp.Context) ([]*problem.Problem, error) {
	var res []*problem.Problem
	err := s.read(ctx, oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp) error {
		var err error
		res, err = tx.Problems().ListProblems(ctx, o.ID)
		return err
	})
	return res, err
}

// ExaminerProblems returns the problems an examiner judges.
func (s *Service) ExaminerProblems(ctx context.Context, oc olymp.Context, examinerID int64) ([]*problem.Problem, error) {
	var res []*problem.Problem
	err := s.read(ctx, oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp) error {
		x, err := tx.Examiners().GetExaminer(ctx, examinerID)
		if err != nil {
			return notFoundAs(err, member.ErrExaminerNotFound)
		}
		for _, id := range x.Problems {
			pr, err := tx.Problems().GetProblem(ctx, id)
			if err != nil {
				return fmt.Errorf("load problem %d: %w", id, err)
			}
			res = append(res, pr)
		}
		return nil
	})
	return res, err
}

func notFoundAs(err, replacement error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return replacement
	}
	return err
}
