package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// RegisterParticipantCommand adds a participant to the olymp.
type RegisterParticipantCommand struct {
	Handle  string
	Name    string
	Surname string
	Grade   int
}

// RegisterExaminerCommand adds an examiner to the olymp.
type RegisterExaminerCommand struct {
	Handle         string
	Name           string
	Surname        string
	ConferenceLink string
	ProblemIDs     []int64
}

// userFor returns the global user with the handle, creating it when missing.
func userFor(ctx context.Context, tx port.Tx, identity member.UserIdentity) (*member.UserIdentity, error) {
	u, err := tx.Users().GetUserByHandle(ctx, identity.Handle)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	u = &identity
	if err := tx.Users().CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// RegisterParticipant adds a participant. An existing global user with the
// same handle is reused.
func (e *Engine) RegisterParticipant(ctx context.Context, oc olymp.Context, cmd RegisterParticipantCommand) (*member.Participant, error) {
	identity, err := member.NewUserIdentity(cmd.Handle, cmd.Name, cmd.Surname)
	if err != nil {
		return nil, err
	}

	var res *member.Participant
	err = e.runInOlymp(ctx, "RegisterParticipant", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, _ *outbox) error {
		if err := o.RequireRegistration("RegisterParticipant"); err != nil {
			return err
		}
		u, err := userFor(ctx, tx, identity)
		if err != nil {
			return err
		}
		p, err := member.NewParticipant(o.ID, *u, cmd.Grade)
		if err != nil {
			return err
		}
		if err := tx.Participants().CreateParticipant(ctx, p); err != nil {
			return err
		}
		res = p
		return nil
	})
	return res, err
}

// RegisterExaminer adds an examiner with an initial list of problems.
func (e *Engine) RegisterExaminer(ctx context.Context, oc olymp.Context, cmd RegisterExaminerCommand) (*member.Examiner, error) {
	identity, err := member.NewUserIdentity(cmd.Handle, cmd.Name, cmd.Surname)
	if err != nil {
		return nil, err
	}

	var res *member.Examiner
	err = e.runInOlymp(ctx, "RegisterExaminer", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, _ *outbox) error {
		if err := o.RequireRegistration("RegisterExaminer"); err != nil {
			return err
		}
		u, err := userFor(ctx, tx, identity)
		if err != nil {
			return err
		}
		x := member.NewExaminer(o.ID, *u, cmd.ConferenceLink)
		for _, id := range cmd.ProblemIDs {
			if _, err := problemOf(ctx, tx, o, id); err != nil {
				return err
			}
			if err := x.AddProblem(id); err != nil {
				return err
			}
		}
		if err := tx.Examiners().CreateExaminer(ctx, x); err != nil {
			return err
		}
		res = x
		return nil
	})
	return res, err
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAMINER CAPABILITIES
// ══════════════════════════════════════════════════════════════════════════════

// CapabilityCommand adds or removes a problem from an examiner's list.
type CapabilityCommand struct {
	ExaminerID int64
	ProblemID  int64

	// Override allows the change after the contest has started (owner only).
	Override bool
}

func problemOf(ctx context.Context, tx port.Tx, o *olymp.Olymp, id int64) (*problem.Problem, error) {
	pr, err := tx.Problems().GetProblem(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, problem.ErrProblemNotFound)
	}
	if pr.OlympID != o.ID {
		return nil, problem.ErrProblemNotFound
	}
	return pr, nil
}

func requireCapabilityChange(o *olymp.Olymp, override bool, op string) error {
	if override && o.Status.AllowsExamination() {
		return nil
	}
	return o.RequireRegistration(op)
}

// AddExaminerProblem lets an examiner judge one more problem. A free examiner
// is matched right away when the change happens mid-contest.
func (e *Engine) AddExaminerProblem(ctx context.Context, oc olymp.Context, cmd CapabilityCommand) (*ExaminerResult, error) {
	var res ExaminerResult
	err := e.runInOlymp(ctx, "AddExaminerProblem", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, out *outbox) error {
		if err := requireCapabilityChange(o, cmd.Override, "AddExaminerProblem"); err != nil {
			return err
		}
		x, err := e.examiner(ctx, tx, o, cmd.ExaminerID)
		if err != nil {
			return err
		}
		if _, err := problemOf(ctx, tx, o, cmd.ProblemID); err != nil {
			return err
		}
		if err := x.AddProblem(cmd.ProblemID); err != nil {
			return err
		}
		if err := tx.Examiners().UpdateExaminer(ctx, x); err != nil {
			return fmt.Errorf("update examiner %d: %w", x.ID, err)
		}

		if o.Status.AllowsExamination() {
			assigned, err := e.matchExaminer(ctx, tx, o, x, 0, out)
			if err != nil {
				return err
			}
			if assigned != nil {
				ac := *assigned
				res.Assigned = &ac
			}
		}
		res.Examiner = *x
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RemoveExaminerProblem drops a problem from an examiner's list. A running
// discussion is not affected.
func (e *Engine) RemoveExaminerProblem(ctx context.Context, oc olymp.Context, cmd CapabilityCommand) (*ExaminerResult, error) {
	var res ExaminerResult
	err := e.runInOlymp(ctx, "RemoveExaminerProblem", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, _ *outbox) error {
		if err := requireCapabilityChange(o, cmd.Override, "RemoveExaminerProblem"); err != nil {
			return err
		}
		x, err := e.examiner(ctx, tx, o, cmd.ExaminerID)
		if err != nil {
			return err
		}
		if err := x.RemoveProblem(cmd.ProblemID); err != nil {
			return err
		}
		if err := tx.Examiners().UpdateExaminer(ctx, x); err != nil {
			return fmt.Errorf("update examiner %d: %w", x.ID, err)
		}
		res.Examiner = *x
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// AuthenticateCommand links a Telegram account to a registered member.
type AuthenticateCommand struct {
	TelegramID shared.TelegramID
	Handle     string
}

// AuthResult describes who the Telegram user is in the current olymp.
type AuthResult struct {
	Member        member.Member
	AlreadyLinked bool
}

// membership finds the participant or examiner record of a user.
func membership(ctx context.Context, tx port.Tx, olympID, userID int64) (member.Member, error) {
	p, err := tx.Participants().GetParticipantByUser(ctx, olympID, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	x, err := tx.Examiners().GetExaminerByUser(ctx, olympID, userID)
	if err == nil {
		return x, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return nil, nil
}

// Authenticate finds the member by Telegram ID, or by handle and then stores
// the Telegram ID. When the Telegram ID already belongs to another global
// user the call fails with *member.MergeRequiredError and changes nothing.
func (e *Engine) Authenticate(ctx context.Context, oc olymp.Context, cmd AuthenticateCommand) (*AuthResult, error) {
	if !cmd.TelegramID.IsValid() {
		return nil, shared.NewDomainError("member", "Authenticate", shared.ErrValidation, "Некорректный Telegram ID")
	}

	var res AuthResult
	err := e.runInOlymp(ctx, "Authenticate", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, _ *outbox) error {
		byTelegram, err := tx.Users().GetUserByTelegramID(ctx, cmd.TelegramID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if byTelegram != nil {
			m, err := membership(ctx, tx, o.ID, byTelegram.UserID)
			if err != nil {
				return err
			}
			if m != nil {
				res = AuthResult{Member: m, AlreadyLinked: true}
				return nil
			}
		}

		handle, err := shared.NewHandle(cmd.Handle)
		if err != nil {
			return member.ErrUserNotFound
		}
		byHandle, err := tx.Users().GetUserByHandle(ctx, handle)
		if err != nil {
			return notFoundAs(err, member.ErrUserNotFound)
		}
		m, err := membership(ctx, tx, o.ID, byHandle.UserID)
		if err != nil {
			return err
		}
		if m == nil {
			return member.ErrUserNotFound
		}

		if byTelegram != nil {
			proposal, err := member.ProposeMerge(*byTelegram, *byHandle)
			if err != nil {
				return err
			}
			return &member.MergeRequiredError{Proposal: proposal}
		}
		if byHandle.IsLinked() {
			return shared.NewDomainError("member", "Authenticate", shared.ErrConstraintViolation,
				"Этот ник уже привязан к другому Telegram-аккаунту")
		}

		byHandle.TelegramID = cmd.TelegramID
		if err := tx.Users().UpdateUser(ctx, byHandle); err != nil {
			return err
		}
		m, err = membership(ctx, tx, o.ID, byHandle.UserID)
		if err != nil {
			return err
		}
		res = AuthResult{Member: m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ApplyMergeCommand commits a merge proposal.
type ApplyMergeCommand struct {
	Proposal  member.MergeProposal
	Confirmed bool
}

// ApplyMerge folds the duplicate user into the canonical one: memberships are
// moved, the duplicate is deleted, the canonical user takes the duplicate's
// handle and name. Nothing happens without confirmation. The proposal is
// rebuilt from the current store state and must still match.
func (e *Engine) ApplyMerge(ctx context.Context, oc olymp.Context, cmd ApplyMergeCommand) (*AuthResult, error) {
	if !cmd.Confirmed {
		return nil, &member.MergeRequiredError{Proposal: cmd.Proposal}
	}

	var res AuthResult
	err := e.runInOlymp(ctx, "ApplyMerge", oc, func(ctx context.Context, tx port.Tx, o *olymp.Olymp, _ *outbox) error {
		canonical, err := tx.Users().GetUser(ctx, cmd.Proposal.Canonical.UserID)
		if err != nil {
			return notFoundAs(err, member.ErrUserNotFound)
		}
		duplicate, err := tx.Users().GetUser(ctx, cmd.Proposal.Duplicate.UserID)
		if err != nil {
			return notFoundAs(err, member.ErrUserNotFound)
		}
		proposal, err := member.ProposeMerge(*canonical, *duplicate)
		if err != nil {
			return err
		}
		if proposal.Canonical.UserID != cmd.Proposal.Canonical.UserID {
			return shared.NewDomainError("member", "ApplyMerge", shared.ErrValidation,
				"Данные пользователей изменились, повтори /start")
		}

		if err := tx.Users().ReassignMemberships(ctx, proposal.Duplicate.UserID, proposal.Canonical.UserID); err != nil {
			return err
		}
		if err := tx.Users().DeleteUser(ctx, proposal.Duplicate.UserID); err != nil {
			return err
		}
		result := proposal.Result
		if err := tx.Users().UpdateUser(ctx, &result); err != nil {
			return err
		}

		m, err := membership(ctx, tx, o.ID, result.UserID)
		if err != nil {
			return err
		}
		if m == nil {
			return member.ErrUserNotFound
		}
		res = AuthResult{Member: m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
