// Package port defines the collaborators the application core calls into:
// the transactional store, the olymp lock, announcements and block distribution.
package port

import (
	"context"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Tx exposes the repositories bound to one store transaction.
type Tx interface {
	Olymps() olymp.Repository
	Users() member.UserRepository
	Participants() member.ParticipantRepository
	Examiners() member.ExaminerRepository
	Problems() problem.Repository
	Queue() queue.Repository
}

// Store runs units of work atomically. If fn returns an error, nothing fn
// wrote is visible afterwards.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Locker serializes mutations of one olymp across goroutines and, for
// distributed implementations, across processes.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned function
	// releases the lock and is safe to call once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ══════════════════════════════════════════════════════════════════════════════
// ANNOUNCEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// QueueNotice describes a participant's own queue entry.
type QueueNotice struct {
	Olymp       olymp.Context
	Participant member.Participant
	Entry       queue.Entry
	Problem     problem.Problem

	// Number is the problem number as the participant sees it (1..9), 0 if unknown.
	Number int
}

// AssignmentNotice is sent when an examiner takes a waiting entry.
type AssignmentNotice struct {
	QueueNotice
	Examiner member.Examiner
}

// JudgementNotice is sent when an examiner resolves a discussion.
type JudgementNotice struct {
	AssignmentNotice
	Outcome      queue.Outcome
	AttemptsLeft int

	// UnlockedBlock is the sequence of a newly opened block, 0 if none.
	UnlockedBlock int
}

// WithdrawReason tells why an examiner was taken off an entry.
type WithdrawReason string

const (
	WithdrawByExaminer   WithdrawReason = "examiner"
	WithdrawAbsent       WithdrawReason = "absent"
	WithdrawOwnerRequest WithdrawReason = "owner"
)

// WithdrawalNotice is sent when an entry goes back to waiting.
type WithdrawalNotice struct {
	AssignmentNotice
	Reason WithdrawReason
}

// CancelNotice is sent when the owner cancels an entry. Examiner is nil when
// the entry was still waiting.
type CancelNotice struct {
	QueueNotice
	Examiner *member.Examiner
}

// PhaseNotice describes an olymp phase change and who should hear about it.
type PhaseNotice struct {
	Olymp    olymp.Context
	Previous olymp.Status

	Participants []member.Participant
	Examiners    []member.Examiner

	// Queued holds IDs of participants with an active entry at the moment of
	// the change.
	Queued map[int64]bool
}

// Announcer delivers state changes to people. Calls happen after the change is
// committed; errors are logged by the caller and never undo the change.
type Announcer interface {
	QueueJoined(ctx context.Context, n QueueNotice) error
	QueueLeft(ctx context.Context, n QueueNotice) error
	ExaminerAssigned(ctx context.Context, n AssignmentNotice) error
	EntryJudged(ctx context.Context, n JudgementNotice) error
	ExaminerWithdrawn(ctx context.Context, n WithdrawalNotice) error
	EntryCanceled(ctx context.Context, n CancelNotice) error
	PhaseChanged(ctx context.Context, n PhaseNotice) error
}

// Distributor hands out problem block files to participants.
type Distributor interface {
	DistributeBlock(ctx context.Context, p member.Participant, b problem.Block) error
}
