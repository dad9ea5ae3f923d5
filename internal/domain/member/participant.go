package member

import (
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// Participant - участник олимпиады.
type Participant struct {
	ID      int64
	OlympID int64
	UserIdentity

	Grade shared.Grade

	// LastBlockNumber - сколько блоков задач открыто (0..3).
	LastBlockNumber int
}

// NewParticipant создаёт участника без открытых блоков.
func NewParticipant(olympID int64, identity UserIdentity, grade int) (*Participant, error) {
	g, err := shared.NewGrade(grade)
	if err != nil {
		return nil, err
	}
	return &Participant{OlympID: olympID, UserIdentity: identity, Grade: g}, nil
}

// Role реализует Member.
func (p *Participant) Role() Role { return RoleParticipant }

// MemberID реализует Member.
func (p *Participant) MemberID() int64 { return p.ID }

// Tier возвращает параллель участника.
func (p *Participant) Tier() problem.Tier {
	return problem.TierOf(p.Grade)
}

// BlockType возвращает тип блока с номером sequence для параллели участника.
func (p *Participant) BlockType(sequence int) problem.BlockType {
	return problem.BlockType{Tier: p.Tier(), Sequence: sequence}
}

// ProblemFromNumber переводит сквозной номер задачи в номер блока и позицию.
// Блок должен быть уже открыт участнику.
func (p *Participant) ProblemFromNumber(n int) (block, index int, err error) {
	block, index, err = problem.Locate(n)
	if err != nil {
		return 0, 0, err
	}
	if block > p.LastBlockNumber {
		return 0, 0, shared.ErrProblemNumberOutOfRange
	}
	return block, index, nil
}

// ShouldGetNewProblem - решённая задача из блока block открывает следующий,
// только если block последний открытый и открыты ещё не все блоки.
func (p *Participant) ShouldGetNewProblem(block int) bool {
	return p.LastBlockNumber < problem.MaxBlocks && block == p.LastBlockNumber
}

// GiveNextProblemBlock открывает следующий блок и возвращает его номер.
func (p *Participant) GiveNextProblemBlock() (int, error) {
	if p.LastBlockNumber >= problem.MaxBlocks {
		return 0, shared.NewDomainError("member", "GiveNextProblemBlock", shared.ErrValidation,
			"Участник уже получил все блоки задач")
	}
	p.LastBlockNumber++
	return p.LastBlockNumber, nil
}
