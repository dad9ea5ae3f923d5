package member

import (
	"slices"
	"strings"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// Examiner - принимающий устные сдачи.
type Examiner struct {
	ID      int64
	OlympID int64
	UserIdentity

	ConferenceLink string

	// IsBusy - принимающий не готов брать новых участников.
	IsBusy bool

	// BusynessLevel - число назначений: +1 при назначении, -1 при снятии.
	BusynessLevel int

	// Problems - ID задач, которые принимающий может принимать.
	Problems []int64
}

// NewExaminer создаёт принимающего. Новый принимающий занят, пока сам не
// объявит себя свободным.
func NewExaminer(olympID int64, identity UserIdentity, conferenceLink string) *Examiner {
	return &Examiner{
		OlympID:        olympID,
		UserIdentity:   identity,
		ConferenceLink: strings.TrimSpace(conferenceLink),
		IsBusy:         true,
	}
}

// Role реализует Member.
func (e *Examiner) Role() Role { return RoleExaminer }

// MemberID реализует Member.
func (e *Examiner) MemberID() int64 { return e.ID }

// CanJudge проверяет, принимает ли принимающий задачу.
func (e *Examiner) CanJudge(problemID int64) bool {
	return slices.Contains(e.Problems, problemID)
}

// IsFree - принимающий готов к новому назначению.
func (e *Examiner) IsFree() bool {
	return !e.IsBusy
}

// AddProblem добавляет задачу в список принимаемых.
func (e *Examiner) AddProblem(problemID int64) error {
	if e.CanJudge(problemID) {
		return shared.NewDomainError("member", "AddProblem", shared.ErrValidation, "Ты уже принимаешь эту задачу")
	}
	e.Problems = append(e.Problems, problemID)
	return nil
}

// RemoveProblem убирает задачу из списка принимаемых.
func (e *Examiner) RemoveProblem(problemID int64) error {
	i := slices.Index(e.Problems, problemID)
	if i < 0 {
		return shared.NewDomainError("member", "RemoveProblem", shared.ErrValidation, "Ты и так не принимаешь эту задачу")
	}
	e.Problems = slices.Delete(e.Problems, i, i+1)
	return nil
}

// SetBusy переключает готовность. Повторная установка того же значения -
// ошибка без изменения состояния.
func (e *Examiner) SetBusy(busy bool) error {
	if busy && e.IsBusy {
		return shared.NewDomainError("member", "SetBusy", shared.ErrAlreadyBusy, "Ты уже отмечен как занятой")
	}
	if !busy && !e.IsBusy {
		return shared.NewDomainError("member", "SetBusy", shared.ErrAlreadyFree, "Ты уже отмечен как свободный")
	}
	e.IsBusy = busy
	return nil
}

// MarkAssigned фиксирует назначение участника.
func (e *Examiner) MarkAssigned() {
	e.IsBusy = true
	e.BusynessLevel++
}

// MarkWithdrawn фиксирует снятие с записи. Флаг занятости не трогает.
func (e *Examiner) MarkWithdrawn() {
	if e.BusynessLevel > 0 {
		e.BusynessLevel--
	}
}

// Release освобождает принимающего после завершения сдачи.
func (e *Examiner) Release() {
	e.IsBusy = false
}
