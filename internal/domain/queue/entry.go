// Package queue содержит модель записи в очередь на устную сдачу задачи.
package queue

import (
	"time"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// MaxAttempts - попыток сдачи на одну задачу.
const MaxAttempts = 3

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет состояние записи.
type Status string

const (
	// StatusWaiting - участник ждёт свободного принимающего.
	StatusWaiting Status = "waiting"
	// StatusDiscussing - идёт сдача.
	StatusDiscussing Status = "discussing"
	// StatusSuccess - задача принята.
	StatusSuccess Status = "success"
	// StatusFail - задача не принята, попытка потрачена.
	StatusFail Status = "fail"
	// StatusCanceled - запись отменена.
	StatusCanceled Status = "canceled"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusDiscussing, StatusSuccess, StatusFail, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsActive возвращает true для записей, которые ещё в очереди.
func (s Status) IsActive() bool {
	return s == StatusWaiting || s == StatusDiscussing
}

// IsTerminal возвращает true для завершённых записей.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFail || s == StatusCanceled
}

// Outcome - результат сдачи, который выставляет принимающий.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFail     Outcome = "fail"
	OutcomeCanceled Outcome = "canceled"
)

// Status возвращает итоговый статус записи для результата.
func (o Outcome) Status() Status {
	return Status(o)
}

// IsValid проверяет результат.
func (o Outcome) IsValid() bool {
	return o == OutcomeSuccess || o == OutcomeFail || o == OutcomeCanceled
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - запись участника в очередь на сдачу одной задачи.
type Entry struct {
	ID            int64
	OlympID       int64
	ParticipantID int64
	ProblemID     int64
	Status        Status

	// ExaminerID заполняется при назначении принимающего и остаётся
	// после завершения сдачи.
	ExaminerID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntry создаёт запись в статусе ожидания.
func NewEntry(olympID, participantID, problemID int64) *Entry {
	now := time.Now().UTC()
	return &Entry{
		OlympID:       olympID,
		ParticipantID: participantID,
		ProblemID:     problemID,
		Status:        StatusWaiting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e *Entry) touch(s Status) {
	e.Status = s
	e.UpdatedAt = time.Now().UTC()
}

// HasExaminer проверяет, что за записью закреплён принимающий.
func (e *Entry) HasExaminer(examinerID int64) bool {
	return e.ExaminerID != nil && *e.ExaminerID == examinerID
}

// Assign закрепляет принимающего: WAITING -> DISCUSSING.
func (e *Entry) Assign(examinerID int64) error {
	if e.Status != StatusWaiting {
		return shared.NewDomainError("queue", "Assign", shared.ErrAlreadyAssigned,
			"Запись уже обрабатывается")
	}
	id := examinerID
	e.ExaminerID = &id
	e.touch(StatusDiscussing)
	return nil
}

// Withdraw снимает принимающего: DISCUSSING -> WAITING. Запись сохраняет
// своё место в очереди.
func (e *Entry) Withdraw() error {
	if e.Status != StatusDiscussing {
		return shared.NewDomainError("queue", "Withdraw", shared.ErrNotAssigned,
			"Нельзя списать принимающего с записи, которая не обсуждается")
	}
	e.ExaminerID = nil
	e.touch(StatusWaiting)
	return nil
}

// Resolve выставляет результат сдачи: DISCUSSING -> SUCCESS | FAIL | CANCELED.
func (e *Entry) Resolve(outcome Outcome) error {
	if !outcome.IsValid() {
		return shared.NewDomainError("queue", "Resolve", shared.ErrValidation, "Некорректный результат сдачи")
	}
	if e.Status != StatusDiscussing {
		return shared.NewDomainError("queue", "Resolve", shared.ErrNotAssigned,
			"Сейчас ты никого не принимаешь")
	}
	e.touch(outcome.Status())
	return nil
}

// Leave отменяет запись по желанию участника. Уйти можно только до того,
// как назначен принимающий.
func (e *Entry) Leave() error {
	switch e.Status {
	case StatusWaiting:
		e.touch(StatusCanceled)
		return nil
	case StatusDiscussing:
		return shared.NewDomainError("queue", "Leave", shared.ErrAlreadyAssigned,
			"Нельзя покинуть очередь во время сдачи. Если принимающий не пришёл, напиши /absent")
	default:
		return shared.NewDomainError("queue", "Leave", shared.ErrNotQueued, "Ты не стоишь в очереди")
	}
}

// Cancel отменяет активную запись по решению организатора.
func (e *Entry) Cancel() error {
	if !e.Status.IsActive() {
		return shared.NewDomainError("queue", "Cancel", shared.ErrNotQueued, "Запись уже завершена")
	}
	e.touch(StatusCanceled)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// AttemptsLeft возвращает число оставшихся попыток по задаче: 3 минус
// количество записей FAIL. Никогда не меньше нуля.
func AttemptsLeft(history []*Entry, problemID int64) int {
	left := MaxAttempts - countStatus(history, problemID, StatusFail)
	if left < 0 {
		return 0
	}
	return left
}

// IsSolved проверяет, есть ли по задаче запись SUCCESS.
func IsSolved(history []*Entry, problemID int64) bool {
	return countStatus(history, problemID, StatusSuccess) > 0
}

func countStatus(history []*Entry, problemID int64, s Status) int {
	n := 0
	for _, e := range history {
		if e.ProblemID == problemID && e.Status == s {
			n++
		}
	}
	return n
}
