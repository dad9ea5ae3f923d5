// Package olymp содержит доменную модель устной олимпиады и её фазовый автомат.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package olymp

import (
	"strings"
	"time"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет фазу олимпиады.
type Status string

const (
	// StatusTBA - олимпиада создана, идёт подготовка.
	StatusTBA Status = "tba"
	// StatusRegistration - участники и принимающие авторизуются в боте.
	StatusRegistration Status = "registration"
	// StatusContest - идёт олимпиада, очередь открыта.
	StatusContest Status = "contest"
	// StatusQueue - олимпиада завершается: новые записи запрещены, очередь дорабатывается.
	StatusQueue Status = "queue"
	// StatusResults - олимпиада завершена.
	StatusResults Status = "results"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusTBA, StatusRegistration, StatusContest, StatusQueue, StatusResults:
		return true
	default:
		return false
	}
}

// IsFinished возвращает true для завершённой олимпиады.
func (s Status) IsFinished() bool {
	return s == StatusResults
}

// AllowsRegistration - можно добавлять участников, принимающих, задачи и блоки.
func (s Status) AllowsRegistration() bool {
	return s == StatusTBA || s == StatusRegistration
}

// AllowsQueueJoin - можно записываться в очередь.
func (s Status) AllowsQueueJoin() bool {
	return s == StatusContest
}

// AllowsExamination - принимающие работают с очередью.
func (s Status) AllowsExamination() bool {
	return s == StatusContest || s == StatusQueue
}

// Label возвращает имя фазы в верхнем регистре.
func (s Status) Label() string {
	return strings.ToUpper(string(s))
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: OLYMP
// ══════════════════════════════════════════════════════════════════════════════

// Olymp - олимпиада, в рамках которой существуют все участники, задачи и очередь.
type Olymp struct {
	// ID - внутренний идентификатор.
	ID int64

	// Name - название, уникально среди всех олимпиад.
	Name string

	// Status - текущая фаза.
	Status Status

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последней смены фазы.
	UpdatedAt time.Time
}

// New создаёт олимпиаду в фазе TBA.
func New(name string) (*Olymp, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("olymp", "Create", shared.ErrValidation, "Для олимпиады необходимо название")
	}
	now := time.Now().UTC()
	return &Olymp{
		Name:      name,
		Status:    StatusTBA,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PHASE TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

func phaseError(op, message string) error {
	return shared.NewDomainError("olymp", op, shared.ErrInvalidPhaseTransition, message)
}

func (o *Olymp) setStatus(s Status) {
	o.Status = s
	o.UpdatedAt = time.Now().UTC()
}

// StartRegistration переводит олимпиаду из TBA в REGISTRATION.
func (o *Olymp) StartRegistration() error {
	switch o.Status {
	case StatusTBA:
		o.setStatus(StatusRegistration)
		return nil
	case StatusRegistration:
		return phaseError("StartRegistration", "Регистрация уже идёт")
	default:
		return phaseError("StartRegistration", "Олимпиада уже идёт или завершилась")
	}
}

// StartContest переводит олимпиаду из REGISTRATION в CONTEST.
func (o *Olymp) StartContest() error {
	switch o.Status {
	case StatusRegistration:
		o.setStatus(StatusContest)
		return nil
	case StatusTBA:
		return phaseError("StartContest", "Сначала необходимо запустить регистрацию")
	default:
		return phaseError("StartContest", "Олимпиада уже идёт или завершилась")
	}
}

// Finish завершает олимпиаду. Если в очереди остались активные записи,
// олимпиада уходит в QUEUE и ждёт их обработки, иначе сразу в RESULTS.
// Повторный вызов в QUEUE при непустой очереди ничего не меняет.
func (o *Olymp) Finish(hasActiveEntries bool) error {
	switch o.Status {
	case StatusContest:
		if hasActiveEntries {
			o.setStatus(StatusQueue)
		} else {
			o.setStatus(StatusResults)
		}
		return nil
	case StatusQueue:
		if hasActiveEntries {
			return phaseError("Finish", "Олимпиада уже завершается, происходит работа с очередью")
		}
		o.setStatus(StatusResults)
		return nil
	case StatusResults:
		return phaseError("Finish", "Олимпиада уже завершена")
	default:
		return phaseError("Finish", "Олимпиада ещё не начата")
	}
}

// CompleteDraining переводит QUEUE в RESULTS, когда очередь опустела.
// Возвращает true, если фаза сменилась.
func (o *Olymp) CompleteDraining(hasActiveEntries bool) bool {
	if o.Status != StatusQueue || hasActiveEntries {
		return false
	}
	o.setStatus(StatusResults)
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// PHASE GUARDS
// ══════════════════════════════════════════════════════════════════════════════

// RequireRegistration проверяет, что идёт подготовка или регистрация.
func (o *Olymp) RequireRegistration(op string) error {
	if !o.Status.AllowsRegistration() {
		return phaseError(op, "Регистрация на олимпиаду или олимпиада уже начата")
	}
	return nil
}

// RequireQueueOpen проверяет, что запись в очередь открыта.
func (o *Olymp) RequireQueueOpen(op string) error {
	switch {
	case o.Status.AllowsQueueJoin():
		return nil
	case o.Status == StatusQueue || o.Status == StatusResults:
		return phaseError(op, "Олимпиада завершилась, записываться в очередь больше нельзя")
	default:
		return phaseError(op, "Олимпиада ещё не начата")
	}
}

// RequireExamination проверяет, что с очередью можно работать.
func (o *Olymp) RequireExamination(op string) error {
	switch {
	case o.Status.AllowsExamination():
		return nil
	case o.Status == StatusResults:
		return phaseError(op, "Олимпиада уже завершена")
	default:
		return phaseError(op, "Олимпиада ещё не начата")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// Context - снимок текущей олимпиады, который передаётся в каждую операцию
// ядра вместо глобального состояния.
type Context struct {
	OlympID int64
	Name    string
	Status  Status
}

// ContextOf строит снимок из сущности.
func ContextOf(o *Olymp) Context {
	if o == nil {
		return Context{}
	}
	return Context{OlympID: o.ID, Name: o.Name, Status: o.Status}
}

// IsZero возвращает true, если олимпиады нет.
func (c Context) IsZero() bool {
	return c.OlympID == 0
}
