// Package matching содержит чистые правила подбора пары участник-принимающий.
// Функции ничего не меняют: назначение делает слой приложения.
package matching

import (
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
)

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// BusynessOrder - в каком порядке перебирать свободных принимающих по
// загруженности.
type BusynessOrder string

const (
	// BusynessDesc - сначала самые загруженные. Так работал бот на прошлых
	// олимпиадах.
	BusynessDesc BusynessOrder = "desc"

	// BusynessAsc - сначала наименее загруженные.
	BusynessAsc BusynessOrder = "asc"
)

// IsValid проверяет порядок.
func (o BusynessOrder) IsValid() bool {
	return o == BusynessDesc || o == BusynessAsc
}

// Policy - настройки подбора.
type Policy struct {
	Order BusynessOrder
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() Policy {
	return Policy{Order: BusynessDesc}
}

// prefers возвращает true, если a лучше b.
func (p Policy) prefers(a, b *member.Examiner) bool {
	if a.BusynessLevel != b.BusynessLevel {
		if p.Order == BusynessAsc {
			return a.BusynessLevel < b.BusynessLevel
		}
		return a.BusynessLevel > b.BusynessLevel
	}
	return a.ID < b.ID
}

// ══════════════════════════════════════════════════════════════════════════════
// SELECTION
// ══════════════════════════════════════════════════════════════════════════════

// SelectExaminer выбирает принимающего для задачи problemID среди свободных
// и умеющих её принимать. Возвращает nil, если подходящих нет.
func (p Policy) SelectExaminer(examiners []*member.Examiner, problemID int64) *member.Examiner {
	var best *member.Examiner
	for _, e := range examiners {
		if !e.IsFree() || !e.CanJudge(problemID) {
			continue
		}
		if best == nil || p.prefers(e, best) {
			best = e
		}
	}
	return best
}

// SelectEntry выбирает для принимающего самую раннюю (с наименьшим ID)
// ожидающую запись по задаче из его списка. Порядок входного среза не важен.
// Возвращает nil, если подходящих нет.
func SelectEntry(entries []*queue.Entry, examiner *member.Examiner) *queue.Entry {
	var oldest *queue.Entry
	for _, e := range entries {
		if e.Status != queue.StatusWaiting || !examiner.CanJudge(e.ProblemID) {
			continue
		}
		if oldest == nil || e.ID < oldest.ID {
			oldest = e
		}
	}
	return oldest
}
