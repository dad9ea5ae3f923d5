package telegram

import (
	"fmt"
	"strings"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEXT HELPERS
// Messages use the legacy Markdown parse mode.
// ══════════════════════════════════════════════════════════════════════════════

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// EscapeMarkdown escapes user-provided text for the Markdown parse mode.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Decline picks the Russian plural form for n: Decline(5, "задач", "а", "и", "")
// gives "задач".
func Decline(n int, stem, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	switch {
	case (n/10)%10 == 1:
		return stem + many
	case n%10 == 1:
		return stem + one
	case n%10 == 0 || n%10 > 4:
		return stem + many
	default:
		return stem + few
	}
}

// ParticipantCard describes a participant to themselves.
func ParticipantCard(p member.Participant, ownerHandle string) string {
	return fmt.Sprintf("%s, %d класс\nЕсли в данных есть ошибка, сообщи %s",
		EscapeMarkdown(p.FullName()), int(p.Grade), EscapeMarkdown(ownerHandle))
}

// ExaminerCard describes an examiner to themselves.
func ExaminerCard(x member.Examiner, ownerHandle string) string {
	return fmt.Sprintf("%s, ссылка: %s\nЕсли в данных есть ошибка, сообщи %s",
		EscapeMarkdown(x.FullName()), EscapeMarkdown(x.ConferenceLink), EscapeMarkdown(ownerHandle))
}

// MemberCard describes a participant or an examiner.
func MemberCard(m member.Member, ownerHandle string) string {
	switch v := m.(type) {
	case *member.Participant:
		return ParticipantCard(*v, ownerHandle)
	case *member.Examiner:
		return ExaminerCard(*v, ownerHandle)
	default:
		return EscapeMarkdown(m.Identity().FullName())
	}
}

// ProblemList lists the problems an examiner accepts.
func ProblemList(problems []*problem.Problem) string {
	n := len(problems)
	if n == 0 {
		return "Сейчас у тебя нет выбранных задач"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Сейчас у тебя %s %d %s:",
		Decline(n, "выбран", "а", "о", "о"), n, Decline(n, "задач", "а", "и", ""))
	for _, p := range problems {
		fmt.Fprintf(&b, "\n- `%d` _%s_", p.ID, EscapeMarkdown(p.Name))
	}
	return b.String()
}

// problemTitle renders "задача 4 (_Name_)" or just the name when the number
// is unknown.
func problemTitle(number int, p problem.Problem) string {
	if number > 0 {
		return fmt.Sprintf("задача %d (_%s_)", number, EscapeMarkdown(p.Name))
	}
	return fmt.Sprintf("задача _%s_", EscapeMarkdown(p.Name))
}
