package shared

import (
	"regexp"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Identity Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TelegramID represents a unique Telegram user identifier. Zero means the
// user has not talked to the bot yet.
type TelegramID int64

// IsValid checks if the Telegram ID is valid (positive number).
func (t TelegramID) IsValid() bool {
	return t > 0
}

// Int64 returns the underlying int64 value.
func (t TelegramID) Int64() int64 {
	return int64(t)
}

// String returns the string representation.
func (t TelegramID) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// Handle is a Telegram username stored without "@" and in lower case.
type Handle string

var handleRegex = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

// IsValid checks the Telegram username format.
func (h Handle) IsValid() bool {
	return handleRegex.MatchString(string(h))
}

// String returns the handle without "@".
func (h Handle) String() string {
	return string(h)
}

// Mention returns the handle in "@name" form.
func (h Handle) Mention() string {
	if h == "" {
		return ""
	}
	return "@" + string(h)
}

// NewHandle normalizes and validates a Telegram username.
func NewHandle(raw string) (Handle, error) {
	h := Handle(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "@")))
	if !h.IsValid() {
		return "", NewDomainError("member", "NewHandle", ErrValidation, "Некорректный Telegram-ник: "+raw)
	}
	return h, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// School Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Grade is a school grade of a participant.
type Grade int

const (
	// MinGrade is the lowest grade accepted at registration.
	MinGrade Grade = 1

	// MaxGrade is the highest grade accepted at registration.
	MaxGrade Grade = 11

	// SeniorFromGrade is the first grade of the senior tier.
	SeniorFromGrade Grade = 10
)

// IsValid checks the grade range.
func (g Grade) IsValid() bool {
	return g >= MinGrade && g <= MaxGrade
}

// IsJunior reports whether the grade belongs to the junior tier.
func (g Grade) IsJunior() bool {
	return g < SeniorFromGrade
}

// NewGrade validates a grade value.
func NewGrade(v int) (Grade, error) {
	g := Grade(v)
	if !g.IsValid() {
		return 0, NewDomainError("member", "NewGrade", ErrValidation, "Класс должен быть от 1 до 11")
	}
	return g, nil
}
