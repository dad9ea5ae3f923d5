package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatWait(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "меньше минуты"},
		{30 * time.Second, "меньше минуты"},
		{7*time.Minute + 40*time.Second, "7 мин"},
		{65 * time.Minute, "1 ч 05 мин"},
		{2*time.Hour + 30*time.Minute, "2 ч 30 мин"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatWait(tt.in), tt.in.String())
	}
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "только что", FormatRelative(now.Add(-10*time.Second), now))
	assert.Equal(t, "12 мин назад", FormatRelative(now.Add(-12*time.Minute), now))
	assert.Equal(t, "через 3 мин", FormatRelative(now.Add(3*time.Minute), now))
	assert.Equal(t, "сейчас", FormatRelative(now.Add(time.Second), now))
}

func TestFormatClock(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "12:05", FormatClock(ts, nil))
	assert.Equal(t, "09:05", FormatClock(ts, time.UTC))
}
