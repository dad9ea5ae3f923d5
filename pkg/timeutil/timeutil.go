// Package timeutil formats waiting times and timestamps for bot messages.
package timeutil

import (
	"fmt"
	"time"
)

// MoscowTZ is the default display zone (UTC+3, no DST).
var MoscowTZ = time.FixedZone("Europe/Moscow", 3*60*60)

// FormatWait renders how long someone has been waiting: "меньше минуты",
// "7 мин", "1 ч 05 мин".
func FormatWait(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return "меньше минуты"
	case d < time.Hour:
		return fmt.Sprintf("%d мин", int(d.Minutes()))
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60
		return fmt.Sprintf("%d ч %02d мин", h, m)
	}
}

// FormatRelative renders t relative to now: "только что", "12 мин назад",
// "через 3 мин".
func FormatRelative(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = -d
		if d < time.Minute {
			return "сейчас"
		}
		return "через " + FormatWait(d)
	}
	if d < time.Minute {
		return "только что"
	}
	return FormatWait(d) + " назад"
}

// FormatClock renders the wall-clock time of t in loc (MoscowTZ when nil).
func FormatClock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = MoscowTZ
	}
	return t.In(loc).Format("15:04")
}
