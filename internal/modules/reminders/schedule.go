// Package reminders holds the pure reminder scheduling rules: when the next delivery of a
// stage reminder is due, and whether a settings document is usable.
package reminders

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/yungbote/processing-backend/internal/domain/reminders"
)

// DefaultSlot is used when a settings document has no usable daily time.
const DefaultSlot = "09:00"

// Slot is a wall-clock time of day.
type Slot struct {
	Hour   int
	Minute int
}

func (s Slot) String() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

// On returns the instant at this slot on day's calendar date in day's location.
func (s Slot) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, s.Hour, s.Minute, 0, 0, day.Location())
}

// ParseSlot parses a 24h "HH:MM" time of day.
func ParseSlot(raw string) (Slot, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return Slot{}, fmt.Errorf("invalid time %q: want HH:MM", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Slot{}, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Slot{}, fmt.Errorf("invalid minute in %q", raw)
	}
	return Slot{Hour: h, Minute: m}, nil
}

// Slots returns the allowed daily slots: DailyTimes (or DefaultSlot) truncated to RemindersPerDay
// when it is positive. Unparseable entries are skipped.
func Slots(s domain.Settings) []Slot {
	raw := s.DailyTimes
	if len(raw) == 0 {
		raw = []string{DefaultSlot}
	}
	if s.RemindersPerDay > 0 && len(raw) > s.RemindersPerDay {
		raw = raw[:s.RemindersPerDay]
	}
	out := make([]Slot, 0, len(raw))
	for _, r := range raw {
		slot, err := ParseSlot(r)
		if err != nil {
			continue
		}
		out = append(out, slot)
	}
	if len(out) == 0 {
		def, _ := ParseSlot(DefaultSlot)
		out = append(out, def)
	}
	return out
}

// ComputeSchedule returns the first delivery instant for a reminder.
//
// The anchor (submittedAt, or now when nil) is moved DaysAfterSubmission calendar days forward and
// combined with the first daily slot. With a zero offset and a slot already in the past, the first
// later slot of the same day is used, else the first slot of the next day. Calendar arithmetic
// happens in now's location. When test mode is enabled the result is now + ImmediateDelayMinutes.
func ComputeSchedule(submittedAt *time.Time, s domain.Settings, now time.Time) time.Time {
	if s.TestMode.Enabled {
		delay := s.TestMode.ImmediateDelayMinutes
		if delay <= 0 {
			delay = 1
		}
		return now.Add(time.Duration(delay) * time.Minute)
	}

	loc := now.Location()
	anchor := now
	if submittedAt != nil && !submittedAt.IsZero() {
		anchor = submittedAt.In(loc)
	}
	days := s.DaysAfterSubmission
	if days < 0 {
		days = 0
	}
	target := anchor.AddDate(0, 0, days)
	slots := Slots(s)
	scheduled := slots[0].On(target)

	if days == 0 && scheduled.Before(now) {
		for _, slot := range slots {
			if at := slot.On(target); at.After(now) {
				return at
			}
		}
		return slots[0].On(target.AddDate(0, 0, 1))
	}
	return scheduled
}

// NextDelivery returns the delivery following one that fired for the slot at firedAt: the next later
// slot on the same day when one remains, otherwise the first slot of the following day. rolled reports
// whether the day boundary was crossed.
func NextDelivery(firedAt time.Time, s domain.Settings) (next time.Time, rolled bool) {
	slots := Slots(s)
	for _, slot := range slots {
		if at := slot.On(firedAt); at.After(firedAt) {
			return at, false
		}
	}
	return slots[0].On(firedAt.AddDate(0, 0, 1)), true
}
