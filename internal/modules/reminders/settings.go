package reminders

import (
	"fmt"
	"strings"

	domain "github.com/yungbote/processing-backend/internal/domain/reminders"
)

// Normalize fills defaults for unset fields. It never changes a configured value.
func Normalize(s domain.Settings) domain.Settings {
	if len(s.DailyTimes) == 0 {
		s.DailyTimes = []string{DefaultSlot}
	}
	trimmed := make([]string, 0, len(s.DailyTimes))
	for _, t := range s.DailyTimes {
		trimmed = append(trimmed, strings.TrimSpace(t))
	}
	s.DailyTimes = trimmed
	if strings.TrimSpace(s.Escalate.AssignmentStrategy) == "" {
		s.Escalate.AssignmentStrategy = domain.AssignToProcessingOwner
	}
	if s.TestMode.ImmediateDelayMinutes <= 0 {
		s.TestMode.ImmediateDelayMinutes = 1
	}
	return s
}

// Validate returns one message per malformed field; nil when the settings are usable.
func Validate(s domain.Settings) []string {
	var problems []string
	if s.DaysAfterSubmission < 0 {
		problems = append(problems, "daysAfterSubmission must be >= 0")
	}
	if s.RemindersPerDay < 0 {
		problems = append(problems, "remindersPerDay must be >= 0")
	}
	if s.RemindersPerDay > 0 && len(s.DailyTimes) > 0 && s.RemindersPerDay > len(s.DailyTimes) {
		problems = append(problems, fmt.Sprintf("remindersPerDay (%d) exceeds dailyTimes (%d)", s.RemindersPerDay, len(s.DailyTimes)))
	}
	var prev *Slot
	for i, raw := range s.DailyTimes {
		slot, err := ParseSlot(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("dailyTimes[%d]: %v", i, err))
			continue
		}
		if prev != nil && !slotBefore(*prev, slot) {
			problems = append(problems, fmt.Sprintf("dailyTimes[%d]: %s must be later than %s", i, slot, *prev))
		}
		p := slot
		prev = &p
	}

	start, end := strings.TrimSpace(s.OfficeHours.Start), strings.TrimSpace(s.OfficeHours.End)
	if start != "" || end != "" {
		a, errA := ParseSlot(start)
		b, errB := ParseSlot(end)
		switch {
		case errA != nil:
			problems = append(problems, "officeHours.start: "+errA.Error())
		case errB != nil:
			problems = append(problems, "officeHours.end: "+errB.Error())
		case !slotBefore(a, b):
			problems = append(problems, "officeHours.start must be before officeHours.end")
		}
	}

	if s.Escalate.AfterDays < 0 {
		problems = append(problems, "escalate.afterDays must be >= 0")
	}
	switch strings.TrimSpace(s.Escalate.AssignmentStrategy) {
	case "", domain.AssignToProcessingOwner, domain.AssignToStepAssignee:
	default:
		problems = append(problems, fmt.Sprintf("escalate.assignmentStrategy %q is not supported", s.Escalate.AssignmentStrategy))
	}
	if s.TestMode.ImmediateDelayMinutes < 0 {
		problems = append(problems, "testMode.immediateDelayMinutes must be >= 0")
	}
	return problems
}

func slotBefore(a, b Slot) bool {
	return a.Hour*60+a.Minute < b.Hour*60+b.Minute
}
