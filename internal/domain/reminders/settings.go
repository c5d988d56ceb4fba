package reminders

// Settings configures one reminder family.
type Settings struct {
	DaysAfterSubmission int         `json:"daysAfterSubmission" yaml:"daysAfterSubmission"`
	RemindersPerDay     int         `json:"remindersPerDay" yaml:"remindersPerDay"`
	DailyTimes          []string    `json:"dailyTimes" yaml:"dailyTimes"`
	OfficeHours         OfficeHours `json:"officeHours" yaml:"officeHours"`
	Escalate            Escalation  `json:"escalate" yaml:"escalate"`
	TestMode            TestMode    `json:"testMode" yaml:"testMode"`
}

type OfficeHours struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

type Escalation struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	AfterDays          int    `json:"afterDays" yaml:"afterDays"`
	AssignmentStrategy string `json:"assignmentStrategy" yaml:"assignmentStrategy"`
}

// TestMode replaces the computed business date with now+ImmediateDelayMinutes.
// Providers only honor it when explicitly allowed for the environment.
type TestMode struct {
	Enabled               bool `json:"enabled" yaml:"enabled"`
	ImmediateDelayMinutes int  `json:"immediateDelayMinutes" yaml:"immediateDelayMinutes"`
}

// Escalation assignment strategies.
const (
	AssignToProcessingOwner = "processing_owner"
	AssignToStepAssignee    = "step_assignee"
)

// DefaultSettings returns the built-in settings for a family.
func DefaultSettings() Settings {
	return Settings{
		DaysAfterSubmission: 15,
		RemindersPerDay:     1,
		DailyTimes:          []string{"09:00"},
		OfficeHours:         OfficeHours{Start: "09:00", End: "18:00"},
		Escalate:            Escalation{Enabled: false, AfterDays: 3, AssignmentStrategy: AssignToProcessingOwner},
		TestMode:            TestMode{Enabled: false, ImmediateDelayMinutes: 1},
	}
}
