package processing

// Candidate-level (aggregate) processing status.
const (
	CandidateStatusAssigned   = "assigned"
	CandidateStatusInProgress = "in_progress"
	CandidateStatusCompleted  = "completed"
	CandidateStatusCancelled  = "cancelled"
)

// Step status.
const (
	StepStatusPending    = "pending"
	StepStatusInProgress = "in_progress"
	StepStatusCompleted  = "completed"
	StepStatusRejected   = "rejected"
	StepStatusCancelled  = "cancelled"
)

// Document verification status.
const (
	DocumentStatusPending  = "pending"
	DocumentStatusVerified = "verified"
	DocumentStatusRejected = "rejected"
)

// CountryAll is the sentinel country code for rules that apply to every country.
const CountryAll = "ALL"

// CurrentStepCompleted is written to ProcessingCandidate.CurrentStepKey once the last step completes.
const CurrentStepCompleted = "completed"

// OpenStepStatuses are the non-terminal step statuses.
var OpenStepStatuses = []string{StepStatusPending, StepStatusInProgress}

func IsTerminalStepStatus(status string) bool {
	switch status {
	case StepStatusCompleted, StepStatusRejected, StepStatusCancelled:
		return true
	default:
		return false
	}
}

func IsValidStepStatus(status string) bool {
	switch status {
	case StepStatusPending, StepStatusInProgress, StepStatusCompleted, StepStatusRejected, StepStatusCancelled:
		return true
	default:
		return false
	}
}

func IsValidDocumentStatus(status string) bool {
	switch status {
	case DocumentStatusPending, DocumentStatusVerified, DocumentStatusRejected:
		return true
	default:
		return false
	}
}
