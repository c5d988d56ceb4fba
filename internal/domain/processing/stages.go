package processing

import "strings"

// Stage keys of the default catalog.
const (
	StageOfferLetter = "offer_letter"
	StageHRD         = "hrd"
	StageDataFlow    = "data_flow"
	StagePrometric   = "prometric"
	StageMedical     = "medical"
	StageBiometrics  = "biometrics"
	StageVisa        = "visa"
	StageEmigration  = "emigration"
	StageTicket      = "ticket"
	StageDeployment  = "deployment"
)

// Reminder families.
const (
	ReminderFamilyHRD      = "hrd"
	ReminderFamilyDataFlow = "data_flow"
)

// StageSpec tags a stage with the behavior the lifecycle applies to it.
type StageSpec struct {
	Key   string
	Label string
	// DocumentGated stages refuse completion until every mandatory document is present and not rejected.
	DocumentGated bool
	// OutcomeRequired stages need an explicit pass/fail outcome to complete.
	OutcomeRequired bool
	// ReminderFamily is non-empty for stages whose submission date schedules a reminder.
	ReminderFamily string
}

var defaultStages = []StageSpec{
	{Key: StageOfferLetter, Label: "Offer Letter"},
	{Key: StageHRD, Label: "HRD Attestation", DocumentGated: true, ReminderFamily: ReminderFamilyHRD},
	{Key: StageDataFlow, Label: "Data Flow", DocumentGated: true, ReminderFamily: ReminderFamilyDataFlow},
	{Key: StagePrometric, Label: "Prometric"},
	{Key: StageMedical, Label: "Medical", DocumentGated: true, OutcomeRequired: true},
	{Key: StageBiometrics, Label: "Biometrics", DocumentGated: true},
	{Key: StageVisa, Label: "Visa", DocumentGated: true},
	{Key: StageEmigration, Label: "Emigration"},
	{Key: StageTicket, Label: "Ticket"},
	{Key: StageDeployment, Label: "Deployment"},
}

// DefaultStages returns the built-in catalog in default order.
func DefaultStages() []StageSpec {
	out := make([]StageSpec, len(defaultStages))
	copy(out, defaultStages)
	return out
}

// LookupStage returns the StageSpec for key. Unknown keys get an ungated StageSpec.
func LookupStage(key string) StageSpec {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, s := range defaultStages {
		if s.Key == key {
			return s
		}
	}
	return StageSpec{Key: key}
}

// ReminderFamilyForStage returns the reminder family of a stage key, or "".
func ReminderFamilyForStage(key string) string {
	return LookupStage(key).ReminderFamily
}
