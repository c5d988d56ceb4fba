// Package aggregates implements the processing-step aggregate on gorm. Every lifecycle transition
// runs in one transaction together with its processing_history row.
package aggregates
