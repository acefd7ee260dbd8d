package models

import "time"

// ObligationType names a date-driven IEP obligation.
type ObligationType string

const (
	ObligationAnnualReview     ObligationType = "annual-review"
	ObligationTriennialEval    ObligationType = "triennial-evaluation"
	ObligationTransferOfRights ObligationType = "transfer-of-rights"
)

// ObligationStatus classifies an obligation relative to today.
type ObligationStatus string

const (
	ObligationUpcoming ObligationStatus = "upcoming"
	ObligationDue      ObligationStatus = "due"
	ObligationOverdue  ObligationStatus = "overdue"
)

// Obligation is one dated compliance item surfaced for an IEP.
type Obligation struct {
	Type         ObligationType   `json:"type"`
	DueDate      time.Time        `json:"due_date"`
	Status       ObligationStatus `json:"status"`
	DaysUntilDue int              `json:"days_until_due"`
}
