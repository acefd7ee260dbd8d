package models

import (
	"time"

	"github.com/lib/pq"
)

// Severity grades a behavior event. Severity is independent of duration:
// a long low-severity event and a short high-severity event are both valid.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether the severity is a known level.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// BehaviorEvent is one timestamped ABC (antecedent-behavior-consequence)
// observation. Events are append-only; the only permitted mutation after
// creation is appending follow-up notes.
type BehaviorEvent struct {
	ID                   string         `db:"id" json:"id"`
	StudentID            string         `db:"student_id" json:"student_id"`
	GoalID               *string        `db:"goal_id" json:"goal_id,omitempty"`
	OccurredAt           time.Time      `db:"occurred_at" json:"occurred_at"`
	Antecedent           string         `db:"antecedent" json:"antecedent"`
	Behavior             string         `db:"behavior" json:"behavior"`
	Consequence          string         `db:"consequence" json:"consequence"`
	Severity             Severity       `db:"severity" json:"severity"`
	DurationSeconds      int            `db:"duration_seconds" json:"duration_seconds"`
	Location             string         `db:"location" json:"location"`
	StaffPresent         pq.StringArray `db:"staff_present" json:"staff_present"`
	EnvironmentalFactors pq.StringArray `db:"environmental_factors" json:"environmental_factors"`
	InterventionsUsed    pq.StringArray `db:"interventions_used" json:"interventions_used"`
	EffectivenessRating  *int           `db:"effectiveness_rating" json:"effectiveness_rating,omitempty"`
	FollowUpNeeded       bool           `db:"follow_up_needed" json:"follow_up_needed"`
	FollowUpNotes        *string        `db:"follow_up_notes" json:"follow_up_notes,omitempty"`
	CreatedBy            string         `db:"created_by" json:"created_by"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
}

// BehaviorEventFilter allows listing events.
type BehaviorEventFilter struct {
	StudentID  string
	GoalID     string
	Severities []Severity
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
}

// CountedItem is an exact-string frequency bucket.
type CountedItem struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// BehaviorSummary aggregates a student's events over a date range.
// Grouping is exact-string; free-text normalization is not this layer's job.
type BehaviorSummary struct {
	StudentID        string           `json:"student_id"`
	TotalEvents      int              `json:"total_events"`
	CountBySeverity  map[Severity]int `json:"count_by_severity"`
	TopAntecedents   []CountedItem    `json:"top_antecedents"`
	TopInterventions []CountedItem    `json:"top_interventions"`
	AvgEffectiveness *float64         `json:"avg_effectiveness,omitempty"`
}
