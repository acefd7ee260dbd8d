package models

import "time"

// GoalArea is the domain a goal targets.
type GoalArea string

const (
	AreaReading       GoalArea = "academic-reading"
	AreaWriting       GoalArea = "academic-writing"
	AreaMath          GoalArea = "academic-math"
	AreaScience       GoalArea = "academic-science"
	AreaSocialStudies GoalArea = "academic-social-studies"
	AreaCommunication GoalArea = "communication"
	AreaSocial        GoalArea = "social-emotional"
	AreaBehavioral    GoalArea = "behavioral"
	AreaMotorSkills   GoalArea = "motor-skills"
	AreaDailyLiving   GoalArea = "daily-living"
	AreaVocational    GoalArea = "vocational"
	AreaTransition    GoalArea = "transition"
)

// GoalAreas lists every valid goal area.
var GoalAreas = []GoalArea{
	AreaReading, AreaWriting, AreaMath, AreaScience, AreaSocialStudies,
	AreaCommunication, AreaSocial, AreaBehavioral, AreaMotorSkills,
	AreaDailyLiving, AreaVocational, AreaTransition,
}

// Valid reports whether the area is a known value.
func (a GoalArea) Valid() bool {
	for _, area := range GoalAreas {
		if area == a {
			return true
		}
	}
	return false
}

// MeasurementType declares how a goal's progress is measured. Every
// data point submitted for a goal must carry the same type.
type MeasurementType string

const (
	MeasureAccuracy  MeasurementType = "accuracy"
	MeasureFrequency MeasurementType = "frequency"
	MeasureDuration  MeasurementType = "duration"
	MeasureLatency   MeasurementType = "latency"
	MeasureRawScore  MeasurementType = "raw-score"
)

// Valid reports whether the measurement type is known.
func (m MeasurementType) Valid() bool {
	switch m {
	case MeasureAccuracy, MeasureFrequency, MeasureDuration, MeasureLatency, MeasureRawScore:
		return true
	}
	return false
}

// PromptLevel records the level of support given during a trial.
type PromptLevel string

const (
	PromptIndependent PromptLevel = "independent"
	PromptVerbal      PromptLevel = "verbal"
	PromptGestural    PromptLevel = "gestural"
	PromptModel       PromptLevel = "model"
	PromptPhysical    PromptLevel = "physical"
)

// Valid reports whether the prompt level is known.
func (p PromptLevel) Valid() bool {
	switch p {
	case PromptIndependent, PromptVerbal, PromptGestural, PromptModel, PromptPhysical:
		return true
	}
	return false
}

// GoalStatus is the lifecycle state of a goal. Closed states are terminal.
type GoalStatus string

const (
	GoalStatusActive       GoalStatus = "active"
	GoalStatusMastered     GoalStatus = "mastered"
	GoalStatusDiscontinued GoalStatus = "discontinued"
)

// Closed reports whether the goal has reached a terminal state.
func (s GoalStatus) Closed() bool {
	return s == GoalStatusMastered || s == GoalStatusDiscontinued
}

// StatusBand is the derived trajectory classification of a goal.
type StatusBand string

const (
	BandOnTrack        StatusBand = "on-track"
	BandNeedsAttention StatusBand = "needs-attention"
	BandAtRisk         StatusBand = "at-risk"
)

// Goal is a measurable annual goal belonging to exactly one IEP.
// Version implements optimistic concurrency: progress and close writes
// carry the expected version and fail when another writer got there first.
type Goal struct {
	ID                 string          `db:"id" json:"id"`
	IEPID              string          `db:"iep_id" json:"iep_id"`
	Area               GoalArea        `db:"area" json:"area"`
	Statement          string          `db:"statement" json:"statement"`
	Baseline           string          `db:"baseline" json:"baseline"`
	TargetCriteria     string          `db:"target_criteria" json:"target_criteria"`
	Target             float64         `db:"target" json:"target"`
	HigherIsBetter     bool            `db:"higher_is_better" json:"higher_is_better"`
	EvaluationMethod   string          `db:"evaluation_method" json:"evaluation_method"`
	EvaluationSchedule string          `db:"evaluation_schedule" json:"evaluation_schedule"`
	MeasurementType    MeasurementType `db:"measurement_type" json:"measurement_type"`
	CurrentProgress    int             `db:"current_progress" json:"current_progress"`
	Status             GoalStatus      `db:"status" json:"status"`
	ClosedAt           *time.Time      `db:"closed_at" json:"closed_at,omitempty"`
	Version            int             `db:"version" json:"version"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// ProgressDataPoint is one recorded trial for a goal. Points are immutable
// once recorded; corrections are appended as new points, not edits.
// Regression relative to earlier points is data, not an error.
type ProgressDataPoint struct {
	ID              string          `db:"id" json:"id"`
	GoalID          string          `db:"goal_id" json:"goal_id"`
	CollectionDate  time.Time       `db:"collection_date" json:"collection_date"`
	MeasurementType MeasurementType `db:"measurement_type" json:"measurement_type"`
	Value           float64         `db:"value" json:"value"`
	Correct         *int            `db:"correct" json:"correct,omitempty"`
	Total           *int            `db:"total" json:"total,omitempty"`
	PromptLevel     PromptLevel     `db:"prompt_level" json:"prompt_level"`
	MasteryMet      bool            `db:"mastery_met" json:"mastery_met"`
	Note            string          `db:"note" json:"note"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// GoalFilter captures list parameters for goals.
type GoalFilter struct {
	IEPID     string
	StudentID string
	Area      string
	Status    string
	Page      int
	PageSize  int
}

// GoalWithStudent joins a goal with its owning student for aggregation.
type GoalWithStudent struct {
	Goal
	StudentID string `db:"student_id" json:"student_id"`
}

// DomainAggregate is a read-only projection over goal statuses in one area.
type DomainAggregate struct {
	Area                GoalArea `json:"area"`
	GoalCount           int      `json:"goal_count"`
	AvgProgress         float64  `json:"avg_progress"`
	OnTrackCount        int      `json:"on_track_count"`
	NeedsAttentionCount int      `json:"needs_attention_count"`
	AtRiskCount         int      `json:"at_risk_count"`
}
