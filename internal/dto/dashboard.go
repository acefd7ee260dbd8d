package dto

import (
	"time"

	"github.com/accompli/iep-api/internal/models"
)

// CaseloadOverview is the composed dashboard payload for a caseload.
type CaseloadOverview struct {
	ActiveStudents      int                      `json:"active_students"`
	GoalsByArea         []models.DomainAggregate `json:"goals_by_area"`
	TotalGoals          int                      `json:"total_goals"`
	OnTrackCount        int                      `json:"on_track_count"`
	NeedsAttentionCount int                      `json:"needs_attention_count"`
	AtRiskCount         int                      `json:"at_risk_count"`
	RecentBehaviorCount int                      `json:"recent_behavior_count"`
	ComplianceAlerts    []ComplianceAlert        `json:"compliance_alerts"`
	GeneratedAt         time.Time                `json:"generated_at"`
}

// ComplianceAlert flags one student's due or overdue obligations.
type ComplianceAlert struct {
	StudentID   string              `json:"student_id"`
	IEPID       string              `json:"iep_id"`
	Obligations []models.Obligation `json:"obligations"`
}
