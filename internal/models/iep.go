package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// IEPStatus is the lifecycle state of an IEP record.
type IEPStatus string

const (
	IEPStatusDraft   IEPStatus = "draft"
	IEPStatusActive  IEPStatus = "active"
	IEPStatusExpired IEPStatus = "expired"
	IEPStatusAmended IEPStatus = "amended"
)

// ServiceType enumerates related-service categories delivered under an IEP.
type ServiceType string

const (
	ServiceSpecialEducation     ServiceType = "special-education"
	ServiceSpeechLanguage       ServiceType = "speech-language-therapy"
	ServiceOccupationalTherapy  ServiceType = "occupational-therapy"
	ServicePhysicalTherapy      ServiceType = "physical-therapy"
	ServiceCounseling           ServiceType = "counseling"
	ServiceAdaptivePE           ServiceType = "adaptive-pe"
	ServiceAssistiveTechnology  ServiceType = "assistive-technology"
	ServiceOrientationMobility  ServiceType = "orientation-mobility"
	ServiceBehavioralSupport    ServiceType = "behavioral-support"
	ServiceTransition           ServiceType = "transition-services"
)

// Amendment records a single change made to an active IEP. History is
// append-only; amending never rewrites earlier entries.
type Amendment struct {
	Date         time.Time `json:"date"`
	Changes      string    `json:"changes"`
	Reason       string    `json:"reason"`
	AuthorizedBy string    `json:"authorized_by"`
}

// AmendmentTrail is the JSONB-persisted audit trail of amendments.
type AmendmentTrail []Amendment

// Value marshals the trail for persistence.
func (t AmendmentTrail) Value() (driver.Value, error) {
	if t == nil {
		t = AmendmentTrail{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal amendment trail: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the trail.
func (t *AmendmentTrail) Scan(value interface{}) error {
	return scanJSON(value, t, "AmendmentTrail")
}

// RelatedService describes a service delivered under the IEP.
type RelatedService struct {
	ServiceType     ServiceType `json:"service_type"`
	ProviderType    string      `json:"provider_type"`
	SessionsPerWeek int         `json:"sessions_per_week"`
	MinutesPer      int         `json:"minutes_per_session"`
	Location        string      `json:"location"`
	StartDate       time.Time   `json:"start_date"`
	EndDate         time.Time   `json:"end_date"`
}

// RelatedServiceList is persisted as JSONB.
type RelatedServiceList []RelatedService

func (l RelatedServiceList) Value() (driver.Value, error) {
	if l == nil {
		l = RelatedServiceList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal related services: %w", err)
	}
	return data, nil
}

func (l *RelatedServiceList) Scan(value interface{}) error {
	return scanJSON(value, l, "RelatedServiceList")
}

// TransitionPlan holds postsecondary planning data, required once a
// student turns 16.
type TransitionPlan struct {
	PostsecondaryEducation  string `json:"postsecondary_education"`
	PostsecondaryEmployment string `json:"postsecondary_employment"`
	IndependentLiving       string `json:"independent_living,omitempty"`
	TransferOfRightsNotice  bool   `json:"transfer_of_rights_notice"`
}

func (p TransitionPlan) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal transition plan: %w", err)
	}
	return data, nil
}

func (p *TransitionPlan) Scan(value interface{}) error {
	return scanJSON(value, p, "TransitionPlan")
}

// IEP is one plan-year record for a student. At most one IEP per student
// is active at any time; superseded records are kept, never deleted.
type IEP struct {
	ID                      string             `db:"id" json:"id"`
	StudentID               string             `db:"student_id" json:"student_id"`
	IEPYear                 string             `db:"iep_year" json:"iep_year"`
	EffectiveDate           time.Time          `db:"effective_date" json:"effective_date"`
	AnnualReviewDate        time.Time          `db:"annual_review_date" json:"annual_review_date"`
	TriennialEvaluationDate time.Time          `db:"triennial_evaluation_date" json:"triennial_evaluation_date"`
	DisabilityCategory      DisabilityCategory `db:"disability_category" json:"disability_category"`
	PresentLevels           string             `db:"present_levels" json:"present_levels"`
	Accommodations          pq.StringArray     `db:"accommodations" json:"accommodations"`
	RelatedServices         RelatedServiceList `db:"related_services" json:"related_services"`
	TransitionPlan          *TransitionPlan    `db:"transition_plan" json:"transition_plan,omitempty"`
	Status                  IEPStatus          `db:"status" json:"status"`
	Amendments              AmendmentTrail     `db:"amendments" json:"amendments"`
	CreatedBy               string             `db:"created_by" json:"created_by"`
	CreatedAt               time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time          `db:"updated_at" json:"updated_at"`
}

// IEPFilter captures list parameters for IEP history lookups.
type IEPFilter struct {
	StudentID string
	Status    string
	Page      int
	PageSize  int
}

func scanJSON(value interface{}, dest interface{}, what string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, what)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}
