package models

import "time"

// DisabilityCategory is one of the 13 categories defined by IDEA.
type DisabilityCategory string

const (
	DisabilityAutism                     DisabilityCategory = "autism"
	DisabilityDeafBlindness              DisabilityCategory = "deaf-blindness"
	DisabilityDeafness                   DisabilityCategory = "deafness"
	DisabilityEmotionalDisturbance       DisabilityCategory = "emotional-disturbance"
	DisabilityHearingImpairment          DisabilityCategory = "hearing-impairment"
	DisabilityIntellectualDisability     DisabilityCategory = "intellectual-disability"
	DisabilityMultipleDisabilities       DisabilityCategory = "multiple-disabilities"
	DisabilityOrthopedicImpairment       DisabilityCategory = "orthopedic-impairment"
	DisabilityOtherHealthImpairment      DisabilityCategory = "other-health-impairment"
	DisabilitySpecificLearningDisability DisabilityCategory = "specific-learning-disability"
	DisabilitySpeechLanguageImpairment   DisabilityCategory = "speech-language-impairment"
	DisabilityTraumaticBrainInjury       DisabilityCategory = "traumatic-brain-injury"
	DisabilityVisualImpairment           DisabilityCategory = "visual-impairment"
)

// DisabilityCategories lists every valid IDEA category.
var DisabilityCategories = []DisabilityCategory{
	DisabilityAutism,
	DisabilityDeafBlindness,
	DisabilityDeafness,
	DisabilityEmotionalDisturbance,
	DisabilityHearingImpairment,
	DisabilityIntellectualDisability,
	DisabilityMultipleDisabilities,
	DisabilityOrthopedicImpairment,
	DisabilityOtherHealthImpairment,
	DisabilitySpecificLearningDisability,
	DisabilitySpeechLanguageImpairment,
	DisabilityTraumaticBrainInjury,
	DisabilityVisualImpairment,
}

// Valid reports whether the category is one of the IDEA values.
func (d DisabilityCategory) Valid() bool {
	for _, c := range DisabilityCategories {
		if c == d {
			return true
		}
	}
	return false
}

// Student represents a learner on a special-education caseload.
// Students are never hard-deleted; compliance records must persist.
type Student struct {
	ID                 string             `db:"id" json:"id"`
	OrganizationID     string             `db:"organization_id" json:"organization_id"`
	FirstName          string             `db:"first_name" json:"first_name"`
	LastName           string             `db:"last_name" json:"last_name"`
	GradeLevel         string             `db:"grade_level" json:"grade_level"`
	BirthDate          time.Time          `db:"birth_date" json:"birth_date"`
	DisabilityCategory DisabilityCategory `db:"disability_category" json:"disability_category"`
	Active             bool               `db:"active" json:"active"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// AgeAt returns the student's age in whole years on the given date.
func (s Student) AgeAt(on time.Time) int {
	years := on.Year() - s.BirthDate.Year()
	anniversary := s.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(on) {
		years--
	}
	return years
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search             string
	OrganizationID     string
	GradeLevel         string
	DisabilityCategory string
	Active             *bool
	Page               int
	PageSize           int
	SortBy             string
	SortOrder          string
}

// StudentDetail contains student information with active-IEP context.
type StudentDetail struct {
	Student
	ActiveIEPID      *string    `db:"active_iep_id" json:"active_iep_id,omitempty"`
	AnnualReviewDate *time.Time `db:"annual_review_date" json:"annual_review_date,omitempty"`
}
