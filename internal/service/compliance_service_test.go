package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accompli/iep-api/internal/models"
)

func complianceIEP(annualReview, triennial time.Time) *models.IEP {
	return &models.IEP{
		ID:                      "iep-1",
		StudentID:               "student-1",
		AnnualReviewDate:        annualReview,
		TriennialEvaluationDate: triennial,
		Status:                  models.IEPStatusActive,
	}
}

func findObligation(t *testing.T, obligations []models.Obligation, kind models.ObligationType) models.Obligation {
	t.Helper()
	for _, o := range obligations {
		if o.Type == kind {
			return o
		}
	}
	t.Fatalf("obligation %s not found", kind)
	return models.Obligation{}
}

func TestCheckComplianceWindowBoundaries(t *testing.T) {
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	iep := complianceIEP(due, due.AddDate(2, 0, 0))

	cases := []struct {
		name  string
		today time.Time
		want  models.ObligationStatus
		days  int
	}{
		{"31 days out is upcoming", due.AddDate(0, 0, -31), models.ObligationUpcoming, 31},
		{"30 days out is due", due.AddDate(0, 0, -30), models.ObligationDue, 30},
		{"one day out is due", due.AddDate(0, 0, -1), models.ObligationDue, 1},
		{"due date itself is due", due, models.ObligationDue, 0},
		{"one day past is overdue", due.AddDate(0, 0, 1), models.ObligationOverdue, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obligations := CheckCompliance(iep, 12, tc.today, 30)
			review := findObligation(t, obligations, models.ObligationAnnualReview)
			assert.Equal(t, tc.want, review.Status)
			assert.Equal(t, tc.days, review.DaysUntilDue)
		})
	}
}

func TestCheckComplianceIgnoresTimeOfDay(t *testing.T) {
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	iep := complianceIEP(due, due.AddDate(2, 0, 0))

	// Late evening on the due date is still due, not overdue.
	today := time.Date(2026, 6, 1, 23, 30, 0, 0, time.UTC)
	review := findObligation(t, CheckCompliance(iep, 12, today, 30), models.ObligationAnnualReview)
	assert.Equal(t, models.ObligationDue, review.Status)
}

func TestCheckComplianceTransferOfRights(t *testing.T) {
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)

	// Under 16: not checked, even with a transition plan.
	iep := complianceIEP(due, due.AddDate(2, 0, 0))
	iep.TransitionPlan = &models.TransitionPlan{}
	assert.Len(t, CheckCompliance(iep, 15, today, 30), 2)

	// 16 with a plan but no recorded notice: flagged against the review date.
	obligations := CheckCompliance(iep, 16, today, 30)
	require.Len(t, obligations, 3)
	transfer := findObligation(t, obligations, models.ObligationTransferOfRights)
	assert.Equal(t, models.ObligationDue, transfer.Status)

	// Recorded notice clears the obligation.
	iep.TransitionPlan.TransferOfRightsNotice = true
	assert.Len(t, CheckCompliance(iep, 16, today, 30), 2)

	// No transition plan at all: nothing to check.
	iep.TransitionPlan = nil
	assert.Len(t, CheckCompliance(iep, 17, today, 30), 2)
}

func TestCheckComplianceConfigurableWindow(t *testing.T) {
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	iep := complianceIEP(due, due.AddDate(2, 0, 0))
	today := due.AddDate(0, 0, -45)

	review := findObligation(t, CheckCompliance(iep, 12, today, 60), models.ObligationAnnualReview)
	assert.Equal(t, models.ObligationDue, review.Status)
	review = findObligation(t, CheckCompliance(iep, 12, today, 30), models.ObligationAnnualReview)
	assert.Equal(t, models.ObligationUpcoming, review.Status)
}

type complianceIEPRepoStub struct {
	ieps map[string]*models.IEP
}

func (s *complianceIEPRepoStub) FindActiveByStudent(ctx context.Context, studentID string) (*models.IEP, error) {
	for _, iep := range s.ieps {
		if iep.StudentID == studentID && iep.Status == models.IEPStatusActive {
			return iep, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *complianceIEPRepoStub) ListActive(ctx context.Context) ([]models.IEP, error) {
	var out []models.IEP
	for _, iep := range s.ieps {
		if iep.Status == models.IEPStatusActive {
			out = append(out, *iep)
		}
	}
	return out, nil
}

type complianceStudentRepoStub struct {
	students map[string]*models.StudentDetail
}

func (s *complianceStudentRepoStub) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

func TestSweepReturnsOnlyActionable(t *testing.T) {
	today := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	farOut := today.AddDate(1, 0, 0)

	dueSoon := complianceIEP(today.AddDate(0, 0, 10), farOut)
	dueSoon.ID, dueSoon.StudentID = "iep-due", "student-due"
	clean := complianceIEP(farOut, farOut.AddDate(1, 0, 0))
	clean.ID, clean.StudentID = "iep-clean", "student-clean"

	iepRepo := &complianceIEPRepoStub{ieps: map[string]*models.IEP{"iep-due": dueSoon, "iep-clean": clean}}
	studentRepo := &complianceStudentRepoStub{students: map[string]*models.StudentDetail{
		"student-due":   {Student: models.Student{ID: "student-due", BirthDate: today.AddDate(-10, 0, 0)}},
		"student-clean": {Student: models.Student{ID: "student-clean", BirthDate: today.AddDate(-10, 0, 0)}},
	}}
	svc := NewComplianceService(iepRepo, studentRepo, nil, 30)

	flagged, err := svc.Sweep(context.Background(), today)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "student-due", flagged[0].StudentID)
	require.Len(t, flagged[0].Obligations, 1)
	assert.Equal(t, models.ObligationAnnualReview, flagged[0].Obligations[0].Type)
}

func TestCheckStudentWithoutActiveIEP(t *testing.T) {
	svc := NewComplianceService(&complianceIEPRepoStub{ieps: map[string]*models.IEP{}},
		&complianceStudentRepoStub{students: map[string]*models.StudentDetail{}}, nil, 30)
	_, err := svc.CheckStudent(context.Background(), "student-1", time.Now())
	require.Error(t, err)
}
