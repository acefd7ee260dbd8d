package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

type iepLifecycleRepoStub struct {
	ieps   map[string]*models.IEP
	nextID int
}

func newIEPLifecycleRepoStub() *iepLifecycleRepoStub {
	return &iepLifecycleRepoStub{ieps: make(map[string]*models.IEP)}
}

func (s *iepLifecycleRepoStub) FindByID(_ context.Context, id string) (*models.IEP, error) {
	iep, ok := s.ieps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *iep
	return &copied, nil
}

func (s *iepLifecycleRepoStub) FindActiveByStudent(_ context.Context, studentID string) (*models.IEP, error) {
	for _, iep := range s.ieps {
		if iep.StudentID == studentID && iep.Status == models.IEPStatusActive {
			copied := *iep
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *iepLifecycleRepoStub) List(_ context.Context, filter models.IEPFilter) ([]models.IEP, int, error) {
	var out []models.IEP
	for _, iep := range s.ieps {
		if filter.StudentID != "" && iep.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && string(iep.Status) != filter.Status {
			continue
		}
		out = append(out, *iep)
	}
	return out, len(out), nil
}

func (s *iepLifecycleRepoStub) Create(_ context.Context, iep *models.IEP) error {
	s.nextID++
	iep.ID = fmt.Sprintf("iep-%d", s.nextID)
	if iep.Amendments == nil {
		iep.Amendments = models.AmendmentTrail{}
	}
	stored := *iep
	s.ieps[iep.ID] = &stored
	return nil
}

func (s *iepLifecycleRepoStub) UpdateDraft(_ context.Context, iep *models.IEP) error {
	existing, ok := s.ieps[iep.ID]
	if !ok || existing.Status != models.IEPStatusDraft {
		return sql.ErrNoRows
	}
	stored := *iep
	s.ieps[iep.ID] = &stored
	return nil
}

func (s *iepLifecycleRepoStub) Activate(_ context.Context, id, studentID string) error {
	target, ok := s.ieps[id]
	if !ok || target.Status != models.IEPStatusDraft {
		return sql.ErrNoRows
	}
	for _, iep := range s.ieps {
		if iep.StudentID == studentID && iep.Status == models.IEPStatusActive {
			iep.Status = models.IEPStatusExpired
		}
	}
	target.Status = models.IEPStatusActive
	return nil
}

func (s *iepLifecycleRepoStub) Amend(_ context.Context, superseded string, replacement *models.IEP) error {
	old, ok := s.ieps[superseded]
	if !ok || old.Status != models.IEPStatusActive {
		return sql.ErrNoRows
	}
	old.Status = models.IEPStatusAmended
	s.nextID++
	replacement.ID = fmt.Sprintf("iep-%d", s.nextID)
	replacement.Status = models.IEPStatusActive
	stored := *replacement
	s.ieps[replacement.ID] = &stored
	return nil
}

type iepStudentRepoStub struct {
	students map[string]*models.StudentDetail
}

func (s *iepStudentRepoStub) FindByID(_ context.Context, id string) (*models.StudentDetail, error) {
	student, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

type auditRecorderStub struct {
	entries []*models.AuditLog
}

func (s *auditRecorderStub) RecordAudit(_ context.Context, entry *models.AuditLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newTestIEPService() (*IEPService, *iepLifecycleRepoStub, *auditRecorderStub) {
	repo := newIEPLifecycleRepoStub()
	students := &iepStudentRepoStub{students: map[string]*models.StudentDetail{
		"student-1": {Student: models.Student{ID: "student-1", Active: true}},
	}}
	audit := &auditRecorderStub{}
	return NewIEPService(repo, students, audit, nil, nil), repo, audit
}

func validIEPRequest() IEPRequest {
	effective := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	return IEPRequest{
		StudentID:               "student-1",
		IEPYear:                 "2025-2026",
		EffectiveDate:           effective,
		AnnualReviewDate:        effective.AddDate(1, 0, 0),
		TriennialEvaluationDate: effective.AddDate(3, 0, 0),
		DisabilityCategory:      string(models.DisabilityAutism),
		PresentLevels:           "Reads at 2nd grade level.",
		Accommodations:          []string{"extended time"},
		CreatedBy:               "user-1",
	}
}

func TestIEPCreateDraft(t *testing.T) {
	svc, repo, audit := newTestIEPService()

	iep, err := svc.CreateDraft(context.Background(), validIEPRequest())
	require.NoError(t, err)
	assert.Equal(t, models.IEPStatusDraft, iep.Status)
	assert.NotEmpty(t, iep.ID)
	assert.Len(t, repo.ieps, 1)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionCreate, audit.entries[0].Action)
}

func TestIEPCreateDraftUnknownStudent(t *testing.T) {
	svc, _, _ := newTestIEPService()

	req := validIEPRequest()
	req.StudentID = "student-unknown"
	_, err := svc.CreateDraft(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestIEPCreateDraftReviewBeforeEffective(t *testing.T) {
	svc, _, _ := newTestIEPService()

	req := validIEPRequest()
	req.AnnualReviewDate = req.EffectiveDate.AddDate(0, -1, 0)
	_, err := svc.CreateDraft(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestIEPCreateDraftUnknownCategory(t *testing.T) {
	svc, _, _ := newTestIEPService()

	req := validIEPRequest()
	req.DisabilityCategory = "not-a-category"
	_, err := svc.CreateDraft(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestIEPUpdateDraftOnlyDrafts(t *testing.T) {
	svc, _, _ := newTestIEPService()

	draft, err := svc.CreateDraft(context.Background(), validIEPRequest())
	require.NoError(t, err)

	req := validIEPRequest()
	req.PresentLevels = "Updated present levels."
	updated, err := svc.UpdateDraft(context.Background(), draft.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "Updated present levels.", updated.PresentLevels)

	_, err = svc.Activate(context.Background(), draft.ID)
	require.NoError(t, err)

	_, err = svc.UpdateDraft(context.Background(), draft.ID, req)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestIEPActivateExpiresPriorActive(t *testing.T) {
	svc, repo, _ := newTestIEPService()

	first, err := svc.CreateDraft(context.Background(), validIEPRequest())
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), first.ID)
	require.NoError(t, err)

	second, err := svc.CreateDraft(context.Background(), validIEPRequest())
	require.NoError(t, err)
	activated, err := svc.Activate(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IEPStatusActive, activated.Status)

	assert.Equal(t, models.IEPStatusExpired, repo.ieps[first.ID].Status)
	assert.Equal(t, models.IEPStatusActive, repo.ieps[second.ID].Status)
}

func TestIEPActivateRejectsNonDraft(t *testing.T) {
	svc, _, _ := newTestIEPService()

	draft, err := svc.CreateDraft(context.Background(), validIEPRequest())
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), draft.ID)
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), draft.ID)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestIEPAmendAppendsTrail(t *testing.T) {
	svc, repo, audit := newTestIEPService()

	draft, err := svc.CreateDraft(context.Background(), validIEPRequest())
	require.NoError(t, err)
	active, err := svc.Activate(context.Background(), draft.ID)
	require.NoError(t, err)

	body := validIEPRequest()
	body.PresentLevels = "Now reads at 3rd grade level."
	replacement, err := svc.Amend(context.Background(), active.ID, AmendRequest{
		Changes:      "Updated present levels and reading goal.",
		Reason:       "Triannual data review",
		AuthorizedBy: "Case Manager",
		Body:         body,
	})
	require.NoError(t, err)
	assert.NotEqual(t, active.ID, replacement.ID)
	require.Len(t, replacement.Amendments, 1)
	assert.Equal(t, "Triannual data review", replacement.Amendments[0].Reason)

	// The superseded record stays queryable, marked amended.
	assert.Equal(t, models.IEPStatusAmended, repo.ieps[active.ID].Status)
	assert.Equal(t, models.IEPStatusActive, repo.ieps[replacement.ID].Status)

	// A second amendment extends the trail without rewriting it.
	second, err := svc.Amend(context.Background(), replacement.ID, AmendRequest{
		Changes:      "Added OT services.",
		Reason:       "Parent request",
		AuthorizedBy: "Case Manager",
		Body:         body,
	})
	require.NoError(t, err)
	require.Len(t, second.Amendments, 2)
	assert.Equal(t, "Triannual data review", second.Amendments[0].Reason)
	assert.Equal(t, "Parent request", second.Amendments[1].Reason)

	assert.Len(t, audit.entries, 3)
}

func TestIEPAmendRejectsDraft(t *testing.T) {
	svc, _, _ := newTestIEPService()

	draft, err := svc.CreateDraft(context.Background(), validIEPRequest())
	require.NoError(t, err)

	_, err = svc.Amend(context.Background(), draft.ID, AmendRequest{
		Changes:      "x",
		Reason:       "y",
		AuthorizedBy: "z",
		Body:         validIEPRequest(),
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestIEPAmendCannotMoveStudent(t *testing.T) {
	svc, _, _ := newTestIEPService()

	draft, err := svc.CreateDraft(context.Background(), validIEPRequest())
	require.NoError(t, err)
	active, err := svc.Activate(context.Background(), draft.ID)
	require.NoError(t, err)

	body := validIEPRequest()
	body.StudentID = "student-2"
	_, err = svc.Amend(context.Background(), active.ID, AmendRequest{
		Changes:      "x",
		Reason:       "y",
		AuthorizedBy: "z",
		Body:         body,
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
