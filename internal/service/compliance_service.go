package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

const defaultDueSoonDays = 30

type complianceIEPRepository interface {
	FindActiveByStudent(ctx context.Context, studentID string) (*models.IEP, error)
	ListActive(ctx context.Context) ([]models.IEP, error)
}

type complianceStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// ComplianceService evaluates date-driven IEP obligations. The
// classification itself is a pure function of the record and a reference
// date; the service only adds persistence lookups around it.
type ComplianceService struct {
	iepRepo     complianceIEPRepository
	studentRepo complianceStudentRepository
	logger      *zap.Logger
	dueSoonDays int
}

// NewComplianceService constructs the service. dueSoonDays is the policy
// window for flagging reviews ahead of their due date; it defaults to the
// standard 30 days when non-positive.
func NewComplianceService(iepRepo complianceIEPRepository, studentRepo complianceStudentRepository, logger *zap.Logger, dueSoonDays int) *ComplianceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dueSoonDays <= 0 {
		dueSoonDays = defaultDueSoonDays
	}
	return &ComplianceService{iepRepo: iepRepo, studentRepo: studentRepo, logger: logger, dueSoonDays: dueSoonDays}
}

// StudentCompliance pairs a student with their flagged obligations.
type StudentCompliance struct {
	StudentID   string              `json:"student_id"`
	IEPID       string              `json:"iep_id"`
	Obligations []models.Obligation `json:"obligations"`
}

// CheckStudent evaluates the student's active IEP against today.
func (s *ComplianceService) CheckStudent(ctx context.Context, studentID string, today time.Time) (*StudentCompliance, error) {
	iep, err := s.iepRepo.FindActiveByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no active iep")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active iep")
	}
	student, err := s.studentRepo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return &StudentCompliance{
		StudentID:   studentID,
		IEPID:       iep.ID,
		Obligations: CheckCompliance(iep, student.AgeAt(today), today, s.dueSoonDays),
	}, nil
}

// Sweep evaluates every active IEP and returns only students with at least
// one obligation that is due or overdue. Used by the dashboard alert feed.
func (s *ComplianceService) Sweep(ctx context.Context, today time.Time) ([]StudentCompliance, error) {
	ieps, err := s.iepRepo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active ieps")
	}
	var flagged []StudentCompliance
	for i := range ieps {
		iep := &ieps[i]
		student, err := s.studentRepo.FindByID(ctx, iep.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("active iep references missing student",
					zap.String("iep_id", iep.ID), zap.String("student_id", iep.StudentID))
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		obligations := CheckCompliance(iep, student.AgeAt(today), today, s.dueSoonDays)
		var actionable []models.Obligation
		for _, o := range obligations {
			if o.Status != models.ObligationUpcoming {
				actionable = append(actionable, o)
			}
		}
		if len(actionable) > 0 {
			flagged = append(flagged, StudentCompliance{StudentID: iep.StudentID, IEPID: iep.ID, Obligations: actionable})
		}
	}
	return flagged, nil
}

// CheckCompliance classifies each dated obligation of one IEP against a
// reference date. Pure: no hidden state, no clock access. The window rule,
// measured in whole days between date-only values: more than dueSoonDays
// out is upcoming, within the window through the due date itself is due,
// past the due date is overdue. Transfer-of-rights is only checked once the
// student is 16 and a transition plan exists; a recorded notice clears it.
func CheckCompliance(iep *models.IEP, studentAge int, today time.Time, dueSoonDays int) []models.Obligation {
	if dueSoonDays <= 0 {
		dueSoonDays = defaultDueSoonDays
	}
	obligations := []models.Obligation{
		classifyObligation(models.ObligationAnnualReview, iep.AnnualReviewDate, today, dueSoonDays),
		classifyObligation(models.ObligationTriennialEval, iep.TriennialEvaluationDate, today, dueSoonDays),
	}
	if iep.TransitionPlan != nil && studentAge >= 16 && !iep.TransitionPlan.TransferOfRightsNotice {
		// The notice rides the annual review: it must be delivered by the
		// next review at the latest.
		obligations = append(obligations,
			classifyObligation(models.ObligationTransferOfRights, iep.AnnualReviewDate, today, dueSoonDays))
	}
	return obligations
}

func classifyObligation(kind models.ObligationType, dueDate, today time.Time, dueSoonDays int) models.Obligation {
	days := daysBetween(today, dueDate)
	status := models.ObligationDue
	switch {
	case days > dueSoonDays:
		status = models.ObligationUpcoming
	case days < 0:
		status = models.ObligationOverdue
	}
	return models.Obligation{Type: kind, DueDate: dueDate, Status: status, DaysUntilDue: days}
}

// daysBetween counts whole calendar days from one date to another,
// ignoring the time-of-day component of both.
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
