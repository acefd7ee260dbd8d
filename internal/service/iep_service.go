package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

type iepRepository interface {
	FindByID(ctx context.Context, id string) (*models.IEP, error)
	FindActiveByStudent(ctx context.Context, studentID string) (*models.IEP, error)
	List(ctx context.Context, filter models.IEPFilter) ([]models.IEP, int, error)
	Create(ctx context.Context, iep *models.IEP) error
	UpdateDraft(ctx context.Context, iep *models.IEP) error
	Activate(ctx context.Context, id, studentID string) error
	Amend(ctx context.Context, superseded string, replacement *models.IEP) error
}

type iepStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type iepAuditRecorder interface {
	RecordAudit(ctx context.Context, entry *models.AuditLog) error
}

// IEPService owns the IEP lifecycle: draft, activate, amend, expire.
type IEPService struct {
	repo        iepRepository
	studentRepo iepStudentRepository
	audit       iepAuditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewIEPService constructs the service.
func NewIEPService(repo iepRepository, studentRepo iepStudentRepository, audit iepAuditRecorder, validate *validator.Validate, logger *zap.Logger) *IEPService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IEPService{repo: repo, studentRepo: studentRepo, audit: audit, validator: validate, logger: logger}
}

// IEPRequest carries the editable body of an IEP, used for both drafting
// and amendment payloads.
type IEPRequest struct {
	StudentID               string                    `json:"student_id" validate:"required"`
	IEPYear                 string                    `json:"iep_year" validate:"required"`
	EffectiveDate           time.Time                 `json:"effective_date" validate:"required"`
	AnnualReviewDate        time.Time                 `json:"annual_review_date" validate:"required"`
	TriennialEvaluationDate time.Time                 `json:"triennial_evaluation_date" validate:"required"`
	DisabilityCategory      string                    `json:"disability_category" validate:"required"`
	PresentLevels           string                    `json:"present_levels"`
	Accommodations          []string                  `json:"accommodations"`
	RelatedServices         models.RelatedServiceList `json:"related_services"`
	TransitionPlan          *models.TransitionPlan    `json:"transition_plan"`
	CreatedBy               string                    `json:"-"`
}

// AmendRequest describes an amendment to an active IEP.
type AmendRequest struct {
	Changes      string     `json:"changes" validate:"required"`
	Reason       string     `json:"reason" validate:"required"`
	AuthorizedBy string     `json:"authorized_by" validate:"required"`
	Body         IEPRequest `json:"body" validate:"required"`
}

func (s *IEPService) buildIEP(req IEPRequest) (*models.IEP, error) {
	category := models.DisabilityCategory(req.DisabilityCategory)
	if !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown disability category")
	}
	if !req.AnnualReviewDate.After(req.EffectiveDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "annual review date must follow the effective date")
	}
	return &models.IEP{
		StudentID:               req.StudentID,
		IEPYear:                 req.IEPYear,
		EffectiveDate:           req.EffectiveDate,
		AnnualReviewDate:        req.AnnualReviewDate,
		TriennialEvaluationDate: req.TriennialEvaluationDate,
		DisabilityCategory:      category,
		PresentLevels:           req.PresentLevels,
		Accommodations:          pq.StringArray(req.Accommodations),
		RelatedServices:         req.RelatedServices,
		TransitionPlan:          req.TransitionPlan,
		CreatedBy:               req.CreatedBy,
	}, nil
}

// CreateDraft stores a new draft IEP for a student.
func (s *IEPService) CreateDraft(ctx context.Context, req IEPRequest) (*models.IEP, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid iep payload")
	}
	if _, err := s.studentRepo.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	iep, err := s.buildIEP(req)
	if err != nil {
		return nil, err
	}
	iep.Status = models.IEPStatusDraft
	if err := s.repo.Create(ctx, iep); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create iep")
	}
	s.recordAudit(ctx, req.CreatedBy, models.AuditActionCreate, iep.ID)
	return iep, nil
}

// UpdateDraft replaces the editable body of a draft.
func (s *IEPService) UpdateDraft(ctx context.Context, id string, req IEPRequest) (*models.IEP, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid iep payload")
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "iep not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load iep")
	}
	if existing.Status != models.IEPStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only draft ieps can be edited; amend the active record instead")
	}
	iep, err := s.buildIEP(req)
	if err != nil {
		return nil, err
	}
	iep.ID = id
	iep.Status = models.IEPStatusDraft
	iep.Amendments = existing.Amendments
	iep.CreatedBy = existing.CreatedBy
	if err := s.repo.UpdateDraft(ctx, iep); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update draft")
	}
	return iep, nil
}

// Activate promotes a draft to the student's active IEP. Any previously
// active record is expired in the same transaction.
func (s *IEPService) Activate(ctx context.Context, id string) (*models.IEP, error) {
	iep, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "iep not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load iep")
	}
	if iep.Status != models.IEPStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only draft ieps can be activated")
	}
	if err := s.repo.Activate(ctx, id, iep.StudentID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate iep")
	}
	iep.Status = models.IEPStatusActive
	return iep, nil
}

// Amend supersedes the active IEP with a replacement that carries the
// extended amendment trail. The superseded record stays queryable under
// status 'amended'; history is never rewritten.
func (s *IEPService) Amend(ctx context.Context, id string, req AmendRequest) (*models.IEP, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid amendment payload")
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "iep not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load iep")
	}
	if current.Status != models.IEPStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only the active iep can be amended")
	}
	if req.Body.StudentID != current.StudentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amendment cannot move the iep to another student")
	}
	replacement, err := s.buildIEP(req.Body)
	if err != nil {
		return nil, err
	}
	replacement.Amendments = append(append(models.AmendmentTrail{}, current.Amendments...), models.Amendment{
		Date:         time.Now().UTC(),
		Changes:      req.Changes,
		Reason:       req.Reason,
		AuthorizedBy: req.AuthorizedBy,
	})
	if err := s.repo.Amend(ctx, current.ID, replacement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to amend iep")
	}
	s.recordAudit(ctx, req.Body.CreatedBy, models.AuditActionAmend, replacement.ID)
	return replacement, nil
}

// Get returns one IEP record.
func (s *IEPService) Get(ctx context.Context, id string) (*models.IEP, error) {
	iep, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "iep not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load iep")
	}
	return iep, nil
}

// List returns IEP history matching the filter.
func (s *IEPService) List(ctx context.Context, filter models.IEPFilter) ([]models.IEP, *models.Pagination, error) {
	ieps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ieps")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return ieps, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *IEPService) recordAudit(ctx context.Context, userID string, action models.AuditAction, iepID string) {
	if s.audit == nil {
		return
	}
	var uid *string
	if userID != "" {
		uid = &userID
	}
	entry := &models.AuditLog{UserID: uid, Action: action, Resource: "iep", ResourceID: &iepID}
	if err := s.audit.RecordAudit(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry", zap.String("iep_id", iepID), zap.Error(err))
	}
}
