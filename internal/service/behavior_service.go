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

type behaviorRepository interface {
	List(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error)
	FindByID(ctx context.Context, id string) (*models.BehaviorEvent, error)
	Create(ctx context.Context, event *models.BehaviorEvent) error
	AppendFollowUp(ctx context.Context, id, note string) error
	Summary(ctx context.Context, studentID string, from, to time.Time) (*models.BehaviorSummary, error)
}

type behaviorGoalRepository interface {
	FindByID(ctx context.Context, id string) (*models.Goal, error)
}

// BehaviorService owns the append-only log of ABC events.
type BehaviorService struct {
	repo      behaviorRepository
	goalRepo  behaviorGoalRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBehaviorService constructs the service.
func NewBehaviorService(repo behaviorRepository, goalRepo behaviorGoalRepository, validate *validator.Validate, logger *zap.Logger) *BehaviorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BehaviorService{repo: repo, goalRepo: goalRepo, validator: validate, logger: logger}
}

// RecordEventRequest describes one ABC observation.
type RecordEventRequest struct {
	StudentID            string    `json:"student_id" validate:"required"`
	GoalID               *string   `json:"goal_id"`
	OccurredAt           time.Time `json:"occurred_at" validate:"required"`
	Antecedent           string    `json:"antecedent" validate:"required"`
	Behavior             string    `json:"behavior" validate:"required"`
	Consequence          string    `json:"consequence" validate:"required"`
	Severity             string    `json:"severity" validate:"required"`
	DurationSeconds      int       `json:"duration_seconds"`
	Location             string    `json:"location"`
	StaffPresent         []string  `json:"staff_present"`
	EnvironmentalFactors []string  `json:"environmental_factors"`
	InterventionsUsed    []string  `json:"interventions_used"`
	EffectivenessRating  *int      `json:"effectiveness_rating"`
	FollowUpNeeded       bool      `json:"follow_up_needed"`
	CreatedBy            string    `json:"-"`
}

// SummaryRequest scopes a behavior summary.
type SummaryRequest struct {
	StudentID string    `json:"student_id" validate:"required"`
	DateFrom  time.Time `json:"date_from" validate:"required"`
	DateTo    time.Time `json:"date_to" validate:"required"`
}

// List returns events with pagination.
func (s *BehaviorService) List(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, *models.Pagination, error) {
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list behavior events")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return events, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one event.
func (s *BehaviorService) Get(ctx context.Context, id string) (*models.BehaviorEvent, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "behavior event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load behavior event")
	}
	return event, nil
}

// RecordEvent validates and appends an observation. Severity and duration
// are independent axes: duration 0 with severity high is valid. Negative
// durations are not. A goal link must point at a behavioral-domain goal.
func (s *BehaviorService) RecordEvent(ctx context.Context, req RecordEventRequest) (*models.BehaviorEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidEvent.Code, appErrors.ErrInvalidEvent.Status, "invalid behavior event payload")
	}
	if req.DurationSeconds < 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidEvent, "duration cannot be negative")
	}
	severity := models.Severity(req.Severity)
	if !severity.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidEvent, "severity must be low, medium or high")
	}
	if req.EffectivenessRating != nil && (*req.EffectivenessRating < 1 || *req.EffectivenessRating > 5) {
		return nil, appErrors.Clone(appErrors.ErrInvalidEvent, "effectiveness rating must be between 1 and 5")
	}
	if req.GoalID != nil && *req.GoalID != "" {
		goal, err := s.goalRepo.FindByID(ctx, *req.GoalID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrInvalidEvent, "linked goal not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked goal")
		}
		if goal.Area != models.AreaBehavioral {
			return nil, appErrors.Clone(appErrors.ErrInvalidEvent, "behavior events can only link to behavioral goals")
		}
	}

	event := &models.BehaviorEvent{
		StudentID:            req.StudentID,
		GoalID:               req.GoalID,
		OccurredAt:           req.OccurredAt,
		Antecedent:           req.Antecedent,
		Behavior:             req.Behavior,
		Consequence:          req.Consequence,
		Severity:             severity,
		DurationSeconds:      req.DurationSeconds,
		Location:             req.Location,
		StaffPresent:         pq.StringArray(req.StaffPresent),
		EnvironmentalFactors: pq.StringArray(req.EnvironmentalFactors),
		InterventionsUsed:    pq.StringArray(req.InterventionsUsed),
		EffectivenessRating:  req.EffectivenessRating,
		FollowUpNeeded:       req.FollowUpNeeded,
		CreatedBy:            req.CreatedBy,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record behavior event")
	}
	return event, nil
}

// AppendFollowUp adds follow-up notes, the only permitted mutation.
func (s *BehaviorService) AppendFollowUp(ctx context.Context, id, note string) error {
	if note == "" {
		return appErrors.Clone(appErrors.ErrValidation, "follow-up note cannot be empty")
	}
	if err := s.repo.AppendFollowUp(ctx, id, note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "behavior event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append follow-up")
	}
	return nil
}

// Summarize aggregates a student's events over a date range. Free-text
// buckets group on exact strings; normalization is a presentation concern.
func (s *BehaviorService) Summarize(ctx context.Context, req SummaryRequest) (*models.BehaviorSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid summary request")
	}
	if req.DateTo.Before(req.DateFrom) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range end precedes start")
	}
	summary, err := s.repo.Summary(ctx, req.StudentID, req.DateFrom, req.DateTo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise behavior")
	}
	return summary, nil
}
