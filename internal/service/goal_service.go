package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

const defaultTrendWindow = 4

type goalRepository interface {
	FindByID(ctx context.Context, id string) (*models.Goal, error)
	List(ctx context.Context, filter models.GoalFilter) ([]models.Goal, int, error)
	ListForStudents(ctx context.Context, studentIDs []string, area string) ([]models.GoalWithStudent, error)
	Create(ctx context.Context, goal *models.Goal) error
	ListPoints(ctx context.Context, goalID string) ([]models.ProgressDataPoint, error)
	ListPointsForGoals(ctx context.Context, goalIDs []string) (map[string][]models.ProgressDataPoint, error)
	AppendPoint(ctx context.Context, goal *models.Goal, point *models.ProgressDataPoint, expectedVersion int) error
	Close(ctx context.Context, goalID string, outcome models.GoalStatus, closedAt time.Time, expectedVersion int) error
}

type goalIEPRepository interface {
	FindByID(ctx context.Context, id string) (*models.IEP, error)
}

// GoalService owns goal records, their progress history and the derived
// status classification.
type GoalService struct {
	repo        goalRepository
	iepRepo     goalIEPRepository
	validator   *validator.Validate
	logger      *zap.Logger
	trendWindow int
}

// NewGoalService constructs the service. trendWindow is the number of most
// recent points the trend classification looks at; values below 2 fall back
// to the default of 4.
func NewGoalService(repo goalRepository, iepRepo goalIEPRepository, validate *validator.Validate, logger *zap.Logger, trendWindow int) *GoalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if trendWindow < 2 {
		trendWindow = defaultTrendWindow
	}
	return &GoalService{repo: repo, iepRepo: iepRepo, validator: validate, logger: logger, trendWindow: trendWindow}
}

// CreateGoalRequest describes a new goal payload.
type CreateGoalRequest struct {
	IEPID              string  `json:"iep_id" validate:"required"`
	Area               string  `json:"area" validate:"required"`
	Statement          string  `json:"statement" validate:"required"`
	Baseline           string  `json:"baseline"`
	TargetCriteria     string  `json:"target_criteria" validate:"required"`
	Target             float64 `json:"target" validate:"required,gt=0"`
	HigherIsBetter     *bool   `json:"higher_is_better"`
	EvaluationMethod   string  `json:"evaluation_method"`
	EvaluationSchedule string  `json:"evaluation_schedule"`
	MeasurementType    string  `json:"measurement_type" validate:"required"`
}

// RecordProgressRequest describes one submitted data point.
type RecordProgressRequest struct {
	CollectionDate  time.Time `json:"collection_date" validate:"required"`
	MeasurementType string    `json:"measurement_type" validate:"required"`
	Value           float64   `json:"value"`
	Correct         *int      `json:"correct"`
	Total           *int      `json:"total"`
	PromptLevel     string    `json:"prompt_level"`
	MasteryMet      bool      `json:"mastery_met"`
	Note            string    `json:"note"`
	ExpectedVersion int       `json:"expected_version"`
	CreatedBy       string    `json:"-"`
}

// CloseGoalRequest describes a terminal transition.
type CloseGoalRequest struct {
	Outcome         string    `json:"outcome" validate:"required"`
	Date            time.Time `json:"date" validate:"required"`
	ExpectedVersion int       `json:"expected_version"`
}

// GoalDetail bundles a goal with its history and derived status.
type GoalDetail struct {
	Goal   models.Goal                `json:"goal"`
	Points []models.ProgressDataPoint `json:"points"`
	Status models.StatusBand          `json:"derived_status"`
}

// Create adds a goal to an IEP. Goals may be added while the IEP is a
// draft or, via amendment, while it is active.
func (s *GoalService) Create(ctx context.Context, req CreateGoalRequest) (*models.Goal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid goal payload")
	}
	area := models.GoalArea(req.Area)
	if !area.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown goal area")
	}
	measurement := models.MeasurementType(req.MeasurementType)
	if !measurement.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown measurement type")
	}
	iep, err := s.iepRepo.FindByID(ctx, req.IEPID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "iep not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load iep")
	}
	if iep.Status != models.IEPStatusDraft && iep.Status != models.IEPStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "goals can only be added to draft or active ieps")
	}

	higherIsBetter := true
	if req.HigherIsBetter != nil {
		higherIsBetter = *req.HigherIsBetter
	}
	goal := &models.Goal{
		IEPID:              req.IEPID,
		Area:               area,
		Statement:          req.Statement,
		Baseline:           req.Baseline,
		TargetCriteria:     req.TargetCriteria,
		Target:             req.Target,
		HigherIsBetter:     higherIsBetter,
		EvaluationMethod:   req.EvaluationMethod,
		EvaluationSchedule: req.EvaluationSchedule,
		MeasurementType:    measurement,
	}
	if err := s.repo.Create(ctx, goal); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create goal")
	}
	return goal, nil
}

// List returns goals matching the filter.
func (s *GoalService) List(ctx context.Context, filter models.GoalFilter) ([]models.Goal, *models.Pagination, error) {
	goals, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list goals")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return goals, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a goal with its full ordered history and derived status.
func (s *GoalService) Get(ctx context.Context, goalID string) (*GoalDetail, error) {
	goal, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "goal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load goal")
	}
	points, err := s.repo.ListPoints(ctx, goalID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress points")
	}
	return &GoalDetail{Goal: *goal, Points: points, Status: s.DeriveStatus(goal, points)}, nil
}

// RecordProgress appends an immutable data point, recomputes the goal's
// cached progress from the point's normalized value and bumps the version.
// A closed goal rejects the write without touching its data.
func (s *GoalService) RecordProgress(ctx context.Context, goalID string, req RecordProgressRequest) (*GoalDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid progress payload")
	}
	goal, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "goal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load goal")
	}
	if goal.Status.Closed() {
		return nil, appErrors.Clone(appErrors.ErrGoalClosed, "goal is closed; no further progress can be recorded")
	}
	measurement := models.MeasurementType(req.MeasurementType)
	if measurement != goal.MeasurementType {
		return nil, appErrors.Clone(appErrors.ErrInvalidMeasurement,
			"data point measurement type does not match the goal's declared type")
	}
	if req.PromptLevel != "" && !models.PromptLevel(req.PromptLevel).Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown prompt level")
	}

	point := &models.ProgressDataPoint{
		GoalID:          goal.ID,
		CollectionDate:  req.CollectionDate,
		MeasurementType: measurement,
		Value:           req.Value,
		Correct:         req.Correct,
		Total:           req.Total,
		PromptLevel:     models.PromptLevel(req.PromptLevel),
		MasteryMet:      req.MasteryMet,
		Note:            req.Note,
		CreatedBy:       req.CreatedBy,
	}
	normalized, err := normalizePoint(goal, point)
	if err != nil {
		return nil, err
	}
	goal.CurrentProgress = int(math.Round(normalized))

	expected := req.ExpectedVersion
	if expected == 0 {
		expected = goal.Version
	}
	if err := s.repo.AppendPoint(ctx, goal, point, expected); err != nil {
		if errors.Is(err, appErrors.ErrConcurrentModification) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification,
				"goal was modified by another writer; reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record progress")
	}

	points, err := s.repo.ListPoints(ctx, goalID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress points")
	}
	return &GoalDetail{Goal: *goal, Points: points, Status: s.DeriveStatus(goal, points)}, nil
}

// Close marks a goal mastered or discontinued. Terminal: subsequent writes
// are rejected.
func (s *GoalService) Close(ctx context.Context, goalID string, req CloseGoalRequest) (*models.Goal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid close payload")
	}
	outcome := models.GoalStatus(req.Outcome)
	if outcome != models.GoalStatusMastered && outcome != models.GoalStatusDiscontinued {
		return nil, appErrors.Clone(appErrors.ErrValidation, "outcome must be mastered or discontinued")
	}
	goal, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "goal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load goal")
	}
	if goal.Status.Closed() {
		return nil, appErrors.Clone(appErrors.ErrGoalClosed, "goal is already closed")
	}
	expected := req.ExpectedVersion
	if expected == 0 {
		expected = goal.Version
	}
	closedAt := req.Date.UTC()
	if err := s.repo.Close(ctx, goalID, outcome, closedAt, expected); err != nil {
		if errors.Is(err, appErrors.ErrConcurrentModification) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification,
				"goal was modified by another writer; reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close goal")
	}
	goal.Status = outcome
	goal.ClosedAt = &closedAt
	goal.Version = expected + 1
	return goal, nil
}

// DeriveStatus classifies a goal's trajectory. With two or more points the
// rule is trend-based over the last trendWindow points; with fewer it falls
// back to a threshold on the scalar progress. The two paths agree at the
// two-point boundary: a flat pair at or above 80% of target is on-track
// either way.
func (s *GoalService) DeriveStatus(goal *models.Goal, points []models.ProgressDataPoint) models.StatusBand {
	values := make([]float64, 0, len(points))
	for i := range points {
		v, err := normalizePoint(goal, &points[i])
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	return classifyTrend(values, float64(goal.CurrentProgress), normalizedTarget(goal), s.trendWindow)
}

// AggregateByDomain is a read-only projection over the current status of
// every matching goal, computed with the same classification rule as
// DeriveStatus per goal.
func (s *GoalService) AggregateByDomain(ctx context.Context, studentIDs []string, area string) (*models.DomainAggregate, error) {
	if area != "" && !models.GoalArea(area).Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown goal area")
	}
	goals, err := s.repo.ListForStudents(ctx, studentIDs, area)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load goals")
	}
	agg := &models.DomainAggregate{Area: models.GoalArea(area)}
	if len(goals) == 0 {
		return agg, nil
	}
	ids := make([]string, len(goals))
	for i, g := range goals {
		ids[i] = g.ID
	}
	pointsByGoal, err := s.repo.ListPointsForGoals(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress points")
	}

	var progressSum float64
	for i := range goals {
		goal := &goals[i].Goal
		agg.GoalCount++
		progressSum += float64(goal.CurrentProgress)
		switch s.DeriveStatus(goal, pointsByGoal[goal.ID]) {
		case models.BandOnTrack:
			agg.OnTrackCount++
		case models.BandNeedsAttention:
			agg.NeedsAttentionCount++
		case models.BandAtRisk:
			agg.AtRiskCount++
		}
	}
	agg.AvgProgress = math.Round(progressSum/float64(agg.GoalCount)*100) / 100
	return agg, nil
}

// normalizePoint maps a measured value onto the 0-100 progress scale.
// Accuracy points carry their own scale (correct/total or a raw percent);
// other measurement types scale against the goal's declared target, with
// the ratio inverted for goals where a lower measure is better (latency,
// problem-behavior frequency).
func normalizePoint(goal *models.Goal, point *models.ProgressDataPoint) (float64, error) {
	switch goal.MeasurementType {
	case models.MeasureAccuracy:
		if point.Correct != nil || point.Total != nil {
			if point.Correct == nil || point.Total == nil {
				return 0, appErrors.Clone(appErrors.ErrInvalidMeasurement, "accuracy points need both correct and total")
			}
			if *point.Total <= 0 {
				return 0, appErrors.Clone(appErrors.ErrInvalidMeasurement, "total trials must be positive")
			}
			if *point.Correct < 0 || *point.Correct > *point.Total {
				return 0, appErrors.Clone(appErrors.ErrInvalidMeasurement, "correct must be between 0 and total")
			}
			return float64(*point.Correct) / float64(*point.Total) * 100, nil
		}
		if point.Value < 0 || point.Value > 100 {
			return 0, appErrors.Clone(appErrors.ErrInvalidMeasurement, "accuracy percent must be between 0 and 100")
		}
		return point.Value, nil
	default:
		if point.Value < 0 {
			return 0, appErrors.Clone(appErrors.ErrInvalidMeasurement, "measured value cannot be negative")
		}
		if goal.Target <= 0 {
			return 0, appErrors.Clone(appErrors.ErrInvalidMeasurement, "goal target must be positive to scale this measurement")
		}
		ratio := point.Value / goal.Target
		if !goal.HigherIsBetter {
			ratio = 2 - ratio
		}
		return clamp(ratio*100, 0, 100), nil
	}
}

// normalizedTarget is the target expressed on the same scale as normalized
// point values. Accuracy goals state their target as a percent already;
// everything else normalizes the target itself to 100.
func normalizedTarget(goal *models.Goal) float64 {
	if goal.MeasurementType == models.MeasureAccuracy {
		return goal.Target
	}
	return 100
}

// classifyTrend is the canonical classification rule. delta is measured
// between the first and last point of the trend window.
func classifyTrend(values []float64, scalar, target float64, window int) models.StatusBand {
	if len(values) < 2 {
		p := scalar
		if len(values) == 1 {
			p = values[0]
		}
		switch {
		case p >= 0.8*target:
			return models.BandOnTrack
		case p >= 0.5*target:
			return models.BandNeedsAttention
		default:
			return models.BandAtRisk
		}
	}
	w := values
	if len(w) > window {
		w = w[len(w)-window:]
	}
	latest := w[len(w)-1]
	delta := latest - w[0]
	switch {
	case delta > 10:
		return models.BandOnTrack
	case delta >= 0:
		if latest < 0.8*target {
			return models.BandNeedsAttention
		}
		return models.BandOnTrack
	default:
		return models.BandAtRisk
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
