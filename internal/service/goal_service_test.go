package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

type goalRepoStub struct {
	goals  map[string]*models.Goal
	points map[string][]models.ProgressDataPoint
	err    error
}

func newGoalRepoStub() *goalRepoStub {
	return &goalRepoStub{
		goals:  map[string]*models.Goal{},
		points: map[string][]models.ProgressDataPoint{},
	}
}

func (s *goalRepoStub) FindByID(ctx context.Context, id string) (*models.Goal, error) {
	if s.err != nil {
		return nil, s.err
	}
	goal, ok := s.goals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *goal
	return &copied, nil
}

func (s *goalRepoStub) List(ctx context.Context, filter models.GoalFilter) ([]models.Goal, int, error) {
	var out []models.Goal
	for _, g := range s.goals {
		out = append(out, *g)
	}
	return out, len(out), s.err
}

func (s *goalRepoStub) ListForStudents(ctx context.Context, studentIDs []string, area string) ([]models.GoalWithStudent, error) {
	var out []models.GoalWithStudent
	for _, g := range s.goals {
		if area != "" && string(g.Area) != area {
			continue
		}
		out = append(out, models.GoalWithStudent{Goal: *g, StudentID: "student-1"})
	}
	return out, s.err
}

func (s *goalRepoStub) Create(ctx context.Context, goal *models.Goal) error {
	if s.err != nil {
		return s.err
	}
	if goal.ID == "" {
		goal.ID = "goal-" + time.Now().Format("150405.000000000")
	}
	goal.Status = models.GoalStatusActive
	goal.Version = 1
	s.goals[goal.ID] = goal
	return nil
}

func (s *goalRepoStub) ListPoints(ctx context.Context, goalID string) ([]models.ProgressDataPoint, error) {
	return s.points[goalID], s.err
}

func (s *goalRepoStub) ListPointsForGoals(ctx context.Context, goalIDs []string) (map[string][]models.ProgressDataPoint, error) {
	out := map[string][]models.ProgressDataPoint{}
	for _, id := range goalIDs {
		out[id] = s.points[id]
	}
	return out, s.err
}

func (s *goalRepoStub) AppendPoint(ctx context.Context, goal *models.Goal, point *models.ProgressDataPoint, expectedVersion int) error {
	if s.err != nil {
		return s.err
	}
	stored := s.goals[goal.ID]
	if stored.Version != expectedVersion || stored.Status != models.GoalStatusActive {
		return appErrors.ErrConcurrentModification
	}
	stored.CurrentProgress = goal.CurrentProgress
	stored.Version++
	goal.Version = stored.Version
	s.points[goal.ID] = append(s.points[goal.ID], *point)
	return nil
}

func (s *goalRepoStub) Close(ctx context.Context, goalID string, outcome models.GoalStatus, closedAt time.Time, expectedVersion int) error {
	if s.err != nil {
		return s.err
	}
	stored := s.goals[goalID]
	if stored.Version != expectedVersion || stored.Status != models.GoalStatusActive {
		return appErrors.ErrConcurrentModification
	}
	stored.Status = outcome
	stored.ClosedAt = &closedAt
	stored.Version++
	return nil
}

type iepRepoStub struct {
	ieps map[string]*models.IEP
	err  error
}

func (s *iepRepoStub) FindByID(ctx context.Context, id string) (*models.IEP, error) {
	if s.err != nil {
		return nil, s.err
	}
	iep, ok := s.ieps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return iep, nil
}

func newTestGoalService(repo *goalRepoStub) *GoalService {
	ieps := &iepRepoStub{ieps: map[string]*models.IEP{
		"iep-1": {ID: "iep-1", StudentID: "student-1", Status: models.IEPStatusActive},
	}}
	return NewGoalService(repo, ieps, nil, nil, 4)
}

func accuracyGoal(id string, target float64, progress int) *models.Goal {
	return &models.Goal{
		ID:              id,
		IEPID:           "iep-1",
		Area:            models.AreaReading,
		Target:          target,
		HigherIsBetter:  true,
		MeasurementType: models.MeasureAccuracy,
		CurrentProgress: progress,
		Status:          models.GoalStatusActive,
		Version:         1,
	}
}

func points(goalID string, values ...float64) []models.ProgressDataPoint {
	out := make([]models.ProgressDataPoint, len(values))
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		out[i] = models.ProgressDataPoint{
			GoalID:          goalID,
			CollectionDate:  base.AddDate(0, 0, i*7),
			MeasurementType: models.MeasureAccuracy,
			Value:           v,
		}
	}
	return out
}

func TestDeriveStatusScalarThresholds(t *testing.T) {
	svc := newTestGoalService(newGoalRepoStub())
	cases := []struct {
		name     string
		progress int
		want     models.StatusBand
	}{
		{"at 80 percent of target", 64, models.BandOnTrack},
		{"above 80 percent of target", 70, models.BandOnTrack},
		{"at 50 percent of target", 40, models.BandNeedsAttention},
		{"between thresholds", 55, models.BandNeedsAttention},
		{"below 50 percent of target", 39, models.BandAtRisk},
		{"zero progress", 0, models.BandAtRisk},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			goal := accuracyGoal("g", 80, tc.progress)
			assert.Equal(t, tc.want, svc.DeriveStatus(goal, nil))
		})
	}
}

func TestDeriveStatusSinglePointUsesScalarRule(t *testing.T) {
	svc := newTestGoalService(newGoalRepoStub())
	goal := accuracyGoal("g", 80, 0)
	assert.Equal(t, models.BandOnTrack, svc.DeriveStatus(goal, points("g", 64)))
	assert.Equal(t, models.BandNeedsAttention, svc.DeriveStatus(goal, points("g", 45)))
	assert.Equal(t, models.BandAtRisk, svc.DeriveStatus(goal, points("g", 30)))
}

func TestDeriveStatusTwoPointsSteepGainIsOnTrack(t *testing.T) {
	svc := newTestGoalService(newGoalRepoStub())
	goal := accuracyGoal("g", 80, 0)
	// Absolute level is low, but delta > 10 wins.
	assert.Equal(t, models.BandOnTrack, svc.DeriveStatus(goal, points("g", 10, 21)))
}

func TestDeriveStatusTrendRules(t *testing.T) {
	svc := newTestGoalService(newGoalRepoStub())
	goal := accuracyGoal("g", 80, 0)

	// Worked trajectory: target 80, points 45 -> 52 -> 58, delta 13.
	assert.Equal(t, models.BandOnTrack, svc.DeriveStatus(goal, points("g", 45, 52, 58)))

	// Flat below 80% of target.
	assert.Equal(t, models.BandNeedsAttention, svc.DeriveStatus(goal, points("g", 50, 52, 55)))

	// Flat at or above 80% of target.
	assert.Equal(t, models.BandOnTrack, svc.DeriveStatus(goal, points("g", 64, 66, 70)))

	// Declining.
	assert.Equal(t, models.BandAtRisk, svc.DeriveStatus(goal, points("g", 60, 55, 50)))
}

func TestDeriveStatusTrendWindowLimitsLookback(t *testing.T) {
	svc := newTestGoalService(newGoalRepoStub())
	goal := accuracyGoal("g", 80, 0)
	// Early collapse is outside the 4-point window; the recent window rises
	// from 40 to 56.
	assert.Equal(t, models.BandOnTrack, svc.DeriveStatus(goal, points("g", 70, 20, 40, 45, 50, 56)))
}

func TestDeriveStatusBoundaryAgreementAtTwoPoints(t *testing.T) {
	svc := newTestGoalService(newGoalRepoStub())
	goal := accuracyGoal("g", 80, 0)
	// A flat pair at 80% of target is on-track under the trend rule, just
	// as the single point is under the scalar rule.
	assert.Equal(t, models.BandOnTrack, svc.DeriveStatus(goal, points("g", 64)))
	assert.Equal(t, models.BandOnTrack, svc.DeriveStatus(goal, points("g", 64, 64)))
	// Likewise a flat pair below half target stays in a degraded band.
	assert.Equal(t, models.BandAtRisk, svc.DeriveStatus(goal, points("g", 30)))
	assert.Equal(t, models.BandNeedsAttention, svc.DeriveStatus(goal, points("g", 30, 30)))
}

func TestRecordProgressAppendsAndRecomputes(t *testing.T) {
	repo := newGoalRepoStub()
	repo.goals["goal-1"] = accuracyGoal("goal-1", 80, 45)
	svc := newTestGoalService(repo)

	correct, total := 13, 20
	detail, err := svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
		CollectionDate:  time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		MeasurementType: "accuracy",
		Correct:         &correct,
		Total:           &total,
		PromptLevel:     "independent",
	})
	require.NoError(t, err)
	assert.Equal(t, 65, detail.Goal.CurrentProgress)
	assert.Equal(t, 2, detail.Goal.Version)
	require.Len(t, detail.Points, 1)
}

func TestRecordProgressRejectsMeasurementMismatch(t *testing.T) {
	repo := newGoalRepoStub()
	repo.goals["goal-1"] = accuracyGoal("goal-1", 80, 45)
	svc := newTestGoalService(repo)

	_, err := svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
		CollectionDate:  time.Now(),
		MeasurementType: "duration",
		Value:           120,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidMeasurement)
	assert.Empty(t, repo.points["goal-1"])
}

func TestRecordProgressOnClosedGoalRejectsWithoutMutation(t *testing.T) {
	repo := newGoalRepoStub()
	goal := accuracyGoal("goal-1", 80, 72)
	goal.Status = models.GoalStatusMastered
	repo.goals["goal-1"] = goal
	svc := newTestGoalService(repo)

	for i := 0; i < 2; i++ {
		_, err := svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
			CollectionDate:  time.Now(),
			MeasurementType: "accuracy",
			Value:           80,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, appErrors.ErrGoalClosed)
	}
	assert.Equal(t, 72, repo.goals["goal-1"].CurrentProgress)
	assert.Equal(t, 1, repo.goals["goal-1"].Version)
	assert.Empty(t, repo.points["goal-1"])
}

func TestRecordProgressVersionConflict(t *testing.T) {
	repo := newGoalRepoStub()
	goal := accuracyGoal("goal-1", 80, 45)
	goal.Version = 5
	repo.goals["goal-1"] = goal
	svc := newTestGoalService(repo)

	_, err := svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
		CollectionDate:  time.Now(),
		MeasurementType: "accuracy",
		Value:           50,
		ExpectedVersion: 3,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConcurrentModification)
}

func TestRecordProgressScalesAgainstTargetForDuration(t *testing.T) {
	repo := newGoalRepoStub()
	goal := &models.Goal{
		ID:              "goal-1",
		IEPID:           "iep-1",
		Area:            models.AreaDailyLiving,
		Target:          300,
		HigherIsBetter:  true,
		MeasurementType: models.MeasureDuration,
		Status:          models.GoalStatusActive,
		Version:         1,
	}
	repo.goals["goal-1"] = goal
	svc := newTestGoalService(repo)

	detail, err := svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
		CollectionDate:  time.Now(),
		MeasurementType: "duration",
		Value:           150,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, detail.Goal.CurrentProgress)

	// A value past the target clamps at 100.
	detail, err = svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
		CollectionDate:  time.Now(),
		MeasurementType: "duration",
		Value:           450,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, detail.Goal.CurrentProgress)
}

func TestRecordProgressInvertsWhenLowerIsBetter(t *testing.T) {
	repo := newGoalRepoStub()
	goal := &models.Goal{
		ID:              "goal-1",
		IEPID:           "iep-1",
		Area:            models.AreaBehavioral,
		Target:          5, // target: at most 5 incidents per week
		HigherIsBetter:  false,
		MeasurementType: models.MeasureFrequency,
		Status:          models.GoalStatusActive,
		Version:         1,
	}
	repo.goals["goal-1"] = goal
	svc := newTestGoalService(repo)

	// Twice the target is the floor.
	detail, err := svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
		CollectionDate:  time.Now(),
		MeasurementType: "frequency",
		Value:           10,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, detail.Goal.CurrentProgress)

	// Meeting the target exactly is full progress on the inverted scale.
	detail, err = svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
		CollectionDate:  time.Now(),
		MeasurementType: "frequency",
		Value:           5,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, detail.Goal.CurrentProgress)
}

func TestRecordProgressRejectsNegativeValues(t *testing.T) {
	repo := newGoalRepoStub()
	goal := &models.Goal{
		ID:              "goal-1",
		IEPID:           "iep-1",
		Target:          300,
		HigherIsBetter:  true,
		MeasurementType: models.MeasureDuration,
		Status:          models.GoalStatusActive,
		Version:         1,
	}
	repo.goals["goal-1"] = goal
	svc := newTestGoalService(repo)

	_, err := svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
		CollectionDate:  time.Now(),
		MeasurementType: "duration",
		Value:           -1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidMeasurement)
}

func TestRecordProgressRegressionIsAccepted(t *testing.T) {
	repo := newGoalRepoStub()
	repo.goals["goal-1"] = accuracyGoal("goal-1", 80, 60)
	svc := newTestGoalService(repo)

	for _, v := range []float64{60, 48} {
		_, err := svc.RecordProgress(context.Background(), "goal-1", RecordProgressRequest{
			CollectionDate:  time.Now(),
			MeasurementType: "accuracy",
			Value:           v,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 48, repo.goals["goal-1"].CurrentProgress)
	assert.Len(t, repo.points["goal-1"], 2)
}

func TestCloseGoalTerminal(t *testing.T) {
	repo := newGoalRepoStub()
	repo.goals["goal-1"] = accuracyGoal("goal-1", 80, 85)
	svc := newTestGoalService(repo)

	goal, err := svc.Close(context.Background(), "goal-1", CloseGoalRequest{
		Outcome: "mastered",
		Date:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusMastered, goal.Status)
	require.NotNil(t, goal.ClosedAt)

	_, err = svc.Close(context.Background(), "goal-1", CloseGoalRequest{Outcome: "discontinued", Date: time.Now()})
	assert.ErrorIs(t, err, appErrors.ErrGoalClosed)
}

func TestCloseGoalRejectsUnknownOutcome(t *testing.T) {
	repo := newGoalRepoStub()
	repo.goals["goal-1"] = accuracyGoal("goal-1", 80, 85)
	svc := newTestGoalService(repo)

	_, err := svc.Close(context.Background(), "goal-1", CloseGoalRequest{Outcome: "abandoned", Date: time.Now()})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAggregateByDomainMatchesPerGoalDerivation(t *testing.T) {
	repo := newGoalRepoStub()
	onTrack := accuracyGoal("g1", 80, 70)
	needsAttention := accuracyGoal("g2", 80, 50)
	atRisk := accuracyGoal("g3", 80, 20)
	repo.goals["g1"] = onTrack
	repo.goals["g2"] = needsAttention
	repo.goals["g3"] = atRisk
	repo.points["g1"] = points("g1", 45, 52, 58)
	repo.points["g2"] = points("g2", 50, 52, 55)
	repo.points["g3"] = points("g3", 60, 55, 50)
	svc := newTestGoalService(repo)

	agg, err := svc.AggregateByDomain(context.Background(), []string{"student-1"}, "academic-reading")
	require.NoError(t, err)
	assert.Equal(t, 3, agg.GoalCount)
	assert.Equal(t, 1, agg.OnTrackCount)
	assert.Equal(t, 1, agg.NeedsAttentionCount)
	assert.Equal(t, 1, agg.AtRiskCount)
	assert.InDelta(t, (70.0+50.0+20.0)/3, agg.AvgProgress, 0.01)
}

func TestAggregateByDomainEmpty(t *testing.T) {
	svc := newTestGoalService(newGoalRepoStub())
	agg, err := svc.AggregateByDomain(context.Background(), []string{"student-1"}, "")
	require.NoError(t, err)
	assert.Zero(t, agg.GoalCount)
	assert.Zero(t, agg.AvgProgress)
}

func TestCreateGoalValidatesAreaAndMeasurement(t *testing.T) {
	repo := newGoalRepoStub()
	svc := newTestGoalService(repo)

	_, err := svc.Create(context.Background(), CreateGoalRequest{
		IEPID: "iep-1", Area: "basket-weaving", Statement: "s", TargetCriteria: "c",
		Target: 80, MeasurementType: "accuracy",
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), CreateGoalRequest{
		IEPID: "iep-1", Area: "academic-reading", Statement: "s", TargetCriteria: "c",
		Target: 80, MeasurementType: "guesswork",
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	goal, err := svc.Create(context.Background(), CreateGoalRequest{
		IEPID: "iep-1", Area: "academic-reading", Statement: "Will decode CVC words",
		TargetCriteria: "80% over 3 sessions", Target: 80, MeasurementType: "accuracy",
	})
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusActive, goal.Status)
}
