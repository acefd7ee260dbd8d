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

type behaviorRepoStub struct {
	events  []models.BehaviorEvent
	summary *models.BehaviorSummary
	err     error
}

func (s *behaviorRepoStub) List(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error) {
	return s.events, len(s.events), s.err
}

func (s *behaviorRepoStub) FindByID(ctx context.Context, id string) (*models.BehaviorEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.events {
		if s.events[i].ID == id {
			return &s.events[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *behaviorRepoStub) Create(ctx context.Context, event *models.BehaviorEvent) error {
	if s.err != nil {
		return s.err
	}
	event.ID = "event-1"
	event.CreatedAt = time.Now().UTC()
	s.events = append(s.events, *event)
	return nil
}

func (s *behaviorRepoStub) AppendFollowUp(ctx context.Context, id, note string) error {
	if s.err != nil {
		return s.err
	}
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].FollowUpNotes = &note
			s.events[i].FollowUpNeeded = false
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *behaviorRepoStub) Summary(ctx context.Context, studentID string, from, to time.Time) (*models.BehaviorSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.summary != nil {
		return s.summary, nil
	}
	return &models.BehaviorSummary{StudentID: studentID, CountBySeverity: map[models.Severity]int{}}, nil
}

type behaviorGoalRepoStub struct {
	goals map[string]*models.Goal
}

func (s *behaviorGoalRepoStub) FindByID(ctx context.Context, id string) (*models.Goal, error) {
	goal, ok := s.goals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return goal, nil
}

func newTestBehaviorService(repo *behaviorRepoStub) *BehaviorService {
	goals := &behaviorGoalRepoStub{goals: map[string]*models.Goal{
		"behavioral-goal": {ID: "behavioral-goal", Area: models.AreaBehavioral},
		"reading-goal":    {ID: "reading-goal", Area: models.AreaReading},
	}}
	return NewBehaviorService(repo, goals, nil, nil)
}

func validEventRequest() RecordEventRequest {
	return RecordEventRequest{
		StudentID:   "student-1",
		OccurredAt:  time.Date(2026, 3, 10, 9, 45, 0, 0, time.UTC),
		Antecedent:  "transition from recess",
		Behavior:    "refused to enter classroom",
		Consequence: "given 2-minute break, then complied",
		Severity:    "low",
		CreatedBy:   "user-1",
	}
}

func TestRecordEventAccepted(t *testing.T) {
	repo := &behaviorRepoStub{}
	svc := newTestBehaviorService(repo)

	event, err := svc.RecordEvent(context.Background(), validEventRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.SeverityLow, event.Severity)
}

func TestRecordEventDurationBoundary(t *testing.T) {
	repo := &behaviorRepoStub{}
	svc := newTestBehaviorService(repo)

	// Zero duration with high severity is valid: the axes are independent.
	req := validEventRequest()
	req.Severity = "high"
	req.DurationSeconds = 0
	_, err := svc.RecordEvent(context.Background(), req)
	require.NoError(t, err)

	// Negative duration is not.
	req = validEventRequest()
	req.DurationSeconds = -1
	_, err = svc.RecordEvent(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidEvent)
}

func TestRecordEventRejectsUnknownSeverity(t *testing.T) {
	svc := newTestBehaviorService(&behaviorRepoStub{})
	req := validEventRequest()
	req.Severity = "catastrophic"
	_, err := svc.RecordEvent(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrInvalidEvent)
}

func TestRecordEventEffectivenessRange(t *testing.T) {
	svc := newTestBehaviorService(&behaviorRepoStub{})
	for _, rating := range []int{0, 6} {
		r := rating
		req := validEventRequest()
		req.EffectivenessRating = &r
		_, err := svc.RecordEvent(context.Background(), req)
		assert.ErrorIs(t, err, appErrors.ErrInvalidEvent)
	}
	r := 3
	req := validEventRequest()
	req.EffectivenessRating = &r
	_, err := svc.RecordEvent(context.Background(), req)
	assert.NoError(t, err)
}

func TestRecordEventGoalLinkMustBeBehavioral(t *testing.T) {
	svc := newTestBehaviorService(&behaviorRepoStub{})

	goalID := "reading-goal"
	req := validEventRequest()
	req.GoalID = &goalID
	_, err := svc.RecordEvent(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidEvent)

	goalID = "behavioral-goal"
	req.GoalID = &goalID
	_, err = svc.RecordEvent(context.Background(), req)
	assert.NoError(t, err)

	goalID = "missing-goal"
	req.GoalID = &goalID
	_, err = svc.RecordEvent(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrInvalidEvent)
}

func TestAppendFollowUp(t *testing.T) {
	repo := &behaviorRepoStub{}
	svc := newTestBehaviorService(repo)
	event, err := svc.RecordEvent(context.Background(), validEventRequest())
	require.NoError(t, err)

	require.NoError(t, svc.AppendFollowUp(context.Background(), event.ID, "parent contacted"))
	stored, err := svc.Get(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FollowUpNotes)
	assert.Equal(t, "parent contacted", *stored.FollowUpNotes)

	err = svc.AppendFollowUp(context.Background(), "missing", "note")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	err = svc.AppendFollowUp(context.Background(), event.ID, "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSummarizeValidatesRange(t *testing.T) {
	svc := newTestBehaviorService(&behaviorRepoStub{})
	_, err := svc.Summarize(context.Background(), SummaryRequest{
		StudentID: "student-1",
		DateFrom:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSummarizePassesThrough(t *testing.T) {
	avg := 3.5
	repo := &behaviorRepoStub{summary: &models.BehaviorSummary{
		StudentID:        "student-1",
		TotalEvents:      5,
		CountBySeverity:  map[models.Severity]int{models.SeverityLow: 4, models.SeverityHigh: 1},
		TopAntecedents:   []models.CountedItem{{Value: "transition from recess", Count: 3}},
		AvgEffectiveness: &avg,
	}}
	svc := newTestBehaviorService(repo)

	summary, err := svc.Summarize(context.Background(), SummaryRequest{
		StudentID: "student-1",
		DateFrom:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalEvents)
	assert.Equal(t, 4, summary.CountBySeverity[models.SeverityLow])
}
