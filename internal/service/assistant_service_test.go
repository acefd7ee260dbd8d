package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accompli/iep-api/internal/models"
	"github.com/accompli/iep-api/pkg/config"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

type assistantStudentStub struct {
	students map[string]*models.StudentDetail
}

func (s *assistantStudentStub) FindByID(_ context.Context, id string) (*models.StudentDetail, error) {
	detail, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return detail, nil
}

type assistantIEPStub struct {
	iep *models.IEP
}

func (s *assistantIEPStub) FindActiveByStudent(_ context.Context, _ string) (*models.IEP, error) {
	if s.iep == nil {
		return nil, sql.ErrNoRows
	}
	return s.iep, nil
}

type assistantGoalStub struct {
	goals []models.Goal
}

func (s *assistantGoalStub) List(_ context.Context, _ models.GoalFilter) ([]models.Goal, int, error) {
	return s.goals, len(s.goals), nil
}

func (s *assistantGoalStub) ListPointsForGoals(_ context.Context, _ []string) (map[string][]models.ProgressDataPoint, error) {
	return map[string][]models.ProgressDataPoint{}, nil
}

type assistantBehaviorStub struct {
	summary *models.BehaviorSummary
}

func (s *assistantBehaviorStub) Summary(_ context.Context, studentID string, _, _ time.Time) (*models.BehaviorSummary, error) {
	if s.summary == nil {
		return &models.BehaviorSummary{StudentID: studentID}, nil
	}
	return s.summary, nil
}

func assistantFixtures() (*assistantStudentStub, *assistantIEPStub, *assistantGoalStub, *assistantBehaviorStub) {
	students := &assistantStudentStub{students: map[string]*models.StudentDetail{
		"student-1": {Student: models.Student{
			ID:                 "student-1",
			GradeLevel:         "3",
			DisabilityCategory: models.DisabilitySpecificLearningDisability,
		}},
	}}
	ieps := &assistantIEPStub{iep: &models.IEP{
		ID:             "iep-1",
		StudentID:      "student-1",
		Status:         models.IEPStatusActive,
		PresentLevels:  "Reads at DRA 16.",
		Accommodations: []string{"Extended time"},
	}}
	goals := &assistantGoalStub{goals: []models.Goal{{
		ID:        "goal-1",
		Area:      models.AreaReading,
		Statement: "Read with 95% accuracy",
		Target:    95,
		Status:    models.GoalStatusActive,
	}}}
	return students, ieps, goals, &assistantBehaviorStub{}
}

func TestAssistantSuggestGoal(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"By June, given a 3rd grade passage..."}}]}`))
	}))
	defer upstream.Close()

	students, ieps, goals, behavior := assistantFixtures()
	svc := NewAssistantService(students, ieps, goals, behavior, nil, config.AssistantConfig{
		Enabled: true,
		BaseURL: upstream.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
	})

	resp, err := svc.SuggestGoal(context.Background(), AssistantRequest{
		StudentID: "student-1",
		Area:      models.AreaReading,
		Prompt:    "focus on fluency",
	})
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	assert.Equal(t, "By June, given a 3rd grade passage...", resp.Suggestion)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestAssistantFallsBackWhenUpstreamFails(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	students, ieps, goals, behavior := assistantFixtures()
	svc := NewAssistantService(students, ieps, goals, behavior, nil, config.AssistantConfig{
		Enabled: true,
		BaseURL: upstream.URL,
	})

	resp, err := svc.SuggestGoal(context.Background(), AssistantRequest{
		StudentID: "student-1",
		Area:      models.AreaReading,
	})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.NotEmpty(t, resp.Suggestion)
}

func TestAssistantFallsBackWhenDisabled(t *testing.T) {
	students, ieps, goals, behavior := assistantFixtures()
	svc := NewAssistantService(students, ieps, goals, behavior, nil, config.AssistantConfig{Enabled: false})

	resp, err := svc.SuggestGoal(context.Background(), AssistantRequest{
		StudentID: "student-1",
		Area:      models.AreaBehavioral,
	})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
}

func TestAssistantUnknownStudent(t *testing.T) {
	students, ieps, goals, behavior := assistantFixtures()
	svc := NewAssistantService(students, ieps, goals, behavior, nil, config.AssistantConfig{Enabled: false})

	_, err := svc.SuggestGoal(context.Background(), AssistantRequest{
		StudentID: "missing",
		Area:      models.AreaReading,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAssistantRejectsUnknownArea(t *testing.T) {
	students, ieps, goals, behavior := assistantFixtures()
	svc := NewAssistantService(students, ieps, goals, behavior, nil, config.AssistantConfig{Enabled: false})

	_, err := svc.SuggestGoal(context.Background(), AssistantRequest{
		StudentID: "student-1",
		Area:      "underwater-basket-weaving",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
