package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type dashboardStudentStub struct {
	count int
	ids   []string
}

func (s *dashboardStudentStub) Count(_ context.Context, _ string) (int, error) {
	return s.count, nil
}

func (s *dashboardStudentStub) ListIDs(_ context.Context, _ string) ([]string, error) {
	return s.ids, nil
}

type dashboardBehaviorStub struct {
	count int
}

func (s *dashboardBehaviorStub) CountSince(_ context.Context, _ time.Time) (int, error) {
	return s.count, nil
}

type dashboardAggregatorStub struct{}

func (s *dashboardAggregatorStub) AggregateByDomain(_ context.Context, _ []string, area string) (*models.DomainAggregate, error) {
	agg := &models.DomainAggregate{Area: models.GoalArea(area)}
	if area == string(models.AreaReading) {
		agg.GoalCount = 3
		agg.OnTrackCount = 2
		agg.AtRiskCount = 1
	}
	return agg, nil
}

type dashboardSweeperStub struct{}

func (s *dashboardSweeperStub) Sweep(_ context.Context, _ time.Time) ([]StudentCompliance, error) {
	return nil, nil
}

func newDashboardFixture(students *dashboardStudentStub) (*DashboardService, *memoryCacheRepo) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := NewDashboardService(DashboardServiceParams{
		Students:   students,
		Behavior:   &dashboardBehaviorStub{count: 4},
		Goals:      &dashboardAggregatorStub{},
		Compliance: &dashboardSweeperStub{},
		Cache:      cache,
	})
	return svc, repo
}

func TestCaseloadOverviewCachesResult(t *testing.T) {
	students := &dashboardStudentStub{count: 12, ids: []string{"s1", "s2"}}
	svc, repo := newDashboardFixture(students)
	ctx := context.Background()

	first, err := svc.CaseloadOverview(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 12, first.ActiveStudents)
	assert.Equal(t, 3, first.TotalGoals)
	require.Contains(t, repo.entries, "dashboard:caseload:org-1")

	// Second read serves the cached copy even though the data moved.
	students.count = 99
	second, err := svc.CaseloadOverview(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 12, second.ActiveStudents)
}

func TestInvalidateCaseloadDropsCachedKey(t *testing.T) {
	students := &dashboardStudentStub{count: 12, ids: []string{"s1"}}
	svc, repo := newDashboardFixture(students)
	ctx := context.Background()

	_, err := svc.CaseloadOverview(ctx, "org-1")
	require.NoError(t, err)
	require.Contains(t, repo.entries, "dashboard:caseload:org-1")

	students.count = 15
	svc.InvalidateCaseload(ctx)
	assert.NotContains(t, repo.entries, "dashboard:caseload:org-1")

	fresh, err := svc.CaseloadOverview(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 15, fresh.ActiveStudents)
}
