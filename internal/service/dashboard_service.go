package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/accompli/iep-api/internal/dto"
	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

const caseloadCacheKeyPrefix = "dashboard:caseload"

type dashboardStudentRepository interface {
	Count(ctx context.Context, organizationID string) (int, error)
	ListIDs(ctx context.Context, organizationID string) ([]string, error)
}

type dashboardBehaviorRepository interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
}

type domainAggregator interface {
	AggregateByDomain(ctx context.Context, studentIDs []string, area string) (*models.DomainAggregate, error)
}

type complianceSweeper interface {
	Sweep(ctx context.Context, today time.Time) ([]StudentCompliance, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL           time.Duration
	RecentBehaviorDays int
}

// DashboardService composes the caseload overview from the goal ledger,
// behavior log and compliance clock. Results are cached; writers invalidate
// the dashboard pattern after mutations.
type DashboardService struct {
	students   dashboardStudentRepository
	behavior   dashboardBehaviorRepository
	goals      domainAggregator
	compliance complianceSweeper
	cache      *CacheService
	logger     *zap.Logger
	now        func() time.Time
	cfg        DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Students   dashboardStudentRepository
	Behavior   dashboardBehaviorRepository
	Goals      domainAggregator
	Compliance complianceSweeper
	Cache      *CacheService
	Logger     *zap.Logger
	Now        func() time.Time
	Config     DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.RecentBehaviorDays <= 0 {
		cfg.RecentBehaviorDays = 30
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &DashboardService{
		students:   params.Students,
		behavior:   params.Behavior,
		goals:      params.Goals,
		compliance: params.Compliance,
		cache:      params.Cache,
		logger:     logger,
		now:        now,
		cfg:        cfg,
	}
}

// CaseloadOverview returns the composed dashboard for an organization.
func (s *DashboardService) CaseloadOverview(ctx context.Context, organizationID string) (*dto.CaseloadOverview, error) {
	key := fmt.Sprintf("%s:%s", caseloadCacheKeyPrefix, organizationID)
	var cached dto.CaseloadOverview
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	today := s.now().UTC()
	overview := &dto.CaseloadOverview{GeneratedAt: today}

	count, err := s.students.Count(ctx, organizationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	overview.ActiveStudents = count

	studentIDs, err := s.students.ListIDs(ctx, organizationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	for _, area := range models.GoalAreas {
		agg, err := s.goals.AggregateByDomain(ctx, studentIDs, string(area))
		if err != nil {
			return nil, err
		}
		if agg.GoalCount == 0 {
			continue
		}
		overview.GoalsByArea = append(overview.GoalsByArea, *agg)
		overview.TotalGoals += agg.GoalCount
		overview.OnTrackCount += agg.OnTrackCount
		overview.NeedsAttentionCount += agg.NeedsAttentionCount
		overview.AtRiskCount += agg.AtRiskCount
	}

	since := today.AddDate(0, 0, -s.cfg.RecentBehaviorDays)
	recent, err := s.behavior.CountSince(ctx, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count behavior events")
	}
	overview.RecentBehaviorCount = recent

	flagged, err := s.compliance.Sweep(ctx, today)
	if err != nil {
		return nil, err
	}
	for _, f := range flagged {
		overview.ComplianceAlerts = append(overview.ComplianceAlerts, dto.ComplianceAlert{
			StudentID:   f.StudentID,
			IEPID:       f.IEPID,
			Obligations: f.Obligations,
		})
	}

	if err := s.cache.Set(ctx, key, overview, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache caseload overview", zap.Error(err))
	}
	return overview, nil
}

// InvalidateCaseload drops cached dashboards after a mutation.
func (s *DashboardService) InvalidateCaseload(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, caseloadCacheKeyPrefix+":*"); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
