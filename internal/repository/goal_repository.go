package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

// GoalRepository manages persistence for goals and their progress history.
type GoalRepository struct {
	db *sqlx.DB
}

// NewGoalRepository constructs a GoalRepository.
func NewGoalRepository(db *sqlx.DB) *GoalRepository {
	return &GoalRepository{db: db}
}

const goalColumns = `id, iep_id, area, statement, baseline, target_criteria, target, higher_is_better,
evaluation_method, evaluation_schedule, measurement_type, current_progress, status, closed_at, version, created_at, updated_at`

// FindByID fetches a goal by ID.
func (r *GoalRepository) FindByID(ctx context.Context, id string) (*models.Goal, error) {
	query := fmt.Sprintf("SELECT %s FROM goals WHERE id = $1", goalColumns)
	var goal models.Goal
	if err := r.db.GetContext(ctx, &goal, query, id); err != nil {
		return nil, err
	}
	return &goal, nil
}

// List returns goals matching the provided filters.
func (r *GoalRepository) List(ctx context.Context, filter models.GoalFilter) ([]models.Goal, int, error) {
	base := "FROM goals g"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.IEPID != "" {
		where = append(where, fmt.Sprintf("g.iep_id = $%d", len(args)+1))
		args = append(args, filter.IEPID)
	}
	if filter.StudentID != "" {
		base += " JOIN ieps i ON i.id = g.iep_id"
		where = append(where, fmt.Sprintf("i.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Area != "" {
		where = append(where, fmt.Sprintf("g.area = $%d", len(args)+1))
		args = append(args, filter.Area)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("g.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	cols := prefixColumns("g")
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY g.created_at ASC LIMIT %d OFFSET %d", cols, base, whereClause, size, offset)
	var goals []models.Goal
	if err := r.db.SelectContext(ctx, &goals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list goals: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count goals: %w", err)
	}
	return goals, total, nil
}

// ListForStudents returns goals for a set of students, optionally limited
// to one area. Used by aggregation and dashboards.
func (r *GoalRepository) ListForStudents(ctx context.Context, studentIDs []string, area string) ([]models.GoalWithStudent, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	cols := prefixColumns("g")
	query := fmt.Sprintf(`SELECT %s, i.student_id FROM goals g
JOIN ieps i ON i.id = g.iep_id
WHERE i.student_id = ANY($1)`, cols)
	args := []interface{}{pq.Array(studentIDs)}
	if area != "" {
		query += " AND g.area = $2"
		args = append(args, area)
	}
	query += " ORDER BY g.created_at ASC"
	var goals []models.GoalWithStudent
	if err := r.db.SelectContext(ctx, &goals, query, args...); err != nil {
		return nil, fmt.Errorf("list goals for students: %w", err)
	}
	return goals, nil
}

// Create inserts a new goal.
func (r *GoalRepository) Create(ctx context.Context, goal *models.Goal) error {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	goal.CreatedAt = now
	goal.UpdatedAt = now
	if goal.Status == "" {
		goal.Status = models.GoalStatusActive
	}
	if goal.Version == 0 {
		goal.Version = 1
	}
	query := `INSERT INTO goals (id, iep_id, area, statement, baseline, target_criteria, target, higher_is_better,
evaluation_method, evaluation_schedule, measurement_type, current_progress, status, version, created_at, updated_at)
VALUES (:id, :iep_id, :area, :statement, :baseline, :target_criteria, :target, :higher_is_better,
:evaluation_method, :evaluation_schedule, :measurement_type, :current_progress, :status, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, goal); err != nil {
		return fmt.Errorf("create goal: %w", err)
	}
	return nil
}

// ListPoints returns a goal's progress history ordered by collection date.
func (r *GoalRepository) ListPoints(ctx context.Context, goalID string) ([]models.ProgressDataPoint, error) {
	query := `SELECT id, goal_id, collection_date, measurement_type, value, correct, total, prompt_level, mastery_met, note, created_by, created_at
FROM progress_data_points WHERE goal_id = $1 ORDER BY collection_date ASC, created_at ASC`
	var points []models.ProgressDataPoint
	if err := r.db.SelectContext(ctx, &points, query, goalID); err != nil {
		return nil, fmt.Errorf("list progress points: %w", err)
	}
	return points, nil
}

// ListPointsForGoals returns progress history for a set of goals keyed by
// goal ID, each sequence ordered by collection date.
func (r *GoalRepository) ListPointsForGoals(ctx context.Context, goalIDs []string) (map[string][]models.ProgressDataPoint, error) {
	if len(goalIDs) == 0 {
		return map[string][]models.ProgressDataPoint{}, nil
	}
	query := `SELECT id, goal_id, collection_date, measurement_type, value, correct, total, prompt_level, mastery_met, note, created_by, created_at
FROM progress_data_points WHERE goal_id = ANY($1) ORDER BY goal_id, collection_date ASC, created_at ASC`
	var points []models.ProgressDataPoint
	if err := r.db.SelectContext(ctx, &points, query, pq.Array(goalIDs)); err != nil {
		return nil, fmt.Errorf("list points for goals: %w", err)
	}
	grouped := make(map[string][]models.ProgressDataPoint, len(goalIDs))
	for _, p := range points {
		grouped[p.GoalID] = append(grouped[p.GoalID], p)
	}
	return grouped, nil
}

// AppendPoint inserts an immutable data point and advances the goal's
// cached progress and version in one transaction. The version predicate
// rejects concurrent writers: two simultaneous submissions cannot silently
// overwrite one another's derived state.
func (r *GoalRepository) AppendPoint(ctx context.Context, goal *models.Goal, point *models.ProgressDataPoint, expectedVersion int) error {
	if point.ID == "" {
		point.ID = uuid.NewString()
	}
	point.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin progress tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE goals SET current_progress = $1, version = version + 1, updated_at = $2
WHERE id = $3 AND version = $4 AND status = $5`,
		goal.CurrentProgress, point.CreatedAt, goal.ID, expectedVersion, models.GoalStatusActive)
	if err != nil {
		return fmt.Errorf("update goal progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("progress rows affected: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrConcurrentModification
	}

	if _, err := tx.NamedExecContext(ctx, `INSERT INTO progress_data_points
(id, goal_id, collection_date, measurement_type, value, correct, total, prompt_level, mastery_met, note, created_by, created_at)
VALUES (:id, :goal_id, :collection_date, :measurement_type, :value, :correct, :total, :prompt_level, :mastery_met, :note, :created_by, :created_at)`, point); err != nil {
		return fmt.Errorf("insert progress point: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit progress tx: %w", err)
	}
	goal.Version = expectedVersion + 1
	goal.UpdatedAt = point.CreatedAt
	return nil
}

// Close marks a goal mastered or discontinued. Terminal; guarded by the
// same version predicate as AppendPoint.
func (r *GoalRepository) Close(ctx context.Context, goalID string, outcome models.GoalStatus, closedAt time.Time, expectedVersion int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE goals SET status = $1, closed_at = $2, version = version + 1, updated_at = $3
WHERE id = $4 AND version = $5 AND status = $6`,
		outcome, closedAt, time.Now().UTC(), goalID, expectedVersion, models.GoalStatusActive)
	if err != nil {
		return fmt.Errorf("close goal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close rows affected: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrConcurrentModification
	}
	return nil
}

func prefixColumns(alias string) string {
	cols := strings.Split(goalColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
