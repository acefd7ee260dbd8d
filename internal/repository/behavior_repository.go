package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/accompli/iep-api/internal/models"
)

// BehaviorRepository manages the append-only store of ABC events.
type BehaviorRepository struct {
	db *sqlx.DB
}

// NewBehaviorRepository constructs a new repository.
func NewBehaviorRepository(db *sqlx.DB) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

const behaviorColumns = `id, student_id, goal_id, occurred_at, antecedent, behavior, consequence, severity,
duration_seconds, location, staff_present, environmental_factors, interventions_used, effectiveness_rating,
follow_up_needed, follow_up_notes, created_by, created_at`

// List returns behavior events per provided filter.
func (r *BehaviorRepository) List(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error) {
	base := "FROM behavior_events"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.GoalID != "" {
		where = append(where, fmt.Sprintf("goal_id = $%d", len(args)+1))
		args = append(args, filter.GoalID)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if len(filter.Severities) > 0 {
		values := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			values[i] = string(s)
		}
		where = append(where, fmt.Sprintf("severity = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(values))
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
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY occurred_at DESC LIMIT %d OFFSET %d",
		behaviorColumns, base, whereClause, size, offset)
	var events []models.BehaviorEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list behavior events: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count behavior events: %w", err)
	}
	return events, total, nil
}

// FindByID fetches one event.
func (r *BehaviorRepository) FindByID(ctx context.Context, id string) (*models.BehaviorEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM behavior_events WHERE id = $1", behaviorColumns)
	var event models.BehaviorEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create inserts a new behavior event. There is no update or delete:
// corrections happen via a new event plus a note.
func (r *BehaviorRepository) Create(ctx context.Context, event *models.BehaviorEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO behavior_events (id, student_id, goal_id, occurred_at, antecedent, behavior, consequence, severity,
duration_seconds, location, staff_present, environmental_factors, interventions_used, effectiveness_rating,
follow_up_needed, follow_up_notes, created_by, created_at)
VALUES (:id, :student_id, :goal_id, :occurred_at, :antecedent, :behavior, :consequence, :severity,
:duration_seconds, :location, :staff_present, :environmental_factors, :interventions_used, :effectiveness_rating,
:follow_up_needed, :follow_up_notes, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create behavior event: %w", err)
	}
	return nil
}

// AppendFollowUp adds follow-up notes to an existing event, the only
// mutation the contract permits.
func (r *BehaviorRepository) AppendFollowUp(ctx context.Context, id, note string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE behavior_events
SET follow_up_notes = COALESCE(follow_up_notes || E'\n', '') || $1, follow_up_needed = false
WHERE id = $2`, note, id)
	if err != nil {
		return fmt.Errorf("append follow-up: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("follow-up rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountSince returns how many events a date range holds, for dashboards.
func (r *BehaviorRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM behavior_events WHERE occurred_at >= $1", since); err != nil {
		return 0, fmt.Errorf("count recent events: %w", err)
	}
	return total, nil
}

// Summary aggregates a student's events over a date range using
// exact-string grouping.
func (r *BehaviorRepository) Summary(ctx context.Context, studentID string, from, to time.Time) (*models.BehaviorSummary, error) {
	summary := &models.BehaviorSummary{
		StudentID:       studentID,
		CountBySeverity: map[models.Severity]int{},
	}

	sevRows, err := r.db.QueryxContext(ctx, `SELECT severity, COUNT(*) FROM behavior_events
WHERE student_id = $1 AND occurred_at >= $2 AND occurred_at <= $3 GROUP BY severity`, studentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("severity counts: %w", err)
	}
	defer sevRows.Close() //nolint:errcheck
	for sevRows.Next() {
		var severity models.Severity
		var count int
		if err := sevRows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("scan severity count: %w", err)
		}
		summary.CountBySeverity[severity] = count
		summary.TotalEvents += count
	}
	if err := sevRows.Err(); err != nil {
		return nil, fmt.Errorf("severity rows: %w", err)
	}

	summary.TopAntecedents, err = r.topValues(ctx, `SELECT antecedent, COUNT(*) FROM behavior_events
WHERE student_id = $1 AND occurred_at >= $2 AND occurred_at <= $3 AND antecedent <> ''
GROUP BY antecedent ORDER BY COUNT(*) DESC, antecedent ASC LIMIT 5`, studentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("top antecedents: %w", err)
	}

	summary.TopInterventions, err = r.topValues(ctx, `SELECT intervention, COUNT(*) FROM behavior_events,
unnest(interventions_used) AS intervention
WHERE student_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
GROUP BY intervention ORDER BY COUNT(*) DESC, intervention ASC LIMIT 5`, studentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("top interventions: %w", err)
	}

	var avg sql.NullFloat64
	if err := r.db.GetContext(ctx, &avg, `SELECT AVG(effectiveness_rating) FROM behavior_events
WHERE student_id = $1 AND occurred_at >= $2 AND occurred_at <= $3 AND effectiveness_rating IS NOT NULL`, studentID, from, to); err != nil {
		return nil, fmt.Errorf("avg effectiveness: %w", err)
	}
	if avg.Valid {
		summary.AvgEffectiveness = &avg.Float64
	}

	return summary, nil
}

func (r *BehaviorRepository) topValues(ctx context.Context, query string, args ...interface{}) ([]models.CountedItem, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck
	var items []models.CountedItem
	for rows.Next() {
		var item models.CountedItem
		if err := rows.Scan(&item.Value, &item.Count); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
