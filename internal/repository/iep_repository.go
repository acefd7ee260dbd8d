package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/accompli/iep-api/internal/models"
)

// IEPRepository manages persistence for IEP records.
type IEPRepository struct {
	db *sqlx.DB
}

// NewIEPRepository constructs an IEPRepository.
func NewIEPRepository(db *sqlx.DB) *IEPRepository {
	return &IEPRepository{db: db}
}

const iepColumns = `id, student_id, iep_year, effective_date, annual_review_date, triennial_evaluation_date,
disability_category, present_levels, accommodations, related_services, transition_plan, status, amendments,
created_by, created_at, updated_at`

// FindByID fetches an IEP by ID.
func (r *IEPRepository) FindByID(ctx context.Context, id string) (*models.IEP, error) {
	query := fmt.Sprintf("SELECT %s FROM ieps WHERE id = $1", iepColumns)
	var iep models.IEP
	if err := r.db.GetContext(ctx, &iep, query, id); err != nil {
		return nil, err
	}
	return &iep, nil
}

// FindActiveByStudent returns the student's currently active IEP.
func (r *IEPRepository) FindActiveByStudent(ctx context.Context, studentID string) (*models.IEP, error) {
	query := fmt.Sprintf("SELECT %s FROM ieps WHERE student_id = $1 AND status = $2", iepColumns)
	var iep models.IEP
	if err := r.db.GetContext(ctx, &iep, query, studentID, models.IEPStatusActive); err != nil {
		return nil, err
	}
	return &iep, nil
}

// ListActive returns every active IEP, for compliance sweeps.
func (r *IEPRepository) ListActive(ctx context.Context) ([]models.IEP, error) {
	query := fmt.Sprintf("SELECT %s FROM ieps WHERE status = $1 ORDER BY annual_review_date ASC", iepColumns)
	var ieps []models.IEP
	if err := r.db.SelectContext(ctx, &ieps, query, models.IEPStatusActive); err != nil {
		return nil, fmt.Errorf("list active ieps: %w", err)
	}
	return ieps, nil
}

// List returns IEP history matching the filter, newest first.
func (r *IEPRepository) List(ctx context.Context, filter models.IEPFilter) ([]models.IEP, int, error) {
	base := "FROM ieps"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY effective_date DESC LIMIT %d OFFSET %d",
		iepColumns, base, whereClause, size, offset)
	var ieps []models.IEP
	if err := r.db.SelectContext(ctx, &ieps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list ieps: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count ieps: %w", err)
	}
	return ieps, total, nil
}

// Create inserts a new IEP record.
func (r *IEPRepository) Create(ctx context.Context, iep *models.IEP) error {
	if iep.ID == "" {
		iep.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	iep.CreatedAt = now
	iep.UpdatedAt = now
	if iep.Status == "" {
		iep.Status = models.IEPStatusDraft
	}
	if iep.Amendments == nil {
		iep.Amendments = models.AmendmentTrail{}
	}
	query := `INSERT INTO ieps (id, student_id, iep_year, effective_date, annual_review_date, triennial_evaluation_date,
disability_category, present_levels, accommodations, related_services, transition_plan, status, amendments,
created_by, created_at, updated_at)
VALUES (:id, :student_id, :iep_year, :effective_date, :annual_review_date, :triennial_evaluation_date,
:disability_category, :present_levels, :accommodations, :related_services, :transition_plan, :status, :amendments,
:created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, iep); err != nil {
		return fmt.Errorf("create iep: %w", err)
	}
	return nil
}

// UpdateDraft replaces the editable fields of a draft record.
func (r *IEPRepository) UpdateDraft(ctx context.Context, iep *models.IEP) error {
	iep.UpdatedAt = time.Now().UTC()
	query := `UPDATE ieps SET iep_year = :iep_year, effective_date = :effective_date, annual_review_date = :annual_review_date,
triennial_evaluation_date = :triennial_evaluation_date, disability_category = :disability_category,
present_levels = :present_levels, accommodations = :accommodations, related_services = :related_services,
transition_plan = :transition_plan, updated_at = :updated_at
WHERE id = :id AND status = 'draft'`
	res, err := r.db.NamedExecContext(ctx, query, iep)
	if err != nil {
		return fmt.Errorf("update draft iep: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("draft rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("iep %s is not a draft", iep.ID)
	}
	return nil
}

// Activate promotes a draft to active, expiring any currently active IEP
// for the same student in the same transaction. At most one IEP per
// student is active at any time.
func (r *IEPRepository) Activate(ctx context.Context, id, studentID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE ieps SET status = $1, updated_at = $2 WHERE student_id = $3 AND status = $4`,
		models.IEPStatusExpired, now, studentID, models.IEPStatusActive); err != nil {
		return fmt.Errorf("expire active iep: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE ieps SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		models.IEPStatusActive, now, id, models.IEPStatusDraft)
	if err != nil {
		return fmt.Errorf("activate iep: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("iep %s is not a draft", id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate tx: %w", err)
	}
	return nil
}

// Amend supersedes the active record with an amended copy. The old record
// keeps its history and transitions to 'amended'; the replacement becomes
// the student's active IEP, carrying the extended amendment trail.
func (r *IEPRepository) Amend(ctx context.Context, superseded string, replacement *models.IEP) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin amend tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE ieps SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		models.IEPStatusAmended, now, superseded, models.IEPStatusActive)
	if err != nil {
		return fmt.Errorf("supersede iep: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("amend rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("iep %s is not active", superseded)
	}

	if replacement.ID == "" {
		replacement.ID = uuid.NewString()
	}
	replacement.Status = models.IEPStatusActive
	replacement.CreatedAt = now
	replacement.UpdatedAt = now
	query := `INSERT INTO ieps (id, student_id, iep_year, effective_date, annual_review_date, triennial_evaluation_date,
disability_category, present_levels, accommodations, related_services, transition_plan, status, amendments,
created_by, created_at, updated_at)
VALUES (:id, :student_id, :iep_year, :effective_date, :annual_review_date, :triennial_evaluation_date,
:disability_category, :present_levels, :accommodations, :related_services, :transition_plan, :status, :amendments,
:created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, replacement); err != nil {
		return fmt.Errorf("insert amended iep: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit amend tx: %w", err)
	}
	return nil
}
