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

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters, joined with their
// active IEP when one exists.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN ieps i ON i.student_id = s.id AND i.status = $1"
	args := []interface{}{models.IEPStatusActive}
	conditions := []string{"1=1"}

	if filter.OrganizationID != "" {
		conditions = append(conditions, fmt.Sprintf("s.organization_id = $%d", len(args)+1))
		args = append(args, filter.OrganizationID)
	}
	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("s.grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.DisabilityCategory != "" {
		conditions = append(conditions, fmt.Sprintf("s.disability_category = $%d", len(args)+1))
		args = append(args, filter.DisabilityCategory)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.first_name) LIKE $%d OR LOWER(s.last_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"last_name":  "s.last_name",
		"grade":      "s.grade_level",
		"created_at": "s.created_at",
	}
	if sortBy == "" {
		sortBy = "last_name"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.last_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.organization_id, s.first_name, s.last_name, s.grade_level, s.birth_date,
        s.disability_category, s.active, s.created_at, s.updated_at,
        i.id AS active_iep_id, i.annual_review_date
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT s.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := `SELECT s.id, s.organization_id, s.first_name, s.last_name, s.grade_level, s.birth_date,
        s.disability_category, s.active, s.created_at, s.updated_at,
        i.id AS active_iep_id, i.annual_review_date
        FROM students s
        LEFT JOIN ieps i ON i.student_id = s.id AND i.status = $2
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id, models.IEPStatusActive); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListIDs returns IDs of active students, optionally scoped to an organization.
func (r *StudentRepository) ListIDs(ctx context.Context, organizationID string) ([]string, error) {
	query := "SELECT id FROM students WHERE active = true"
	args := []interface{}{}
	if organizationID != "" {
		query += " AND organization_id = $1"
		args = append(args, organizationID)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list student ids: %w", err)
	}
	return ids, nil
}

// Count returns the number of active students, optionally scoped to an
// organization.
func (r *StudentRepository) Count(ctx context.Context, organizationID string) (int, error) {
	query := "SELECT COUNT(*) FROM students WHERE active = true"
	args := []interface{}{}
	if organizationID != "" {
		query += " AND organization_id = $1"
		args = append(args, organizationID)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}

// Create inserts a new student record at enrollment.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	query := `INSERT INTO students (id, organization_id, first_name, last_name, grade_level, birth_date, disability_category, active, created_at, updated_at)
VALUES (:id, :organization_id, :first_name, :last_name, :grade_level, :birth_date, :disability_category, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	query := `UPDATE students SET first_name = :first_name, last_name = :last_name, grade_level = :grade_level,
birth_date = :birth_date, disability_category = :disability_category, active = :active, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a student. Records are never hard-deleted.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE students SET active = false, updated_at = $1 WHERE id = $2", time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}
