package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/accompli/iep-api/internal/models"
)

// ReportRepository persists background report job metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs a ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = "id, type, params, status, result_url, created_by, created_at, finished_at, error_message"

// Create inserts a queued job record.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now().UTC()
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	query := `INSERT INTO report_jobs (id, type, params, status, created_by, created_at)
VALUES (:id, :type, :params, :status, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID fetches a job.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	query := fmt.Sprintf("SELECT %s FROM report_jobs WHERE id = $1", reportColumns)
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByUser returns the caller's jobs, newest first.
func (r *ReportRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM report_jobs WHERE created_by = $1 ORDER BY created_at DESC LIMIT %d", reportColumns, limit)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, userID); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}

// MarkProcessing transitions a queued job to PROCESSING.
func (r *ReportRepository) MarkProcessing(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE report_jobs SET status = $1 WHERE id = $2",
		models.ReportStatusProcessing, id); err != nil {
		return fmt.Errorf("mark report processing: %w", err)
	}
	return nil
}

// MarkFinished records the result URL on success.
func (r *ReportRepository) MarkFinished(ctx context.Context, id, resultURL string) error {
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, "UPDATE report_jobs SET status = $1, result_url = $2, finished_at = $3 WHERE id = $4",
		models.ReportStatusFinished, resultURL, now, id); err != nil {
		return fmt.Errorf("mark report finished: %w", err)
	}
	return nil
}

// MarkFailed records the failure message after retries are exhausted.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, "UPDATE report_jobs SET status = $1, error_message = $2, finished_at = $3 WHERE id = $4",
		models.ReportStatusFailed, message, now, id); err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}
