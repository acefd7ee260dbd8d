package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
	"github.com/accompli/iep-api/pkg/export"
	"github.com/accompli/iep-api/pkg/jobs"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ReportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, resultURL string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type reportGoalSource interface {
	ListForStudents(ctx context.Context, studentIDs []string, area string) ([]models.GoalWithStudent, error)
	ListPointsForGoals(ctx context.Context, goalIDs []string) (map[string][]models.ProgressDataPoint, error)
}

type reportBehaviorSource interface {
	List(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error)
}

type reportStudentSource interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
}

type statusDeriver interface {
	DeriveStatus(goal *models.Goal, points []models.ProgressDataPoint) models.StatusBand
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type urlSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

// ReportService generates progress, behavior and caseload exports
// asynchronously. Requests are persisted, queued onto the in-memory worker
// pool and resolved to a signed download URL when finished.
type ReportService struct {
	store    reportJobStore
	goals    reportGoalSource
	behavior reportBehaviorSource
	students reportStudentSource
	deriver  statusDeriver
	storage  reportStorage
	signer   urlSigner
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	metrics  *MetricsService
	logger   *zap.Logger
	queue    *jobs.Queue
	retries  int
}

// ReportServiceParams groups constructor dependencies.
type ReportServiceParams struct {
	Store      reportJobStore
	Goals      reportGoalSource
	Behavior   reportBehaviorSource
	Students   reportStudentSource
	Deriver    statusDeriver
	Storage    reportStorage
	Signer     urlSigner
	Metrics    *MetricsService
	Logger     *zap.Logger
	Workers    int
	MaxRetries int
}

// NewReportService constructs the service and its worker queue. Call Start
// before enqueueing and Stop on shutdown.
func NewReportService(params ReportServiceParams) *ReportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		store:    params.Store,
		goals:    params.Goals,
		behavior: params.Behavior,
		students: params.Students,
		deriver:  params.Deriver,
		storage:  params.Storage,
		signer:   params.Signer,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		metrics:  params.Metrics,
		logger:   logger,
	}
	s.retries = params.MaxRetries
	if s.retries <= 0 {
		s.retries = 3
	}
	s.queue = jobs.NewQueue("reports", s.process, jobs.QueueConfig{
		Workers:    params.Workers,
		MaxRetries: s.retries,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Enqueue persists a report request and hands it to the workers.
func (s *ReportService) Enqueue(ctx context.Context, reportType models.ReportType, params models.ReportJobParams, createdBy string) (*models.ReportJob, error) {
	switch reportType {
	case models.ReportTypeProgress, models.ReportTypeBehavior:
		if params.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required for this report type")
		}
	case models.ReportTypeCaseload:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report type")
	}
	if params.Format == "" {
		params.Format = models.ReportFormatCSV
	}
	if params.Format != models.ReportFormatCSV && params.Format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	job := &models.ReportJob{Type: reportType, Params: params, CreatedBy: createdBy}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(reportType)}); err != nil {
		if markErr := s.store.MarkFailed(ctx, job.ID, "queue unavailable"); markErr != nil {
			s.logger.Error("failed to mark report job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return job, nil
}

// Get returns one job's status for its owner.
func (s *ReportService) Get(ctx context.Context, id, userID string) (*models.ReportJob, error) {
	job, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.CreatedBy != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report belongs to another user")
	}
	return job, nil
}

// List returns the caller's recent jobs.
func (s *ReportService) List(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	reportJobs, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	return reportJobs, nil
}

// Download validates a signed token and opens the artifact it references.
func (s *ReportService) Download(ctx context.Context, token string) (*os.File, *models.ReportJob, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	job, err := s.store.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report artifact not found")
	}
	return file, job, nil
}

// process is the queue handler: it renders and stores one report.
func (s *ReportService) process(ctx context.Context, queued jobs.Job) error {
	job, err := s.store.FindByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", queued.ID, err)
	}
	if err := s.store.MarkProcessing(ctx, job.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	err = s.render(ctx, job)
	if err == nil {
		s.metrics.RecordReportJob(string(models.ReportStatusFinished))
		s.logger.Info("report finished", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		return nil
	}
	if queued.Attempt < s.retries {
		// Returning the error hands the job back to the queue for retry.
		return err
	}
	s.logger.Error("report job failed", zap.String("job_id", job.ID), zap.Error(err))
	if markErr := s.store.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
		s.logger.Error("failed to mark report job failed", zap.String("job_id", job.ID), zap.Error(markErr))
	}
	s.metrics.RecordReportJob(string(models.ReportStatusFailed))
	return nil
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) error {
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return err
	}
	var payload []byte
	var ext string
	switch job.Params.Format {
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(*dataset, title)
		ext = "pdf"
	default:
		payload, err = s.csv.Render(*dataset)
		ext = "csv"
	}
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	filename := fmt.Sprintf("%s/%s.%s", job.Type, job.ID, ext)
	if _, err := s.storage.Save(filename, payload); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	token, _, err := s.signer.Generate(job.ID, filename)
	if err != nil {
		return fmt.Errorf("sign download url: %w", err)
	}
	if err := s.store.MarkFinished(ctx, job.ID, fmt.Sprintf("/api/v1/reports/%s/download?token=%s", job.ID, token)); err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}
	return nil
}

func (s *ReportService) buildDataset(ctx context.Context, job *models.ReportJob) (*export.Dataset, string, error) {
	from, to := rangeOrDefault(job.Params.DateFrom, job.Params.DateTo)
	switch job.Type {
	case models.ReportTypeProgress:
		return s.progressDataset(ctx, job.Params.StudentID)
	case models.ReportTypeBehavior:
		return s.behaviorDataset(ctx, job.Params.StudentID, from, to)
	case models.ReportTypeCaseload:
		return s.caseloadDataset(ctx)
	default:
		return nil, "", fmt.Errorf("unknown report type %q", job.Type)
	}
}

func (s *ReportService) progressDataset(ctx context.Context, studentID string) (*export.Dataset, string, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, "", fmt.Errorf("load student: %w", err)
	}
	goals, err := s.goals.ListForStudents(ctx, []string{studentID}, "")
	if err != nil {
		return nil, "", fmt.Errorf("load goals: %w", err)
	}
	ids := make([]string, len(goals))
	for i, g := range goals {
		ids[i] = g.ID
	}
	pointsByGoal, err := s.goals.ListPointsForGoals(ctx, ids)
	if err != nil {
		return nil, "", fmt.Errorf("load progress points: %w", err)
	}

	dataset := &export.Dataset{
		Headers: []string{"Area", "Goal", "Status", "Progress", "Target", "Data Points", "Last Collected"},
		Summary: []string{
			fmt.Sprintf("Progress Report: %s %s", student.FirstName, student.LastName),
			fmt.Sprintf("Grade %s | Generated %s", student.GradeLevel, time.Now().UTC().Format("2006-01-02")),
		},
	}
	for i := range goals {
		goal := &goals[i].Goal
		points := pointsByGoal[goal.ID]
		band := s.deriver.DeriveStatus(goal, points)
		lastCollected := ""
		if n := len(points); n > 0 {
			lastCollected = points[n-1].CollectionDate.Format("2006-01-02")
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Area":           string(goal.Area),
			"Goal":           goal.Statement,
			"Status":         string(band),
			"Progress":       fmt.Sprintf("%d", goal.CurrentProgress),
			"Target":         fmt.Sprintf("%.0f", goal.Target),
			"Data Points":    fmt.Sprintf("%d", len(points)),
			"Last Collected": lastCollected,
		})
	}
	return dataset, "Progress Report", nil
}

func (s *ReportService) behaviorDataset(ctx context.Context, studentID string, from, to time.Time) (*export.Dataset, string, error) {
	events, _, err := s.behavior.List(ctx, models.BehaviorEventFilter{
		StudentID: studentID,
		DateFrom:  &from,
		DateTo:    &to,
		PageSize:  200,
	})
	if err != nil {
		return nil, "", fmt.Errorf("load behavior events: %w", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) })

	dataset := &export.Dataset{
		Headers: []string{"Date", "Severity", "Antecedent", "Behavior", "Consequence", "Duration (s)", "Interventions"},
		Summary: []string{
			fmt.Sprintf("Behavior Report: %s through %s", from.Format("2006-01-02"), to.Format("2006-01-02")),
			fmt.Sprintf("%d events recorded", len(events)),
		},
	}
	for _, e := range events {
		interventions := ""
		for i, item := range e.InterventionsUsed {
			if i > 0 {
				interventions += "; "
			}
			interventions += item
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":          e.OccurredAt.Format("2006-01-02 15:04"),
			"Severity":      string(e.Severity),
			"Antecedent":    e.Antecedent,
			"Behavior":      e.Behavior,
			"Consequence":   e.Consequence,
			"Duration (s)":  fmt.Sprintf("%d", e.DurationSeconds),
			"Interventions": interventions,
		})
	}
	return dataset, "Behavior Report", nil
}

func (s *ReportService) caseloadDataset(ctx context.Context) (*export.Dataset, string, error) {
	active := true
	students, _, err := s.students.List(ctx, models.StudentFilter{Active: &active, PageSize: 100})
	if err != nil {
		return nil, "", fmt.Errorf("load caseload: %w", err)
	}
	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	goals, err := s.goals.ListForStudents(ctx, ids, "")
	if err != nil {
		return nil, "", fmt.Errorf("load goals: %w", err)
	}
	goalIDs := make([]string, len(goals))
	for i, g := range goals {
		goalIDs[i] = g.ID
	}
	pointsByGoal, err := s.goals.ListPointsForGoals(ctx, goalIDs)
	if err != nil {
		return nil, "", fmt.Errorf("load progress points: %w", err)
	}

	type rollup struct {
		goals, onTrack, atRisk int
	}
	byStudent := map[string]*rollup{}
	for i := range goals {
		g := &goals[i]
		r := byStudent[g.StudentID]
		if r == nil {
			r = &rollup{}
			byStudent[g.StudentID] = r
		}
		r.goals++
		switch s.deriver.DeriveStatus(&g.Goal, pointsByGoal[g.ID]) {
		case models.BandOnTrack:
			r.onTrack++
		case models.BandAtRisk:
			r.atRisk++
		}
	}

	dataset := &export.Dataset{
		Headers: []string{"Student", "Grade", "Disability Category", "Goals", "On Track", "At Risk", "Annual Review"},
		Summary: []string{
			fmt.Sprintf("Caseload Report: %d students", len(students)),
			fmt.Sprintf("Generated %s", time.Now().UTC().Format("2006-01-02")),
		},
	}
	for _, st := range students {
		r := byStudent[st.ID]
		if r == nil {
			r = &rollup{}
		}
		review := ""
		if st.AnnualReviewDate != nil {
			review = st.AnnualReviewDate.Format("2006-01-02")
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":             st.LastName + ", " + st.FirstName,
			"Grade":               st.GradeLevel,
			"Disability Category": string(st.DisabilityCategory),
			"Goals":               fmt.Sprintf("%d", r.goals),
			"On Track":            fmt.Sprintf("%d", r.onTrack),
			"At Risk":             fmt.Sprintf("%d", r.atRisk),
			"Annual Review":       review,
		})
	}
	return dataset, "Caseload Report", nil
}

func rangeOrDefault(from, to *time.Time) (time.Time, time.Time) {
	end := time.Now().UTC()
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, -1, 0)
	if from != nil {
		start = *from
	}
	return start, end
}
