package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accompli/iep-api/internal/models"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

func newGoalMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func goalRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "iep_id", "area", "statement", "baseline", "target_criteria", "target", "higher_is_better",
		"evaluation_method", "evaluation_schedule", "measurement_type", "current_progress", "status", "closed_at", "version", "created_at", "updated_at"}).
		AddRow("goal-1", "iep-1", "reading", "Will decode CVC words", "40% accuracy", "80% accuracy over 3 sessions", 80.0, true,
			"curriculum-based measurement", "weekly", "accuracy", 45, "active", nil, 1, now, now)
}

func TestGoalRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newGoalMock(t)
	defer cleanup()
	repo := NewGoalRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM goals WHERE id = \$1`).
		WithArgs("goal-1").
		WillReturnRows(goalRow())

	goal, err := repo.FindByID(context.Background(), "goal-1")
	require.NoError(t, err)
	assert.Equal(t, "goal-1", goal.ID)
	assert.Equal(t, 1, goal.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGoalRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newGoalMock(t)
	defer cleanup()
	repo := NewGoalRepository(db)

	mock.ExpectExec("INSERT INTO goals").
		WillReturnResult(sqlmock.NewResult(1, 1))

	goal := &models.Goal{
		IEPID:           "iep-1",
		Area:            models.AreaReading,
		Statement:       "Will decode CVC words",
		Target:          80,
		HigherIsBetter:  true,
		MeasurementType: models.MeasureAccuracy,
	}
	err := repo.Create(context.Background(), goal)
	require.NoError(t, err)
	assert.NotEmpty(t, goal.ID)
	assert.Equal(t, models.GoalStatusActive, goal.Status)
	assert.Equal(t, 1, goal.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGoalRepositoryAppendPoint(t *testing.T) {
	db, mock, cleanup := newGoalMock(t)
	defer cleanup()
	repo := NewGoalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE goals SET current_progress").
		WithArgs(56, sqlmock.AnyArg(), "goal-1", 3, models.GoalStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO progress_data_points").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	goal := &models.Goal{ID: "goal-1", CurrentProgress: 56, Version: 3}
	point := &models.ProgressDataPoint{GoalID: "goal-1", CollectionDate: time.Now(), Value: 56, MeasurementType: models.MeasureAccuracy}
	err := repo.AppendPoint(context.Background(), goal, point, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, goal.Version)
	assert.NotEmpty(t, point.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGoalRepositoryAppendPointVersionConflict(t *testing.T) {
	db, mock, cleanup := newGoalMock(t)
	defer cleanup()
	repo := NewGoalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE goals SET current_progress").
		WithArgs(56, sqlmock.AnyArg(), "goal-1", 2, models.GoalStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	goal := &models.Goal{ID: "goal-1", CurrentProgress: 56, Version: 2}
	point := &models.ProgressDataPoint{GoalID: "goal-1", CollectionDate: time.Now(), Value: 56}
	err := repo.AppendPoint(context.Background(), goal, point, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGoalRepositoryClose(t *testing.T) {
	db, mock, cleanup := newGoalMock(t)
	defer cleanup()
	repo := NewGoalRepository(db)

	mock.ExpectExec("UPDATE goals SET status").
		WithArgs(models.GoalStatusMastered, sqlmock.AnyArg(), sqlmock.AnyArg(), "goal-1", 5, models.GoalStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Close(context.Background(), "goal-1", models.GoalStatusMastered, time.Now(), 5)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGoalRepositoryCloseVersionConflict(t *testing.T) {
	db, mock, cleanup := newGoalMock(t)
	defer cleanup()
	repo := NewGoalRepository(db)

	mock.ExpectExec("UPDATE goals SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Close(context.Background(), "goal-1", models.GoalStatusDiscontinued, time.Now(), 1)
	assert.ErrorIs(t, err, appErrors.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGoalRepositoryListPoints(t *testing.T) {
	db, mock, cleanup := newGoalMock(t)
	defer cleanup()
	repo := NewGoalRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "goal_id", "collection_date", "measurement_type", "value", "correct", "total", "prompt_level", "mastery_met", "note", "created_by", "created_at"}).
		AddRow("p1", "goal-1", now.AddDate(0, 0, -14), "accuracy", 45.0, nil, nil, "independent", false, "", "user-1", now.AddDate(0, 0, -14)).
		AddRow("p2", "goal-1", now.AddDate(0, 0, -7), "accuracy", 52.0, nil, nil, "independent", false, "", "user-1", now.AddDate(0, 0, -7))
	mock.ExpectQuery(`SELECT (.+) FROM progress_data_points WHERE goal_id = \$1 ORDER BY collection_date ASC, created_at ASC`).
		WithArgs("goal-1").
		WillReturnRows(rows)

	points, err := repo.ListPoints(context.Background(), "goal-1")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 45.0, points[0].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}
