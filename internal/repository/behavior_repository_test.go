package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accompli/iep-api/internal/models"
)

func newBehaviorMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBehaviorRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newBehaviorMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	mock.ExpectExec("INSERT INTO behavior_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.BehaviorEvent{
		StudentID:    "student-1",
		OccurredAt:   time.Now(),
		Antecedent:   "transition from recess",
		Behavior:     "refused to enter classroom",
		Consequence:  "given 2-minute break, then complied",
		Severity:     models.SeverityLow,
		StaffPresent: pq.StringArray{"Ms. Alvarez"},
		CreatedBy:    "user-1",
	}
	err := repo.Create(context.Background(), event)
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBehaviorRepositoryAppendFollowUp(t *testing.T) {
	db, mock, cleanup := newBehaviorMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	mock.ExpectExec("UPDATE behavior_events").
		WithArgs("parent contacted", "event-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendFollowUp(context.Background(), "event-1", "parent contacted")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBehaviorRepositoryAppendFollowUpMissing(t *testing.T) {
	db, mock, cleanup := newBehaviorMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	mock.ExpectExec("UPDATE behavior_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AppendFollowUp(context.Background(), "missing", "note")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBehaviorRepositorySummary(t *testing.T) {
	db, mock, cleanup := newBehaviorMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	from := time.Now().AddDate(0, -1, 0)
	to := time.Now()

	mock.ExpectQuery(`SELECT severity, COUNT\(\*\) FROM behavior_events`).
		WithArgs("student-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"severity", "count"}).
			AddRow("low", 4).
			AddRow("high", 1))
	mock.ExpectQuery(`SELECT antecedent, COUNT\(\*\) FROM behavior_events`).
		WithArgs("student-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"antecedent", "count"}).
			AddRow("transition from recess", 3).
			AddRow("denied preferred item", 2))
	mock.ExpectQuery(`SELECT intervention, COUNT\(\*\) FROM behavior_events`).
		WithArgs("student-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"intervention", "count"}).
			AddRow("visual timer", 3))
	mock.ExpectQuery(`SELECT AVG\(effectiveness_rating\) FROM behavior_events`).
		WithArgs("student-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(3.5))

	summary, err := repo.Summary(context.Background(), "student-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalEvents)
	assert.Equal(t, 4, summary.CountBySeverity[models.SeverityLow])
	assert.Equal(t, 1, summary.CountBySeverity[models.SeverityHigh])
	require.Len(t, summary.TopAntecedents, 2)
	assert.Equal(t, "transition from recess", summary.TopAntecedents[0].Value)
	require.NotNil(t, summary.AvgEffectiveness)
	assert.InDelta(t, 3.5, *summary.AvgEffectiveness, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBehaviorRepositorySummaryEmpty(t *testing.T) {
	db, mock, cleanup := newBehaviorMock(t)
	defer cleanup()
	repo := NewBehaviorRepository(db)

	from := time.Now().AddDate(0, -1, 0)
	to := time.Now()

	mock.ExpectQuery(`SELECT severity, COUNT\(\*\) FROM behavior_events`).
		WillReturnRows(sqlmock.NewRows([]string{"severity", "count"}))
	mock.ExpectQuery(`SELECT antecedent, COUNT\(\*\) FROM behavior_events`).
		WillReturnRows(sqlmock.NewRows([]string{"antecedent", "count"}))
	mock.ExpectQuery(`SELECT intervention, COUNT\(\*\) FROM behavior_events`).
		WillReturnRows(sqlmock.NewRows([]string{"intervention", "count"}))
	mock.ExpectQuery(`SELECT AVG\(effectiveness_rating\) FROM behavior_events`).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))

	summary, err := repo.Summary(context.Background(), "student-1", from, to)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalEvents)
	assert.Empty(t, summary.TopAntecedents)
	assert.Nil(t, summary.AvgEffectiveness)
	assert.NoError(t, mock.ExpectationsWereMet())
}
