package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

func TestLessonSessionRepositoryFinishOnlyFromInProgress(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'in_progress'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ended := time.Now().UTC()
	finished, err := repo.Finish(context.Background(), nil, &models.LessonSession{ID: "session-1", Status: models.SessionStatusCompleted, EndedAt: &ended})
	require.NoError(t, err)
	require.False(t, finished)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonSessionRepositoryUpdateNote(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonSessionRepository(db)

	note := "fractions"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lesson_sessions SET lesson_note = $2, lesson_tags = $3, updated_at = $4 WHERE id = $1 AND status = 'in_progress'")).
		WithArgs("session-1", note, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.UpdateNote(context.Background(), "session-1", &note, []string{"math"})
	require.NoError(t, err)
	require.True(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonSessionRepositoryUpdateStatsLeavesFinishedSessions(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonSessionRepository(db)

	mock.ExpectExec(`(?s)UPDATE lesson_sessions SET present_count = \$2.*WHERE id = \$1 AND status = 'in_progress'`).
		WithArgs("session-1", 3, 1, 0, 0, 0, 75.0, 2, 1, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStats(context.Background(), nil, &models.LessonSession{
		ID: "session-1", PresentCount: 3, AbsentCount: 1, AttendanceRate: 75.0, BehaviorTotalPoints: 2, BehaviorPositiveCount: 1,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
