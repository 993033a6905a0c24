package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type scheduleFinderStub struct {
	schedule *models.Schedule
	err      error
}

func (s *scheduleFinderStub) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.schedule, nil
}

// lessonKeyStore mimics the (schedule_id, lesson_date) unique key.
type lessonKeyStore struct {
	keys   map[string]struct{}
	failAt int
	calls  int
}

func newLessonKeyStore() *lessonKeyStore {
	return &lessonKeyStore{keys: map[string]struct{}{}}
}

func (s *lessonKeyStore) InsertIfAbsent(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) (bool, error) {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return false, errors.New("connection reset")
	}
	key := *lesson.ScheduleID + "|" + lesson.LessonDate.Format("2006-01-02")
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func fridaySchedule() *models.Schedule {
	return &models.Schedule{
		ID:        "sched-1",
		SchoolID:  "school-1",
		SubjectID: "math",
		ClassID:   "class-a",
		DayOfWeek: models.Friday,
		StartTime: "08:00",
		EndTime:   "09:00",
		StartDate: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC),
		Status:    models.ScheduleStatusActive,
	}
}

func TestOccurrenceDatesTwoWeeksOfFridays(t *testing.T) {
	dates := OccurrenceDates(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC), time.Friday)
	require.Len(t, dates, 2)
	assert.Equal(t, "2025-01-10", dates[0].Format("2006-01-02"))
	assert.Equal(t, "2025-01-17", dates[1].Format("2006-01-02"))
}

func TestOccurrenceDatesIncludesBoundaries(t *testing.T) {
	friday := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	dates := OccurrenceDates(friday, friday, time.Friday)
	require.Len(t, dates, 1)
	assert.True(t, dates[0].Equal(friday))

	assert.Empty(t, OccurrenceDates(friday, friday, time.Monday))
}

func TestGenerateLessonsIsIdempotent(t *testing.T) {
	db, mock := newTxDB(t)
	store := newLessonKeyStore()
	gen := NewLessonGenerator(db, &scheduleFinderStub{schedule: fridaySchedule()}, store, LessonGeneratorConfig{}, nil, nil)
	actor := models.Actor{SchoolID: "school-1"}

	mock.ExpectBegin()
	mock.ExpectCommit()
	first, err := gen.GenerateLessonsForSchedule(context.Background(), actor, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Existing)
	assert.Equal(t, 2, first.Total)

	mock.ExpectBegin()
	mock.ExpectCommit()
	second, err := gen.GenerateLessonsForSchedule(context.Background(), actor, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Existing)
	assert.Equal(t, first.Total, second.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateLessonsRollsBackOnFailure(t *testing.T) {
	db, mock := newTxDB(t)
	store := newLessonKeyStore()
	store.failAt = 2
	gen := NewLessonGenerator(db, &scheduleFinderStub{schedule: fridaySchedule()}, store, LessonGeneratorConfig{}, nil, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err := gen.GenerateLessonsForSchedule(context.Background(), models.Actor{SchoolID: "school-1"}, "sched-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGenerationFailed.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateLessonsRejectsInactiveSchedule(t *testing.T) {
	sched := fridaySchedule()
	sched.Status = models.ScheduleStatusSuspended
	gen := NewLessonGenerator(nil, &scheduleFinderStub{schedule: sched}, newLessonKeyStore(), LessonGeneratorConfig{}, nil, nil)

	_, err := gen.GenerateLessonsForSchedule(context.Background(), models.Actor{SchoolID: "school-1"}, "sched-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestGenerateLessonsEnforcesMaxDays(t *testing.T) {
	gen := NewLessonGenerator(nil, &scheduleFinderStub{schedule: fridaySchedule()}, newLessonKeyStore(), LessonGeneratorConfig{MaxDays: 7}, nil, nil)

	_, err := gen.GenerateLessonsForSchedule(context.Background(), models.Actor{SchoolID: "school-1"}, "sched-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerateLessonsScheduleScope(t *testing.T) {
	gen := NewLessonGenerator(nil, &scheduleFinderStub{err: sql.ErrNoRows}, newLessonKeyStore(), LessonGeneratorConfig{}, nil, nil)
	_, err := gen.GenerateLessonsForSchedule(context.Background(), models.Actor{SchoolID: "school-1"}, "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	gen = NewLessonGenerator(nil, &scheduleFinderStub{schedule: fridaySchedule()}, newLessonKeyStore(), LessonGeneratorConfig{}, nil, nil)
	_, err = gen.GenerateLessonsForSchedule(context.Background(), models.Actor{SchoolID: "other-school"}, "sched-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
