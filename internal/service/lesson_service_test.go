package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

func lessonIn(status models.LessonStatus) models.Lesson {
	return models.Lesson{
		ID:         "lesson-1",
		SchoolID:   "school-1",
		ClassID:    "class-a",
		SubjectID:  "math",
		LessonDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		StartTime:  "08:00",
		EndTime:    "09:00",
		Status:     status,
		Type:       models.LessonTypeRegular,
	}
}

var teacherActor = models.Actor{UserID: "user-1", SchoolID: "school-1", TeacherID: "teacher-1", Role: models.RoleTeacher}

func TestLessonServiceStartAndComplete(t *testing.T) {
	db, mock := newTxDB(t)
	lessons := newMemLessons(lessonIn(models.LessonStatusScheduled))
	attendance := newMemAttendance()
	roster := &memRoster{byClass: map[string][]string{"class-a": {"s-1", "s-2", "s-3", "s-4"}}}
	stats := NewStatsRefresher(attendance, newMemBehavior(), roster, lessons, newMemSessions())
	svc := NewLessonService(db, lessons, nil, stats, nil, nil, nil)
	ctx := context.Background()

	started, err := svc.StartLesson(ctx, teacherActor, "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusInProgress, started.Status)

	lessonID := "lesson-1"
	for student, status := range map[string]models.AttendanceStatus{
		"s-1": models.AttendancePresent, "s-2": models.AttendanceLate, "s-3": models.AttendanceAbsent, "s-4": models.AttendanceExcused,
	} {
		require.NoError(t, attendance.Upsert(ctx, &models.LessonAttendance{LessonID: &lessonID, StudentID: student, Status: status}))
	}

	mock.ExpectBegin()
	mock.ExpectCommit()
	content := "  fractions  "
	completed, err := svc.CompleteLesson(ctx, teacherActor, "lesson-1", models.LessonCompletion{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCompleted, completed.Status)
	assert.Equal(t, 4, completed.ExpectedCount)
	assert.Equal(t, 2, completed.PresentCount)
	assert.Equal(t, 50.00, completed.AttendanceRate)
	require.NotNil(t, completed.Content)
	assert.Equal(t, "fractions", *completed.Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonServiceCompleteTwiceDoesNotRecompute(t *testing.T) {
	db, mock := newTxDB(t)
	lessons := newMemLessons(lessonIn(models.LessonStatusCompleted))
	roster := &memRoster{byClass: map[string][]string{"class-a": {"s-1"}}}
	stats := NewStatsRefresher(newMemAttendance(), newMemBehavior(), roster, lessons, newMemSessions())
	svc := NewLessonService(db, lessons, nil, stats, nil, nil, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err := svc.CompleteLesson(context.Background(), teacherActor, "lesson-1", models.LessonCompletion{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, roster.calls)
	assert.Equal(t, 0, lessons.completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonServiceRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		from models.LessonStatus
		run  func(svc *LessonService) error
	}{
		{models.LessonStatusInProgress, func(svc *LessonService) error {
			_, err := svc.PostponeLesson(context.Background(), teacherActor, "lesson-1")
			return err
		}},
		{models.LessonStatusCancelled, func(svc *LessonService) error {
			_, err := svc.StartLesson(context.Background(), teacherActor, "lesson-1")
			return err
		}},
		{models.LessonStatusAbsentTeacher, func(svc *LessonService) error {
			_, err := svc.CancelLesson(context.Background(), teacherActor, "lesson-1", "storm")
			return err
		}},
	}
	for _, tc := range cases {
		lessons := newMemLessons(lessonIn(tc.from))
		svc := NewLessonService(nil, lessons, nil, nil, nil, nil, nil)
		err := tc.run(svc)
		require.Error(t, err)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
		assert.Equal(t, tc.from, lessons.byID["lesson-1"].Status)
	}
}

func TestLessonServiceCancelRequiresReason(t *testing.T) {
	lessons := newMemLessons(lessonIn(models.LessonStatusScheduled))
	svc := NewLessonService(nil, lessons, nil, nil, nil, nil, nil)

	_, err := svc.CancelLesson(context.Background(), teacherActor, "lesson-1", "   ")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	cancelled, err := svc.CancelLesson(context.Background(), teacherActor, "lesson-1", "school closed")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "school closed", *cancelled.CancelReason)
}

func TestLessonServiceTeacherAbsentAndScope(t *testing.T) {
	lessons := newMemLessons(lessonIn(models.LessonStatusScheduled))
	svc := NewLessonService(nil, lessons, nil, nil, nil, nil, nil)

	_, err := svc.MarkTeacherAbsent(context.Background(), models.Actor{SchoolID: "school-2"}, "lesson-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	lesson, err := svc.MarkTeacherAbsent(context.Background(), teacherActor, "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusAbsentTeacher, lesson.Status)
}

func TestLessonServiceListRejectsInvertedRange(t *testing.T) {
	svc := NewLessonService(nil, newMemLessons(), nil, nil, nil, nil, nil)
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := svc.ListLessons(context.Background(), teacherActor, models.LessonFilter{DateFrom: &from, DateTo: &to})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	lessons, page, err := svc.ListLessons(context.Background(), teacherActor, models.LessonFilter{})
	require.NoError(t, err)
	assert.Empty(t, lessons)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.PageSize)
}

func TestLessonServicePostponedCanBeRescheduledOrCancelled(t *testing.T) {
	lessons := newMemLessons(lessonIn(models.LessonStatusPostponed))
	svc := NewLessonService(nil, lessons, nil, nil, nil, nil, nil)

	_, err := svc.StartLesson(context.Background(), teacherActor, "lesson-1")
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	lesson, err := svc.RescheduleLesson(context.Background(), teacherActor, "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusScheduled, lesson.Status)

	_, err = svc.PostponeLesson(context.Background(), teacherActor, "lesson-1")
	require.NoError(t, err)
	lesson, err = svc.CancelLesson(context.Background(), teacherActor, "lesson-1", "term ended")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCancelled, lesson.Status)

	_, err = svc.RescheduleLesson(context.Background(), teacherActor, "lesson-1")
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func adHocLessonService() (*LessonService, *memLessons) {
	lessons := newMemLessons()
	classes := &classStub{classes: map[string]*models.Class{
		"class-a": {ID: "class-a", SchoolID: "school-1"},
		"class-x": {ID: "class-x", SchoolID: "school-2"},
	}}
	return NewLessonService(nil, lessons, classes, nil, nil, nil, nil), lessons
}

func TestLessonServiceCreateAdHocLesson(t *testing.T) {
	svc, lessons := adHocLessonService()

	lesson, err := svc.CreateLesson(context.Background(), teacherActor, LessonRequest{
		SubjectID:  "math",
		ClassID:    "class-a",
		LessonDate: "2025-02-01",
		StartTime:  "9:00",
		EndTime:    "10:30",
		Type:       string(models.LessonTypeMakeup),
	})
	require.NoError(t, err)
	assert.Nil(t, lesson.ScheduleID)
	assert.Equal(t, models.LessonStatusScheduled, lesson.Status)
	assert.Equal(t, models.LessonTypeMakeup, lesson.Type)
	assert.Equal(t, "school-1", lesson.SchoolID)
	assert.Equal(t, "09:00", lesson.StartTime)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), lesson.LessonDate)
	require.NotNil(t, lesson.TeacherID)
	assert.Equal(t, "teacher-1", *lesson.TeacherID)
	assert.Contains(t, lessons.byID, lesson.ID)

	regular, err := svc.CreateLesson(context.Background(), teacherActor, LessonRequest{
		SubjectID: "math", ClassID: "class-a", LessonDate: "2025-02-02", StartTime: "08:00", EndTime: "09:00",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LessonTypeRegular, regular.Type)
}

func TestLessonServiceCreateAdHocLessonValidation(t *testing.T) {
	svc, lessons := adHocLessonService()
	valid := LessonRequest{SubjectID: "math", ClassID: "class-a", LessonDate: "2025-02-01", StartTime: "09:00", EndTime: "10:00"}

	cases := []struct {
		name   string
		mutate func(r *LessonRequest)
		code   string
	}{
		{"unknown type", func(r *LessonRequest) { r.Type = "field_trip" }, appErrors.ErrValidation.Code},
		{"inverted range", func(r *LessonRequest) { r.StartTime, r.EndTime = "10:00", "09:00" }, appErrors.ErrValidation.Code},
		{"touching range", func(r *LessonRequest) { r.EndTime = "09:00" }, appErrors.ErrValidation.Code},
		{"bad date", func(r *LessonRequest) { r.LessonDate = "01/02/2025" }, appErrors.ErrValidation.Code},
		{"missing class", func(r *LessonRequest) { r.ClassID = "" }, appErrors.ErrValidation.Code},
		{"unknown class", func(r *LessonRequest) { r.ClassID = "class-z" }, appErrors.ErrNotFound.Code},
		{"other school", func(r *LessonRequest) { r.ClassID = "class-x" }, appErrors.ErrNotFound.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := svc.CreateLesson(context.Background(), teacherActor, req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, lessons.byID)
}
