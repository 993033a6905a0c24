package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type scheduleDayStub struct {
	schedules []models.Schedule
	err       error
	lastDay   models.DayOfWeek
	lastSkip  string
	lastScope [2]string
}

func (s *scheduleDayStub) ListActiveOnDay(ctx context.Context, tenantID, schoolID string, day models.DayOfWeek, excludeID string) ([]models.Schedule, error) {
	s.lastDay = day
	s.lastSkip = excludeID
	s.lastScope = [2]string{tenantID, schoolID}
	return s.schedules, s.err
}

func existingSlot(id, classID, teacher, room, start, end string) models.Schedule {
	sched := models.Schedule{ID: id, ClassID: classID, DayOfWeek: models.Monday, StartTime: start, EndTime: end, Status: models.ScheduleStatusActive}
	if teacher != "" {
		sched.TeacherID = strPtr(teacher)
	}
	if room != "" {
		sched.Classroom = strPtr(room)
	}
	return sched
}

func TestDetectConflictsTouchingRangesNeverConflict(t *testing.T) {
	existing := []models.Schedule{existingSlot("s-1", "class-a", "t-1", "R1", "08:00", "09:00")}

	before := models.ConflictCandidate{TeacherID: strPtr("t-1"), ClassID: "class-a", Classroom: strPtr("R1"), DayOfWeek: models.Monday, StartTime: "07:00", EndTime: "08:00"}
	after := before
	after.StartTime, after.EndTime = "09:00", "10:00"

	for _, cand := range []models.ConflictCandidate{before, after} {
		conflicts, err := DetectConflicts(cand, existing)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	}
}

func TestDetectConflictsReportsEachDimension(t *testing.T) {
	existing := []models.Schedule{existingSlot("s-1", "class-a", "t-1", " room 1 ", "08:00", "09:00")}
	cand := models.ConflictCandidate{TeacherID: strPtr("t-1"), ClassID: "class-a", Classroom: strPtr("ROOM 1"), DayOfWeek: models.Monday, StartTime: "08:30", EndTime: "09:30"}

	conflicts, err := DetectConflicts(cand, existing)
	require.NoError(t, err)
	require.Len(t, conflicts, 3)

	byType := map[models.ConflictType]models.ConflictSeverity{}
	for _, c := range conflicts {
		byType[c.Type] = c.Severity
		assert.Equal(t, "s-1", c.ScheduleID)
	}
	assert.Equal(t, models.SeverityError, byType[models.ConflictTeacher])
	assert.Equal(t, models.SeverityError, byType[models.ConflictClass])
	assert.Equal(t, models.SeverityWarning, byType[models.ConflictClassroom])
}

func TestDetectConflictsIgnoresBlankClassroomsAndMissingTeachers(t *testing.T) {
	existing := []models.Schedule{existingSlot("s-1", "class-b", "", "  ", "08:00", "09:00")}
	cand := models.ConflictCandidate{ClassID: "class-a", Classroom: strPtr(""), DayOfWeek: models.Monday, StartTime: "08:00", EndTime: "09:00"}

	conflicts, err := DetectConflicts(cand, existing)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetectConflictsRejectsInvalidWindow(t *testing.T) {
	cases := []models.ConflictCandidate{
		{DayOfWeek: "funday", StartTime: "08:00", EndTime: "09:00"},
		{DayOfWeek: models.Monday, StartTime: "8am", EndTime: "09:00"},
		{DayOfWeek: models.Monday, StartTime: "09:00", EndTime: "09:00"},
	}
	for _, cand := range cases {
		_, err := DetectConflicts(cand, nil)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestHasBlockingConflict(t *testing.T) {
	warning := []models.ScheduleConflict{{Type: models.ConflictClassroom, Severity: models.SeverityWarning}}
	assert.False(t, HasBlockingConflict(warning, false))
	assert.True(t, HasBlockingConflict(warning, true))
	assert.True(t, HasBlockingConflict([]models.ScheduleConflict{{Severity: models.SeverityError}}, false))
	assert.False(t, HasBlockingConflict(nil, true))
}

func TestConflictDetectorCheckConflictsScopesQuery(t *testing.T) {
	repo := &scheduleDayStub{schedules: []models.Schedule{existingSlot("s-1", "class-a", "", "", "08:00", "09:00")}}
	detector := NewConflictDetector(repo, nil, nil)
	actor := models.Actor{TenantID: "tenant-1", SchoolID: "school-1"}

	conflicts, err := detector.CheckConflicts(context.Background(), actor, models.ConflictCandidate{
		ClassID: "class-a", DayOfWeek: models.Monday, StartTime: "08:15", EndTime: "08:45",
	}, "self")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.Monday, repo.lastDay)
	assert.Equal(t, "self", repo.lastSkip)
	assert.Equal(t, [2]string{"tenant-1", "school-1"}, repo.lastScope)
}

func TestConflictDetectorCheckConflictsRepositoryError(t *testing.T) {
	detector := NewConflictDetector(&scheduleDayStub{err: errors.New("boom")}, nil, nil)
	_, err := detector.CheckConflicts(context.Background(), models.Actor{SchoolID: "school-1"}, models.ConflictCandidate{
		DayOfWeek: models.Monday, StartTime: "08:00", EndTime: "09:00",
	}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
