package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type memSchedules struct {
	byID      map[string]*models.Schedule
	createErr error
	created   int
	statuses  []models.ScheduleStatus
}

func newMemSchedules(schedules ...models.Schedule) *memSchedules {
	m := &memSchedules{byID: map[string]*models.Schedule{}}
	for i := range schedules {
		s := schedules[i]
		m.byID[s.ID] = &s
	}
	return m
}

func (m *memSchedules) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	var out []models.Schedule
	for _, s := range m.byID {
		if s.SchoolID == filter.SchoolID {
			out = append(out, *s)
		}
	}
	return out, len(out), nil
}

func (m *memSchedules) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memSchedules) ListActiveOnDay(ctx context.Context, tenantID, schoolID string, day models.DayOfWeek, excludeID string) ([]models.Schedule, error) {
	var out []models.Schedule
	for _, s := range m.byID {
		if s.SchoolID == schoolID && s.DayOfWeek == day && s.Status == models.ScheduleStatusActive && s.ID != excludeID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSchedules) Create(ctx context.Context, schedule *models.Schedule) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created++
	if schedule.ID == "" {
		schedule.ID = "sched-new"
	}
	cp := *schedule
	m.byID[schedule.ID] = &cp
	return nil
}

func (m *memSchedules) Update(ctx context.Context, schedule *models.Schedule) error {
	cp := *schedule
	m.byID[schedule.ID] = &cp
	return nil
}

func (m *memSchedules) UpdateStatus(ctx context.Context, id string, status models.ScheduleStatus) error {
	m.statuses = append(m.statuses, status)
	m.byID[id].Status = status
	return nil
}

func (m *memSchedules) Delete(ctx context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

var adminActor = models.Actor{UserID: "admin-1", SchoolID: "school-1", Role: models.RoleAdmin}

func mondayMath() models.Schedule {
	return models.Schedule{
		ID: "sched-1", SchoolID: "school-1", SubjectID: "math", ClassID: "class-a",
		TeacherID: strPtr("t-1"), Classroom: strPtr("Lab 1"), DayOfWeek: models.Monday,
		StartTime: "08:00", EndTime: "09:00", Status: models.ScheduleStatusActive,
	}
}

func scheduleRequest(classID, teacher, room, start, end string) ScheduleRequest {
	return ScheduleRequest{
		SubjectID: "physics", ClassID: classID, TeacherID: strPtr(teacher), Classroom: strPtr(room),
		DayOfWeek: "Monday", StartTime: start, EndTime: end, StartDate: "2025-01-06", EndDate: "2025-06-30",
	}
}

func newScheduleFixture(cfg ScheduleServiceConfig, schedules ...models.Schedule) (*ScheduleService, *memSchedules) {
	repo := newMemSchedules(schedules...)
	return NewScheduleService(repo, NewConflictDetector(repo, nil, nil), cfg, nil, nil), repo
}

func TestScheduleCreateBlocksTeacherConflict(t *testing.T) {
	svc, repo := newScheduleFixture(ScheduleServiceConfig{}, mondayMath())

	_, err := svc.Create(context.Background(), adminActor, scheduleRequest("class-b", "t-1", "", "08:30", "09:30"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	conflicts, ok := appErr.Details.([]models.ScheduleConflict)
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTeacher, conflicts[0].Type)
	assert.Equal(t, 0, repo.created)
}

func TestScheduleCreateForceKeepsConflicts(t *testing.T) {
	svc, repo := newScheduleFixture(ScheduleServiceConfig{}, mondayMath())
	req := scheduleRequest("class-a", "t-2", "", "08:30", "09:30")
	req.Force = true

	result, err := svc.Create(context.Background(), adminActor, req)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.created)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictClass, result.Conflicts[0].Type)
	assert.Equal(t, models.Monday, result.Schedule.DayOfWeek)
	assert.Equal(t, "school-1", result.Schedule.SchoolID)
}

func TestScheduleCreateWarningOnlyUnlessConfigured(t *testing.T) {
	req := scheduleRequest("class-b", "t-2", " lab 1 ", "8:30", "9:30")

	svc, _ := newScheduleFixture(ScheduleServiceConfig{}, mondayMath())
	result, err := svc.Create(context.Background(), adminActor, req)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.SeverityWarning, result.Conflicts[0].Severity)
	assert.Equal(t, "08:30", result.Schedule.StartTime)

	strict, _ := newScheduleFixture(ScheduleServiceConfig{BlockOnWarning: true}, mondayMath())
	_, err = strict.Create(context.Background(), adminActor, req)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code)
}

func TestScheduleCreateDuplicateMapsToDuplicateSchedule(t *testing.T) {
	svc, repo := newScheduleFixture(ScheduleServiceConfig{})
	repo.createErr = &pq.Error{Code: "23505"}

	_, err := svc.Create(context.Background(), adminActor, scheduleRequest("class-a", "t-1", "", "08:00", "09:00"))
	assert.Equal(t, appErrors.ErrDuplicateSchedule.Code, appErrors.FromError(err).Code)
}

func TestScheduleCreateValidatesPayload(t *testing.T) {
	svc, _ := newScheduleFixture(ScheduleServiceConfig{})
	badDay := scheduleRequest("class-a", "t-1", "", "08:00", "09:00")
	badDay.DayOfWeek = "someday"
	invertedDates := scheduleRequest("class-a", "t-1", "", "08:00", "09:00")
	invertedDates.EndDate = "2024-12-31"
	cases := []ScheduleRequest{
		scheduleRequest("class-a", "t-1", "", "09:00", "08:00"),
		scheduleRequest("", "t-1", "", "08:00", "09:00"),
		badDay,
		invertedDates,
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), adminActor, req)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestScheduleValidateReportsWithoutPersisting(t *testing.T) {
	svc, repo := newScheduleFixture(ScheduleServiceConfig{}, mondayMath())

	conflicts, err := svc.ValidateSchedule(context.Background(), adminActor, scheduleRequest("class-a", "t-1", "LAB 1", "08:00", "09:00"), "")
	require.NoError(t, err)
	assert.Len(t, conflicts, 3)
	assert.Equal(t, 0, repo.created)

	conflicts, err = svc.ValidateSchedule(context.Background(), adminActor, scheduleRequest("class-a", "t-1", "LAB 1", "08:00", "09:00"), "sched-1")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestScheduleUpdateExcludesItself(t *testing.T) {
	svc, repo := newScheduleFixture(ScheduleServiceConfig{}, mondayMath())

	result, err := svc.Update(context.Background(), adminActor, "sched-1", scheduleRequest("class-a", "t-1", "Lab 1", "08:15", "09:15"))
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "08:15", repo.byID["sched-1"].StartTime)
}

func TestScheduleReactivationRechecksConflicts(t *testing.T) {
	suspended := mondayMath()
	suspended.ID = "sched-2"
	suspended.Status = models.ScheduleStatusSuspended
	svc, repo := newScheduleFixture(ScheduleServiceConfig{}, mondayMath(), suspended)

	_, err := svc.UpdateStatus(context.Background(), adminActor, "sched-2", models.ScheduleStatusActive)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code)

	updated, err := svc.UpdateStatus(context.Background(), adminActor, "sched-1", models.ScheduleStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusCancelled, updated.Status)
	assert.Equal(t, []models.ScheduleStatus{models.ScheduleStatusCancelled}, repo.statuses)

	_, err = svc.UpdateStatus(context.Background(), adminActor, "sched-1", "archived")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestScheduleGetHidesOtherSchools(t *testing.T) {
	svc, _ := newScheduleFixture(ScheduleServiceConfig{}, mondayMath())

	_, err := svc.Get(context.Background(), models.Actor{SchoolID: "school-2"}, "sched-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), adminActor, "sched-1"))
	_, err = svc.Get(context.Background(), adminActor, "sched-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
