package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

func strPtr(v string) *string { return &v }

// newTxDB returns a sqlmock-backed database for services that open transactions.
func newTxDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

type memLessons struct {
	byID         map[string]*models.Lesson
	statsUpdates int
	completed    int
}

func newMemLessons(lessons ...models.Lesson) *memLessons {
	m := &memLessons{byID: map[string]*models.Lesson{}}
	for i := range lessons {
		l := lessons[i]
		m.byID[l.ID] = &l
	}
	return m
}

func (m *memLessons) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = "lesson-new"
	}
	cp := *lesson
	m.byID[lesson.ID] = &cp
	return nil
}

func (m *memLessons) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	l, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (m *memLessons) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	return m.FindByID(ctx, id)
}

func (m *memLessons) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	var out []models.Lesson
	for _, l := range m.byID {
		if l.SchoolID == filter.SchoolID && (filter.ClassID == "" || l.ClassID == filter.ClassID) {
			out = append(out, *l)
		}
	}
	return out, len(out), nil
}

func (m *memLessons) TransitionStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.LessonStatus, cancelReason *string) (bool, error) {
	l, ok := m.byID[id]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	if cancelReason != nil {
		l.CancelReason = cancelReason
	}
	return true, nil
}

func (m *memLessons) Complete(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	m.completed++
	cp := *lesson
	m.byID[lesson.ID] = &cp
	return nil
}

func (m *memLessons) UpdateAttendanceStats(ctx context.Context, exec sqlx.ExtContext, id string, expected, present int, rate float64) error {
	m.statsUpdates++
	if l, ok := m.byID[id]; ok {
		l.ExpectedCount, l.PresentCount, l.AttendanceRate = expected, present, rate
	}
	return nil
}

type memSessions struct {
	byID         map[string]*models.LessonSession
	statsUpdates int
}

func newMemSessions(sessions ...models.LessonSession) *memSessions {
	m := &memSessions{byID: map[string]*models.LessonSession{}}
	for i := range sessions {
		s := sessions[i]
		m.byID[s.ID] = &s
	}
	return m
}

func (m *memSessions) Create(ctx context.Context, session *models.LessonSession) error {
	if session.ID == "" {
		session.ID = "session-new"
	}
	cp := *session
	m.byID[session.ID] = &cp
	return nil
}

func (m *memSessions) FindByID(ctx context.Context, id string) (*models.LessonSession, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LessonSession, error) {
	return m.FindByID(ctx, id)
}

func (m *memSessions) Finish(ctx context.Context, exec sqlx.ExtContext, session *models.LessonSession) (bool, error) {
	stored, ok := m.byID[session.ID]
	if !ok || stored.Status != models.SessionStatusInProgress {
		return false, nil
	}
	cp := *session
	m.byID[session.ID] = &cp
	return true, nil
}

func (m *memSessions) UpdateNote(ctx context.Context, id string, note *string, tags []string) (bool, error) {
	s, ok := m.byID[id]
	if !ok || s.Status != models.SessionStatusInProgress {
		return false, nil
	}
	s.LessonNote = note
	s.LessonTags = tags
	return true, nil
}

func (m *memSessions) UpdateStats(ctx context.Context, exec sqlx.ExtContext, session *models.LessonSession) error {
	m.statsUpdates++
	if stored, ok := m.byID[session.ID]; ok && stored.Status != models.SessionStatusInProgress {
		return nil
	}
	cp := *session
	m.byID[session.ID] = &cp
	return nil
}

// memAttendance keys marks by parent and student, so repeated marks overwrite.
type memAttendance struct {
	records map[string]models.LessonAttendance
	order   []string
	failFor map[string]bool
}

func newMemAttendance() *memAttendance {
	return &memAttendance{records: map[string]models.LessonAttendance{}, failFor: map[string]bool{}}
}

func (m *memAttendance) Upsert(ctx context.Context, record *models.LessonAttendance) error {
	if m.failFor[record.StudentID] {
		return errors.New("write failed")
	}
	key := record.Parent().ID + "|" + record.StudentID
	if _, ok := m.records[key]; !ok {
		m.order = append(m.order, key)
	}
	m.records[key] = *record
	return nil
}

func (m *memAttendance) ListByParent(ctx context.Context, exec sqlx.ExtContext, parent models.ParentRef) ([]models.LessonAttendance, error) {
	var out []models.LessonAttendance
	for _, key := range m.order {
		rec := m.records[key]
		if rec.Parent() == parent {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memBehavior struct {
	records map[string]models.BehaviorRecord
	order   []string
}

func newMemBehavior() *memBehavior {
	return &memBehavior{records: map[string]models.BehaviorRecord{}}
}

func (m *memBehavior) Upsert(ctx context.Context, record *models.BehaviorRecord) error {
	key := record.LessonSessionID + "|" + record.StudentID
	if _, ok := m.records[key]; !ok {
		m.order = append(m.order, key)
	}
	record.Type = models.BehaviorTypeFor(record.Points)
	m.records[key] = *record
	return nil
}

func (m *memBehavior) ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.BehaviorRecord, error) {
	var out []models.BehaviorRecord
	for _, key := range m.order {
		if rec := m.records[key]; rec.LessonSessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memRoster struct {
	byClass map[string][]string
	calls   int
}

func (m *memRoster) ActiveStudentIDs(ctx context.Context, classID string) ([]string, error) {
	m.calls++
	return m.byClass[classID], nil
}

func (m *memRoster) IsActiveMember(ctx context.Context, classID, studentID string) (bool, error) {
	for _, id := range m.byClass[classID] {
		if id == studentID {
			return true, nil
		}
	}
	return false, nil
}

type memCache struct {
	entries map[string][]byte
	deletes []string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (m *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.entries, key)
		m.deletes = append(m.deletes, key)
	}
	return nil
}
