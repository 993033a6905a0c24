package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type attendanceWriter interface {
	Upsert(ctx context.Context, record *models.LessonAttendance) error
}

type lessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.LessonSession, error)
}

// MarkAttendanceRequest is the payload for a batch of marks.
type MarkAttendanceRequest struct {
	Marks []models.StudentMark `json:"marks"`
}

// QuickMarkAllRequest marks the whole roster with one status except the listed students.
type QuickMarkAllRequest struct {
	Status           models.AttendanceStatus `json:"status"`
	ExceptStudentIDs []string                `json:"except_student_ids"`
}

// markTarget is a loaded attendance parent.
type markTarget struct {
	ref     models.ParentRef
	classID string
	status  string
	accepts bool
	lesson  *models.Lesson
	session *models.LessonSession
}

// AttendanceService records per-student marks for lessons and sessions.
// Marks are written one at a time so a single failure never aborts the batch.
type AttendanceService struct {
	lessons  lessonReader
	sessions sessionReader
	records  attendanceWriter
	roster   rosterReader
	stats    *StatsRefresher
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(lessons lessonReader, sessions sessionReader, records attendanceWriter, roster rosterReader, stats *StatsRefresher, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		lessons:  lessons,
		sessions: sessions,
		records:  records,
		roster:   roster,
		stats:    stats,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// MarkAttendance validates every mark against the parent's vocabulary before writing anything,
// then upserts each mark and reports per-student failures in the result.
func (s *AttendanceService) MarkAttendance(ctx context.Context, actor models.ScopeProvider, parent models.ParentRef, marks []models.StudentMark) (*models.MarkAttendanceResult, error) {
	if err := validateParentRef(parent); err != nil {
		return nil, err
	}
	if len(marks) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one mark is required")
	}
	var invalid []models.AttendanceMarkError
	for _, mark := range marks {
		studentID := strings.TrimSpace(mark.StudentID)
		switch {
		case studentID == "":
			invalid = append(invalid, models.AttendanceMarkError{Reason: "student_id is required"})
		case !parent.AcceptsStatus(mark.Status):
			invalid = append(invalid, models.AttendanceMarkError{
				StudentID: studentID,
				Reason:    fmt.Sprintf("status %q is not valid for a %s", mark.Status, parent.Kind),
			})
		}
	}
	if len(invalid) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid attendance marks", invalid)
	}

	target, err := s.loadMarkable(ctx, actor, parent)
	if err != nil {
		return nil, err
	}
	_, roster, err := s.rosterSet(ctx, target.classID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, target, marks, roster, nil), nil
}

// QuickMarkAll gives every actively enrolled student of the lesson's class the same status.
// Students in except keep whatever they already had, or stay unmarked.
func (s *AttendanceService) QuickMarkAll(ctx context.Context, actor models.ScopeProvider, lessonID string, status models.AttendanceStatus, except []string) (*models.MarkAttendanceResult, error) {
	if !status.ValidForLesson() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status %q is not valid for a lesson", status))
	}
	target, err := s.loadMarkable(ctx, actor, models.LessonRef(lessonID))
	if err != nil {
		return nil, err
	}
	ordered, roster, err := s.rosterSet(ctx, target.classID)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(except))
	for _, id := range except {
		excluded[strings.TrimSpace(id)] = struct{}{}
	}
	marks := make([]models.StudentMark, 0, len(ordered))
	var skipped []string
	for _, studentID := range ordered {
		if _, skip := excluded[studentID]; skip {
			skipped = append(skipped, studentID)
			continue
		}
		marks = append(marks, models.StudentMark{StudentID: studentID, Status: status})
	}
	return s.apply(ctx, actor, target, marks, roster, skipped), nil
}

// GetAttendanceSummary summarises the attendance view of a lesson or session.
func (s *AttendanceService) GetAttendanceSummary(ctx context.Context, actor models.ScopeProvider, parent models.ParentRef) (*models.AttendanceSummary, error) {
	if err := validateParentRef(parent); err != nil {
		return nil, err
	}
	target, err := s.load(ctx, actor, parent)
	if err != nil {
		return nil, err
	}

	key := SummaryKey(parent)
	var cached models.AttendanceSummary
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.view(ctx, target)
	if err != nil {
		return nil, err
	}
	summary := SummarizeRows(rows)
	s.cache.Set(ctx, key, summary)
	return &summary, nil
}

// ListAttendance returns per-student rows. Lesson views include synthesized absences for unmarked
// roster students; session views only contain explicit marks.
func (s *AttendanceService) ListAttendance(ctx context.Context, actor models.ScopeProvider, parent models.ParentRef) ([]models.AttendanceRow, error) {
	if err := validateParentRef(parent); err != nil {
		return nil, err
	}
	target, err := s.load(ctx, actor, parent)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, target)
}

func (s *AttendanceService) apply(ctx context.Context, actor models.ScopeProvider, target *markTarget, marks []models.StudentMark, roster map[string]struct{}, skipped []string) *models.MarkAttendanceResult {
	result := &models.MarkAttendanceResult{Parent: target.ref, Skipped: skipped, Errors: []models.AttendanceMarkError{}}
	markedBy := actor.CurrentUserID()

	for _, mark := range marks {
		studentID := strings.TrimSpace(mark.StudentID)
		if _, ok := roster[studentID]; !ok {
			result.Errors = append(result.Errors, models.AttendanceMarkError{StudentID: studentID, Reason: "student is not actively enrolled in the class"})
			continue
		}
		record := &models.LessonAttendance{StudentID: studentID, Status: mark.Status, Note: trimmedOrNil(mark.Note)}
		parentID := target.ref.ID
		if target.ref.Kind == models.ParentSession {
			record.LessonSessionID = &parentID
		} else {
			record.LessonID = &parentID
		}
		if markedBy != "" {
			record.MarkedBy = &markedBy
		}
		if err := s.records.Upsert(ctx, record); err != nil {
			s.logger.Warn("attendance mark failed",
				zap.String("parent", string(target.ref.Kind)),
				zap.String("parent_id", target.ref.ID),
				zap.String("student_id", studentID),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, models.AttendanceMarkError{StudentID: studentID, Reason: "failed to record attendance"})
			continue
		}
		result.Marked++
	}

	if result.Marked > 0 {
		s.cache.Invalidate(ctx, SummaryKey(target.ref))
		summary, err := s.refresh(ctx, target)
		if err != nil {
			s.logger.Error("attendance counters not refreshed", zap.String("parent_id", target.ref.ID), zap.Error(err))
		} else {
			result.Summary = &summary
		}
	}
	s.metrics.RecordAttendanceMarks(target.ref.Kind, result.Marked, len(result.Errors))
	return result
}

func (s *AttendanceService) refresh(ctx context.Context, target *markTarget) (models.AttendanceSummary, error) {
	if target.session != nil {
		return s.stats.RefreshSession(ctx, nil, target.session)
	}
	return s.stats.RefreshLesson(ctx, nil, target.lesson)
}

func (s *AttendanceService) view(ctx context.Context, target *markTarget) ([]models.AttendanceRow, error) {
	var (
		rows []models.AttendanceRow
		err  error
	)
	if target.session != nil {
		rows, err = s.stats.SessionView(ctx, nil, target.session)
	} else {
		rows, err = s.stats.LessonView(ctx, nil, target.lesson)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return rows, nil
}

func (s *AttendanceService) loadMarkable(ctx context.Context, actor models.ScopeProvider, parent models.ParentRef) (*markTarget, error) {
	target, err := s.load(ctx, actor, parent)
	if err != nil {
		return nil, err
	}
	if !target.accepts {
		return nil, transitionError(string(parent.Kind), target.status, "attendance marking")
	}
	return target, nil
}

func (s *AttendanceService) load(ctx context.Context, actor models.ScopeProvider, parent models.ParentRef) (*markTarget, error) {
	if parent.Kind == models.ParentSession {
		session, err := s.sessions.FindByID(ctx, parent.ID)
		if err != nil {
			return nil, sessionLoadError(err)
		}
		if !models.Owns(actor, session.TenantID, session.SchoolID) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return &markTarget{
			ref:     parent,
			classID: session.ClassID,
			status:  string(session.Status),
			accepts: session.Status == models.SessionStatusInProgress,
			session: session,
		}, nil
	}

	lesson, err := s.lessons.FindByID(ctx, parent.ID)
	if err != nil {
		return nil, lessonLoadError(err)
	}
	if !models.Owns(actor, lesson.TenantID, lesson.SchoolID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	return &markTarget{
		ref:     parent,
		classID: lesson.ClassID,
		status:  string(lesson.Status),
		accepts: lesson.Status.AcceptsMarks(),
		lesson:  lesson,
	}, nil
}

func (s *AttendanceService) rosterSet(ctx context.Context, classID string) ([]string, map[string]struct{}, error) {
	ids, err := s.roster.ActiveStudentIDs(ctx, classID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return ids, set, nil
}

func validateParentRef(parent models.ParentRef) error {
	if parent.Kind != models.ParentLesson && parent.Kind != models.ParentSession {
		return appErrors.Clone(appErrors.ErrValidation, "parent must be a lesson or a session")
	}
	if strings.TrimSpace(parent.ID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "parent id is required")
	}
	return nil
}
