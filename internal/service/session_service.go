package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.LessonSession) error
	FindByID(ctx context.Context, id string) (*models.LessonSession, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LessonSession, error)
	Finish(ctx context.Context, exec sqlx.ExtContext, session *models.LessonSession) (bool, error)
	UpdateNote(ctx context.Context, id string, note *string, tags []string) (bool, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type behaviorWriter interface {
	Upsert(ctx context.Context, record *models.BehaviorRecord) error
	ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.BehaviorRecord, error)
}

type rosterMembership interface {
	IsActiveMember(ctx context.Context, classID, studentID string) (bool, error)
}

// SessionServiceConfig bounds behavior point entries.
type SessionServiceConfig struct {
	MinPoints int
	MaxPoints int
}

// BehaviorPointRequest is the payload for recording a behavior point.
type BehaviorPointRequest struct {
	StudentID string  `json:"student_id"`
	Points    int     `json:"points"`
	Category  *string `json:"category"`
	Note      *string `json:"note"`
}

// SessionService drives teacher-started lesson sessions.
type SessionService struct {
	db        database.TxBeginner
	sessions  sessionStore
	schedules generatorScheduleReader
	classes   classReader
	behavior  behaviorWriter
	roster    rosterMembership
	stats     *StatsRefresher
	cfg       SessionServiceConfig
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewSessionService constructs the session lifecycle service.
func NewSessionService(
	db database.TxBeginner,
	sessions sessionStore,
	schedules generatorScheduleReader,
	classes classReader,
	behavior behaviorWriter,
	roster rosterMembership,
	stats *StatsRefresher,
	cfg SessionServiceConfig,
	metrics *MetricsService,
	logger *zap.Logger,
) *SessionService {
	if cfg.MinPoints == 0 && cfg.MaxPoints == 0 {
		cfg.MinPoints, cfg.MaxPoints = -10, 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		db:        db,
		sessions:  sessions,
		schedules: schedules,
		classes:   classes,
		behavior:  behavior,
		roster:    roster,
		stats:     stats,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// StartSession creates an in-progress session. Teacher, school and tenant are taken from the first
// source that provides them: the caller's params, the linked schedule, the class, then the actor.
func (s *SessionService) StartSession(ctx context.Context, actor models.ScopeProvider, params models.StartSessionParams) (*models.LessonSession, error) {
	var schedule *models.Schedule
	if scheduleID := stringValue(trimmedOrNil(params.ScheduleID)); scheduleID != "" {
		loaded, err := s.schedules.FindByID(ctx, scheduleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
		}
		if !models.Owns(actor, loaded.TenantID, loaded.SchoolID) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		schedule = loaded
	}
	if schedule == nil {
		schedule = &models.Schedule{}
	}

	classID := firstNonEmpty(params.ClassID, schedule.ClassID)
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
	}

	teacherID := firstNonEmpty(params.TeacherID, stringValue(schedule.TeacherID))
	schoolID := firstNonEmpty(params.SchoolID, schedule.SchoolID)
	tenantID := firstNonEmpty(params.TenantID, schedule.TenantID)

	if teacherID == "" || schoolID == "" || tenantID == "" {
		class, err := s.classes.FindByID(ctx, classID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
		teacherID = firstNonEmpty(teacherID, stringValue(class.HomeroomTeacherID))
		schoolID = firstNonEmpty(schoolID, class.SchoolID)
		tenantID = firstNonEmpty(tenantID, class.TenantID)
	}

	teacherID = firstNonEmpty(teacherID, actor.CurrentTeacherID())
	schoolID = firstNonEmpty(schoolID, actor.CurrentSchoolID())
	tenantID = firstNonEmpty(tenantID, actor.CurrentTenantID())

	var missing []string
	if teacherID == "" {
		missing = append(missing, "teacher_id")
	}
	if schoolID == "" {
		missing = append(missing, "school_id")
	}
	if tenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if len(missing) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation,
			fmt.Sprintf("could not resolve %s", strings.Join(missing, ", ")),
			map[string][]string{"missing": missing},
		)
	}
	if !models.Owns(actor, tenantID, schoolID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session scope is outside the caller's school")
	}

	session := &models.LessonSession{
		TenantID:   tenantID,
		SchoolID:   schoolID,
		TeacherID:  teacherID,
		ClassID:    classID,
		Status:     models.SessionStatusInProgress,
		LessonNote: trimmedOrNil(params.LessonNote),
		LessonTags: pq.StringArray(cleanTags(params.LessonTags)),
	}
	if schedule.ID != "" {
		id := schedule.ID
		session.ScheduleID = &id
	}
	session.SubjectID = trimmedOrNil(params.SubjectID)
	if session.SubjectID == nil && schedule.SubjectID != "" {
		subject := schedule.SubjectID
		session.SubjectID = &subject
	}
	session.Classroom = trimmedOrNil(params.Classroom)
	if session.Classroom == nil {
		session.Classroom = schedule.Classroom
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start session")
	}
	s.metrics.RecordSessionTransition(models.SessionStatusInProgress)
	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("class_id", session.ClassID),
		zap.String("teacher_id", session.TeacherID),
	)
	return session, nil
}

// GetSession loads a session visible to the actor.
func (s *SessionService) GetSession(ctx context.Context, actor models.ScopeProvider, id string) (*models.LessonSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, sessionLoadError(err)
	}
	if !models.Owns(actor, session.TenantID, session.SchoolID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return session, nil
}

// UpdateSessionNote replaces the note and tags while the session is running.
func (s *SessionService) UpdateSessionNote(ctx context.Context, actor models.ScopeProvider, id string, note *string, tags []string) (*models.LessonSession, error) {
	session, err := s.GetSession(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusInProgress {
		return nil, transitionError("session", string(session.Status), "note update")
	}
	note = trimmedOrNil(note)
	tags = cleanTags(tags)
	ok, err := s.sessions.UpdateNote(ctx, id, note, tags)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session note")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "session is no longer in progress")
	}
	session.LessonNote = note
	session.LessonTags = pq.StringArray(tags)
	return session, nil
}

// CompleteSession stamps the end time and duration and stores both aggregators' output atomically.
func (s *SessionService) CompleteSession(ctx context.Context, actor models.ScopeProvider, id string) (*models.LessonSession, error) {
	return s.finish(ctx, actor, id, models.SessionStatusCompleted, nil)
}

// CancelSession stops a running session. The reason is optional.
func (s *SessionService) CancelSession(ctx context.Context, actor models.ScopeProvider, id string, reason *string) (*models.LessonSession, error) {
	return s.finish(ctx, actor, id, models.SessionStatusCancelled, trimmedOrNil(reason))
}

func (s *SessionService) finish(ctx context.Context, actor models.ScopeProvider, id string, to models.SessionStatus, reason *string) (*models.LessonSession, error) {
	if _, err := s.GetSession(ctx, actor, id); err != nil {
		return nil, err
	}

	var finished *models.LessonSession
	err := database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		session, err := s.sessions.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return sessionLoadError(err)
		}
		if session.Status != models.SessionStatusInProgress {
			return transitionError("session", string(session.Status), string(to))
		}

		endedAt := time.Now().UTC()
		duration := int64(endedAt.Sub(session.StartedAt).Seconds())
		if duration < 0 {
			duration = 0
		}
		session.EndedAt = &endedAt
		session.DurationSeconds = &duration
		session.Status = to
		session.CancelReason = reason

		if to == models.SessionStatusCompleted {
			if _, err := s.stats.ComputeSession(ctx, tx, session); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute session statistics")
			}
		}

		ok, err := s.sessions.Finish(ctx, tx, session)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "session is no longer in progress")
		}
		finished = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSessionTransition(to)
	s.logger.Info("session finished",
		zap.String("session_id", id),
		zap.String("status", string(to)),
		zap.Int64("duration_seconds", *finished.DurationSeconds),
	)
	return finished, nil
}

// AddBehaviorPoint records or replaces a student's behavior entry and refreshes the session counters.
func (s *SessionService) AddBehaviorPoint(ctx context.Context, actor models.ScopeProvider, sessionID string, req BehaviorPointRequest) (*models.BehaviorRecord, error) {
	if strings.TrimSpace(req.StudentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if req.Points < s.cfg.MinPoints || req.Points > s.cfg.MaxPoints {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("points must be between %d and %d", s.cfg.MinPoints, s.cfg.MaxPoints))
	}

	session, err := s.GetSession(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusInProgress {
		return nil, transitionError("session", string(session.Status), "behavior entry")
	}

	member, err := s.roster.IsActiveMember(ctx, session.ClassID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roster")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not actively enrolled in the class")
	}

	record := &models.BehaviorRecord{
		LessonSessionID: session.ID,
		StudentID:       strings.TrimSpace(req.StudentID),
		Points:          req.Points,
		Category:        trimmedOrNil(req.Category),
		Note:            trimmedOrNil(req.Note),
	}
	if userID := actor.CurrentUserID(); userID != "" {
		record.RecordedBy = &userID
	}
	if err := s.behavior.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record behavior point")
	}
	if _, err := s.stats.RefreshSession(ctx, nil, session); err != nil {
		s.logger.Warn("session counters not refreshed", zap.String("session_id", session.ID), zap.Error(err))
	}
	return record, nil
}

// ListBehavior returns the behavior entries of a session.
func (s *SessionService) ListBehavior(ctx context.Context, actor models.ScopeProvider, sessionID string) ([]models.BehaviorRecord, error) {
	if _, err := s.GetSession(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	records, err := s.behavior.ListBySession(ctx, nil, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list behavior records")
	}
	return records, nil
}

func sessionLoadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
}

func cleanTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		cleaned = append(cleaned, tag)
	}
	return cleaned
}
