package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/internal/service"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
	"github.com/noah-isme/sma-schedule-engine/pkg/response"
)

type attendanceRecorder interface {
	MarkAttendance(ctx context.Context, actor models.ScopeProvider, parent models.ParentRef, marks []models.StudentMark) (*models.MarkAttendanceResult, error)
	QuickMarkAll(ctx context.Context, actor models.ScopeProvider, lessonID string, status models.AttendanceStatus, except []string) (*models.MarkAttendanceResult, error)
	GetAttendanceSummary(ctx context.Context, actor models.ScopeProvider, parent models.ParentRef) (*models.AttendanceSummary, error)
	ListAttendance(ctx context.Context, actor models.ScopeProvider, parent models.ParentRef) ([]models.AttendanceRow, error)
}

// AttendanceHandler exposes attendance marking for lessons and sessions.
type AttendanceHandler struct {
	service attendanceRecorder
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceRecorder) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// MarkLesson godoc
// @Summary Mark attendance for a lesson
// @Description Each mark is written independently; failures are listed per student.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.MarkAttendanceRequest true "Marks"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/attendance [post]
func (h *AttendanceHandler) MarkLesson(c *gin.Context) {
	h.mark(c, models.LessonRef(c.Param("id")))
}

// MarkSession godoc
// @Summary Mark attendance for a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.MarkAttendanceRequest true "Marks"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [post]
func (h *AttendanceHandler) MarkSession(c *gin.Context) {
	h.mark(c, models.SessionRef(c.Param("id")))
}

// QuickMarkLesson godoc
// @Summary Mark the whole roster of a lesson with one status
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.QuickMarkAllRequest true "Status and exceptions"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/attendance/quick-mark [post]
func (h *AttendanceHandler) QuickMarkLesson(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.QuickMarkAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.QuickMarkAll(c.Request.Context(), actor, c.Param("id"), req.Status, req.ExceptStudentIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListLesson godoc
// @Summary Attendance rows for a lesson, with unmarked roster students shown absent
// @Tags Attendance
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/attendance [get]
func (h *AttendanceHandler) ListLesson(c *gin.Context) {
	h.list(c, models.LessonRef(c.Param("id")))
}

// ListSession godoc
// @Summary Attendance rows explicitly recorded for a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) ListSession(c *gin.Context) {
	h.list(c, models.SessionRef(c.Param("id")))
}

// SummaryLesson godoc
// @Summary Attendance summary of a lesson
// @Tags Attendance
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/attendance/summary [get]
func (h *AttendanceHandler) SummaryLesson(c *gin.Context) {
	h.summary(c, models.LessonRef(c.Param("id")))
}

// SummarySession godoc
// @Summary Attendance summary of a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance/summary [get]
func (h *AttendanceHandler) SummarySession(c *gin.Context) {
	h.summary(c, models.SessionRef(c.Param("id")))
}

func (h *AttendanceHandler) mark(c *gin.Context, parent models.ParentRef) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.MarkAttendance(c.Request.Context(), actor, parent, req.Marks)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *AttendanceHandler) list(c *gin.Context, parent models.ParentRef) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rows, err := h.service.ListAttendance(c.Request.Context(), actor, parent)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

func (h *AttendanceHandler) summary(c *gin.Context, parent models.ParentRef) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	summary, err := h.service.GetAttendanceSummary(c.Request.Context(), actor, parent)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
