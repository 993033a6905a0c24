package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/internal/service"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
	"github.com/noah-isme/sma-schedule-engine/pkg/response"
)

type lessonLifecycle interface {
	CreateLesson(ctx context.Context, actor models.ScopeProvider, req service.LessonRequest) (*models.Lesson, error)
	GetLesson(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error)
	ListLessons(ctx context.Context, actor models.ScopeProvider, filter models.LessonFilter) ([]models.Lesson, *models.Pagination, error)
	StartLesson(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error)
	CompleteLesson(ctx context.Context, actor models.ScopeProvider, id string, fields models.LessonCompletion) (*models.Lesson, error)
	CancelLesson(ctx context.Context, actor models.ScopeProvider, id, reason string) (*models.Lesson, error)
	PostponeLesson(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error)
	RescheduleLesson(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error)
	MarkTeacherAbsent(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// LessonHandler exposes the lesson lifecycle.
type LessonHandler struct {
	service lessonLifecycle
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(svc lessonLifecycle) *LessonHandler {
	return &LessonHandler{service: svc}
}

// List godoc
// @Summary List lessons
// @Tags Lessons
// @Produce json
// @Param class_id query string false "Filter by class"
// @Param teacher_id query string false "Filter by teacher"
// @Param schedule_id query string false "Filter by schedule"
// @Param status query string false "Filter by status"
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lessons [get]
func (h *LessonHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.LessonFilter{
		ClassID:    c.Query("class_id"),
		TeacherID:  c.Query("teacher_id"),
		ScheduleID: c.Query("schedule_id"),
		Status:     models.LessonStatus(c.Query("status")),
	}
	var err error
	if filter.DateFrom, err = parseDateQuery(c, "date_from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.DateTo, err = parseDateQuery(c, "date_to"); err != nil {
		response.Error(c, err)
		return
	}
	filter.Page, filter.PageSize = paging(c, 50)

	lessons, pagination, err := h.service.ListLessons(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, pagination)
}

// Create godoc
// @Summary Create an ad-hoc lesson
// @Description Makeup, extra or exam lessons that no schedule generates.
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body service.LessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.LessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lesson, err := h.service.CreateLesson(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Get godoc
// @Summary Get lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lesson, err := h.service.GetLesson(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Start godoc
// @Summary Start a scheduled lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/start [post]
func (h *LessonHandler) Start(c *gin.Context) {
	h.simpleTransition(c, h.service.StartLesson)
}

// Postpone godoc
// @Summary Postpone a scheduled lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/postpone [post]
func (h *LessonHandler) Postpone(c *gin.Context) {
	h.simpleTransition(c, h.service.PostponeLesson)
}

// Reschedule godoc
// @Summary Return a postponed lesson to scheduled
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/reschedule [post]
func (h *LessonHandler) Reschedule(c *gin.Context) {
	h.simpleTransition(c, h.service.RescheduleLesson)
}

// TeacherAbsent godoc
// @Summary Record that the teacher was absent
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/teacher-absent [post]
func (h *LessonHandler) TeacherAbsent(c *gin.Context) {
	h.simpleTransition(c, h.service.MarkTeacherAbsent)
}

// Complete godoc
// @Summary Complete a running lesson
// @Description Stores content, homework and notes and recomputes the attendance summary.
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body models.LessonCompletion false "Completion fields"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/complete [post]
func (h *LessonHandler) Complete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var fields models.LessonCompletion
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&fields); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	lesson, err := h.service.CompleteLesson(c.Request.Context(), actor, c.Param("id"), fields)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Cancel godoc
// @Summary Cancel a lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body cancelRequest true "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/cancel [post]
func (h *LessonHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lesson, err := h.service.CancelLesson(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

func (h *LessonHandler) simpleTransition(c *gin.Context, fn func(ctx context.Context, actor models.ScopeProvider, id string) (*models.Lesson, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lesson, err := fn(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

func parseDateQuery(c *gin.Context, param string) (*time.Time, error) {
	raw := c.Query(param)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+param+", expected YYYY-MM-DD")
	}
	return &parsed, nil
}
