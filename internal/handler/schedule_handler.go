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

type scheduleAdmin interface {
	List(ctx context.Context, actor models.ScopeProvider, filter models.ScheduleFilter) ([]models.Schedule, *models.Pagination, error)
	Get(ctx context.Context, actor models.ScopeProvider, id string) (*models.Schedule, error)
	ValidateSchedule(ctx context.Context, actor models.ScopeProvider, req service.ScheduleRequest, excludeScheduleID string) ([]models.ScheduleConflict, error)
	Create(ctx context.Context, actor models.ScopeProvider, req service.ScheduleRequest) (*service.ScheduleWriteResult, error)
	Update(ctx context.Context, actor models.ScopeProvider, id string, req service.ScheduleRequest) (*service.ScheduleWriteResult, error)
	UpdateStatus(ctx context.Context, actor models.ScopeProvider, id string, status models.ScheduleStatus) (*models.Schedule, error)
	Delete(ctx context.Context, actor models.ScopeProvider, id string) error
}

type lessonGenerator interface {
	GenerateLessonsForSchedule(ctx context.Context, actor models.ScopeProvider, scheduleID string) (*models.GenerationResult, error)
}

type generationEnqueuer interface {
	EnqueueGeneration(actor models.Actor, scheduleID string) (string, error)
}

type scheduleStatusRequest struct {
	Status models.ScheduleStatus `json:"status"`
}

// ScheduleHandler manages schedule endpoints.
type ScheduleHandler struct {
	service   scheduleAdmin
	generator lessonGenerator
	queue     generationEnqueuer
}

// NewScheduleHandler constructs handler. queue may be nil, in which case async generation runs inline.
func NewScheduleHandler(svc scheduleAdmin, generator lessonGenerator, queue generationEnqueuer) *ScheduleHandler {
	return &ScheduleHandler{service: svc, generator: generator, queue: queue}
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param class_id query string false "Filter by class"
// @Param teacher_id query string false "Filter by teacher"
// @Param day_of_week query string false "Filter by day"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.ScheduleFilter{
		ClassID:   c.Query("class_id"),
		TeacherID: c.Query("teacher_id"),
		Status:    models.ScheduleStatus(c.Query("status")),
	}
	if raw := c.Query("day_of_week"); raw != "" {
		day, valid := models.ParseDayOfWeek(raw)
		if !valid {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid day_of_week"))
			return
		}
		filter.DayOfWeek = day
	}
	filter.Page, filter.PageSize = paging(c, 20)

	schedules, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// Get godoc
// @Summary Get schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	schedule, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Validate godoc
// @Summary Report conflicts for a prospective schedule without saving it
// @Tags Schedules
// @Accept json
// @Produce json
// @Param exclude_id query string false "Schedule being edited"
// @Param payload body service.ScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/validate [post]
func (h *ScheduleHandler) Validate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conflicts, err := h.service.ValidateSchedule(c.Request.Context(), actor, req, c.Query("exclude_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil, map[string]interface{}{"has_conflicts": len(conflicts) > 0})
}

// Create godoc
// @Summary Create schedule
// @Description Error-severity conflicts block creation unless force is set.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.ScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Update schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.ScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UpdateStatus godoc
// @Summary Change schedule status
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body scheduleStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/status [patch]
func (h *ScheduleHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req scheduleStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.service.UpdateStatus(c.Request.Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Delete godoc
// @Summary Delete schedule
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GenerateLessons godoc
// @Summary Materialise lessons for every matching date of a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Param async query bool false "Queue the run and return immediately"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /schedules/{id}/generate-lessons [post]
func (h *ScheduleHandler) GenerateLessons(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if h.queue != nil && c.Query("async") == "true" {
		jobID, err := h.queue.EnqueueGeneration(actor, c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, gin.H{"job_id": jobID, "schedule_id": c.Param("id")})
		return
	}
	result, err := h.generator.GenerateLessonsForSchedule(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
