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

type sessionLifecycle interface {
	StartSession(ctx context.Context, actor models.ScopeProvider, params models.StartSessionParams) (*models.LessonSession, error)
	GetSession(ctx context.Context, actor models.ScopeProvider, id string) (*models.LessonSession, error)
	UpdateSessionNote(ctx context.Context, actor models.ScopeProvider, id string, note *string, tags []string) (*models.LessonSession, error)
	CompleteSession(ctx context.Context, actor models.ScopeProvider, id string) (*models.LessonSession, error)
	CancelSession(ctx context.Context, actor models.ScopeProvider, id string, reason *string) (*models.LessonSession, error)
	AddBehaviorPoint(ctx context.Context, actor models.ScopeProvider, sessionID string, req service.BehaviorPointRequest) (*models.BehaviorRecord, error)
	ListBehavior(ctx context.Context, actor models.ScopeProvider, sessionID string) ([]models.BehaviorRecord, error)
}

type sessionNoteRequest struct {
	LessonNote *string  `json:"lesson_note"`
	LessonTags []string `json:"lesson_tags"`
}

type sessionCancelRequest struct {
	Reason *string `json:"reason"`
}

// SessionHandler exposes teacher-started lesson sessions.
type SessionHandler struct {
	service sessionLifecycle
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(svc sessionLifecycle) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Start godoc
// @Summary Start a lesson session
// @Description Missing teacher, school or tenant ids are taken from the schedule, then the class, then the caller.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body models.StartSessionParams true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var params models.StartSessionParams
	if err := c.ShouldBindJSON(&params); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.StartSession(c.Request.Context(), actor, params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get a lesson session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	session, err := h.service.GetSession(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// UpdateNote godoc
// @Summary Update the note and tags of a running session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body sessionNoteRequest true "Note payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/note [patch]
func (h *SessionHandler) UpdateNote(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req sessionNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.UpdateSessionNote(c.Request.Context(), actor, c.Param("id"), req.LessonNote, req.LessonTags)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Complete godoc
// @Summary Complete a running session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	session, err := h.service.CompleteSession(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Cancel godoc
// @Summary Cancel a running session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body sessionCancelRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req sessionCancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	session, err := h.service.CancelSession(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// AddBehavior godoc
// @Summary Record a behavior point for a student
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.BehaviorPointRequest true "Behavior payload"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/behavior [post]
func (h *SessionHandler) AddBehavior(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.BehaviorPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.service.AddBehaviorPoint(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// ListBehavior godoc
// @Summary List behavior points of a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/behavior [get]
func (h *SessionHandler) ListBehavior(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	records, err := h.service.ListBehavior(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
