package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/accompli/iep-api/internal/middleware"
	"github.com/accompli/iep-api/internal/models"
	"github.com/accompli/iep-api/internal/service"
	appErrors "github.com/accompli/iep-api/pkg/errors"
	"github.com/accompli/iep-api/pkg/response"
)

// BehaviorHandler exposes the behavior event log.
type BehaviorHandler struct {
	behavior  *service.BehaviorService
	metrics   *service.MetricsService
	dashboard caseloadInvalidator
}

// NewBehaviorHandler constructs BehaviorHandler.
func NewBehaviorHandler(behavior *service.BehaviorService, metrics *service.MetricsService, dashboard caseloadInvalidator) *BehaviorHandler {
	return &BehaviorHandler{behavior: behavior, metrics: metrics, dashboard: dashboard}
}

// List godoc
// @Summary List behavior events
// @Tags Behavior
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param goalId query string false "Filter by linked goal"
// @Param severity query string false "Filter by severity"
// @Param from query string false "Start date (RFC3339)"
// @Param to query string false "End date (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /behavior-events [get]
func (h *BehaviorHandler) List(c *gin.Context) {
	var filter models.BehaviorEventFilter
	filter.StudentID = c.Query("studentId")
	filter.GoalID = c.Query("goalId")
	if severity := c.Query("severity"); severity != "" {
		filter.Severities = []models.Severity{models.Severity(severity)}
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.DateFrom = &t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.DateTo = &t
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	events, pagination, err := h.behavior.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Get one behavior event
// @Tags Behavior
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /behavior-events/{id} [get]
func (h *BehaviorHandler) Get(c *gin.Context) {
	event, err := h.behavior.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Record a behavior event
// @Tags Behavior
// @Accept json
// @Produce json
// @Param payload body service.RecordEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /behavior-events [post]
func (h *BehaviorHandler) Create(c *gin.Context) {
	var req service.RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims, ok := middleware.CurrentUser(c); ok {
		req.CreatedBy = claims.UserID
	}
	event, err := h.behavior.RecordEvent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordBehaviorEvent()
	}
	if h.dashboard != nil {
		h.dashboard.InvalidateCaseload(c.Request.Context())
	}
	response.Created(c, event)
}

// AppendFollowUp godoc
// @Summary Append a follow-up note
// @Description The only permitted mutation of a recorded event
// @Tags Behavior
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body map[string]string true "Note payload"
// @Success 204
// @Router /behavior-events/{id}/follow-up [post]
func (h *BehaviorHandler) AppendFollowUp(c *gin.Context) {
	var payload struct {
		Note string `json:"note" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "note required"))
		return
	}
	if err := h.behavior.AppendFollowUp(c.Request.Context(), c.Param("id"), payload.Note); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Summary godoc
// @Summary Summarize a student's events over a date range
// @Tags Behavior
// @Produce json
// @Param studentId path string true "Student ID"
// @Param from query string true "Start date (RFC3339)"
// @Param to query string true "End date (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/behavior-summary [get]
func (h *BehaviorHandler) Summary(c *gin.Context) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be an RFC3339 timestamp"))
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be an RFC3339 timestamp"))
		return
	}
	summary, err := h.behavior.Summarize(c.Request.Context(), service.SummaryRequest{
		StudentID: c.Param("studentId"),
		DateFrom:  from,
		DateTo:    to,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
