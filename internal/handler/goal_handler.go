package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/accompli/iep-api/internal/middleware"
	"github.com/accompli/iep-api/internal/models"
	"github.com/accompli/iep-api/internal/service"
	appErrors "github.com/accompli/iep-api/pkg/errors"
	"github.com/accompli/iep-api/pkg/response"
)

// caseloadInvalidator drops cached dashboard aggregates after a write so
// the next overview is recomputed.
type caseloadInvalidator interface {
	InvalidateCaseload(ctx context.Context)
}

// GoalHandler exposes goal and progress endpoints.
type GoalHandler struct {
	goals     *service.GoalService
	metrics   *service.MetricsService
	dashboard caseloadInvalidator
}

// NewGoalHandler constructs GoalHandler.
func NewGoalHandler(goals *service.GoalService, metrics *service.MetricsService, dashboard caseloadInvalidator) *GoalHandler {
	return &GoalHandler{goals: goals, metrics: metrics, dashboard: dashboard}
}

func (h *GoalHandler) invalidateDashboard(ctx context.Context) {
	if h.dashboard != nil {
		h.dashboard.InvalidateCaseload(ctx)
	}
}

// List godoc
// @Summary List goals
// @Tags Goals
// @Produce json
// @Param iepId query string false "Filter by IEP"
// @Param studentId query string false "Filter by student"
// @Param area query string false "Filter by goal area"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /goals [get]
func (h *GoalHandler) List(c *gin.Context) {
	var filter models.GoalFilter
	filter.IEPID = c.Query("iepId")
	filter.StudentID = c.Query("studentId")
	filter.Area = c.Query("area")
	filter.Status = c.Query("status")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	goals, pagination, err := h.goals.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, goals, pagination)
}

// Get godoc
// @Summary Get goal with history and derived status
// @Tags Goals
// @Produce json
// @Param id path string true "Goal ID"
// @Success 200 {object} response.Envelope
// @Router /goals/{id} [get]
func (h *GoalHandler) Get(c *gin.Context) {
	detail, err := h.goals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create goal
// @Tags Goals
// @Accept json
// @Produce json
// @Param payload body service.CreateGoalRequest true "Goal payload"
// @Success 201 {object} response.Envelope
// @Router /goals [post]
func (h *GoalHandler) Create(c *gin.Context) {
	var req service.CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	goal, err := h.goals.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboard(c.Request.Context())
	response.Created(c, goal)
}

// RecordProgress godoc
// @Summary Record a progress data point
// @Description Appends an immutable data point and recomputes the derived status
// @Tags Goals
// @Accept json
// @Produce json
// @Param id path string true "Goal ID"
// @Param payload body service.RecordProgressRequest true "Data point payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /goals/{id}/progress [post]
func (h *GoalHandler) RecordProgress(c *gin.Context) {
	var req service.RecordProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims, ok := middleware.CurrentUser(c); ok {
		req.CreatedBy = claims.UserID
	}
	detail, err := h.goals.RecordProgress(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordProgressPoint()
	}
	h.invalidateDashboard(c.Request.Context())
	response.JSON(c, http.StatusCreated, detail, nil)
}

// Close godoc
// @Summary Close a goal
// @Description Marks the goal mastered or discontinued; closed goals reject further writes
// @Tags Goals
// @Accept json
// @Produce json
// @Param id path string true "Goal ID"
// @Param payload body service.CloseGoalRequest true "Close payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /goals/{id}/close [post]
func (h *GoalHandler) Close(c *gin.Context) {
	var req service.CloseGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	goal, err := h.goals.Close(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboard(c.Request.Context())
	response.JSON(c, http.StatusOK, goal, nil)
}
