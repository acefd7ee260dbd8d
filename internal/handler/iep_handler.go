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

// IEPHandler exposes the IEP lifecycle endpoints.
type IEPHandler struct {
	ieps      *service.IEPService
	dashboard caseloadInvalidator
}

// NewIEPHandler constructs IEPHandler.
func NewIEPHandler(ieps *service.IEPService, dashboard caseloadInvalidator) *IEPHandler {
	return &IEPHandler{ieps: ieps, dashboard: dashboard}
}

func (h *IEPHandler) invalidateDashboard(ctx context.Context) {
	if h.dashboard != nil {
		h.dashboard.InvalidateCaseload(ctx)
	}
}

// List godoc
// @Summary List IEP history
// @Tags IEPs
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /ieps [get]
func (h *IEPHandler) List(c *gin.Context) {
	var filter models.IEPFilter
	filter.StudentID = c.Query("studentId")
	filter.Status = c.Query("status")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	ieps, pagination, err := h.ieps.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ieps, pagination)
}

// Get godoc
// @Summary Get one IEP record
// @Tags IEPs
// @Produce json
// @Param id path string true "IEP ID"
// @Success 200 {object} response.Envelope
// @Router /ieps/{id} [get]
func (h *IEPHandler) Get(c *gin.Context) {
	iep, err := h.ieps.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, iep, nil)
}

// Create godoc
// @Summary Create a draft IEP
// @Tags IEPs
// @Accept json
// @Produce json
// @Param payload body service.IEPRequest true "IEP payload"
// @Success 201 {object} response.Envelope
// @Router /ieps [post]
func (h *IEPHandler) Create(c *gin.Context) {
	var req service.IEPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims, ok := middleware.CurrentUser(c); ok {
		req.CreatedBy = claims.UserID
	}
	iep, err := h.ieps.CreateDraft(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, iep)
}

// Update godoc
// @Summary Update a draft IEP
// @Tags IEPs
// @Accept json
// @Produce json
// @Param id path string true "IEP ID"
// @Param payload body service.IEPRequest true "IEP payload"
// @Success 200 {object} response.Envelope
// @Router /ieps/{id} [put]
func (h *IEPHandler) Update(c *gin.Context) {
	var req service.IEPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	iep, err := h.ieps.UpdateDraft(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, iep, nil)
}

// Activate godoc
// @Summary Activate a draft IEP
// @Description Promotes a draft to active, expiring any previously active IEP
// @Tags IEPs
// @Produce json
// @Param id path string true "IEP ID"
// @Success 200 {object} response.Envelope
// @Router /ieps/{id}/activate [post]
func (h *IEPHandler) Activate(c *gin.Context) {
	iep, err := h.ieps.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboard(c.Request.Context())
	response.JSON(c, http.StatusOK, iep, nil)
}

// Amend godoc
// @Summary Amend the active IEP
// @Description Supersedes the active record with a replacement carrying the amendment trail
// @Tags IEPs
// @Accept json
// @Produce json
// @Param id path string true "IEP ID"
// @Param payload body service.AmendRequest true "Amendment payload"
// @Success 201 {object} response.Envelope
// @Router /ieps/{id}/amend [post]
func (h *IEPHandler) Amend(c *gin.Context) {
	var req service.AmendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims, ok := middleware.CurrentUser(c); ok {
		req.Body.CreatedBy = claims.UserID
	}
	iep, err := h.ieps.Amend(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboard(c.Request.Context())
	response.Created(c, iep)
}
