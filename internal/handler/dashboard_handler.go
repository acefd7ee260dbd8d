package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/accompli/iep-api/internal/middleware"
	"github.com/accompli/iep-api/internal/service"
	appErrors "github.com/accompli/iep-api/pkg/errors"
	"github.com/accompli/iep-api/pkg/response"
)

// DashboardHandler exposes the caseload overview.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Caseload godoc
// @Summary Caseload overview for the caller's organization
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/caseload [get]
func (h *DashboardHandler) Caseload(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	overview, err := h.dashboard.CaseloadOverview(c.Request.Context(), claims.OrganizationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}
