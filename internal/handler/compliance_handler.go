package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/accompli/iep-api/internal/service"
	"github.com/accompli/iep-api/pkg/response"
)

// ComplianceHandler exposes deadline checks.
type ComplianceHandler struct {
	compliance *service.ComplianceService
}

// NewComplianceHandler constructs ComplianceHandler.
func NewComplianceHandler(compliance *service.ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{compliance: compliance}
}

// CheckStudent godoc
// @Summary Check one student's compliance obligations
// @Tags Compliance
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/compliance [get]
func (h *ComplianceHandler) CheckStudent(c *gin.Context) {
	result, err := h.compliance.CheckStudent(c.Request.Context(), c.Param("studentId"), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Sweep godoc
// @Summary Sweep every active IEP for due or overdue obligations
// @Tags Compliance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /compliance/sweep [get]
func (h *ComplianceHandler) Sweep(c *gin.Context) {
	flagged, err := h.compliance.Sweep(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flagged, nil)
}
