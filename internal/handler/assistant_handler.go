package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/accompli/iep-api/internal/service"
	appErrors "github.com/accompli/iep-api/pkg/errors"
	"github.com/accompli/iep-api/pkg/response"
)

// AssistantHandler exposes the goal drafting assistant.
type AssistantHandler struct {
	assistant *service.AssistantService
}

// NewAssistantHandler constructs AssistantHandler.
func NewAssistantHandler(assistant *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

// SuggestGoal godoc
// @Summary Suggest a goal draft for a student
// @Description Falls back to a canned suggestion when the upstream model is unavailable
// @Tags Assistant
// @Accept json
// @Produce json
// @Param payload body service.AssistantRequest true "Suggestion request"
// @Success 200 {object} response.Envelope
// @Router /assistant/suggest-goal [post]
func (h *AssistantHandler) SuggestGoal(c *gin.Context) {
	var req service.AssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	suggestion, err := h.assistant.SuggestGoal(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestion, nil)
}
