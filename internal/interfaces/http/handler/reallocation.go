package handler

import (
	"github.com/gin-gonic/gin"

	budgetapp "github.com/orcamento/backend/internal/application/budget"
	"github.com/orcamento/backend/internal/interfaces/http/middleware"
)

// ReallocationHandler handles budget reallocation API endpoints
type ReallocationHandler struct {
	BaseHandler
	service *budgetapp.ReallocationService
}

// NewReallocationHandler creates a new ReallocationHandler
func NewReallocationHandler(service *budgetapp.ReallocationService) *ReallocationHandler {
	return &ReallocationHandler{service: service}
}

// RegisterRoutes registers the reallocation routes
func (h *ReallocationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	budget := rg.Group("/budget")
	{
		budget.POST("/reallocations", h.Run)
		budget.POST("/reallocations/preview", h.Preview)
		budget.POST("/tables/validate", h.ValidateTable)
	}
}

// Run executes a full reallocation over the submitted balance table
func (h *ReallocationHandler) Run(c *gin.Context) {
	var req budgetapp.ReallocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.Run(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Preview returns the transfer plan for a table without an adjusted view
func (h *ReallocationHandler) Preview(c *gin.Context) {
	var req budgetapp.ReallocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ValidateTable validates a balance table without reallocating
func (h *ReallocationHandler) ValidateTable(c *gin.Context) {
	var req budgetapp.ReallocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	view, err := h.service.ValidateTable(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}
