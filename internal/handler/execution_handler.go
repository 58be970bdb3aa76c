package handler

import (
	"net/http"

	"reorder/internal/middleware"
	"reorder/internal/service"
	"reorder/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ExecutionHandler struct {
	executionService service.ExecutionService
}

func NewExecutionHandler(executionService service.ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{executionService: executionService}
}

func (h *ExecutionHandler) RegisterRoutes(router *gin.RouterGroup) {
	executions := router.Group("/api/executions", middleware.RequireSupplier())
	{
		executions.PUT("/:id/approve", h.Approve)
		executions.PUT("/:id/reject", h.Reject)
	}
}

// Approve grants the pending approval and resumes the execution
func (h *ExecutionHandler) Approve(c *gin.Context) {
	supplierID, _ := middleware.SupplierID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid execution id"))
		return
	}

	exec, err := h.executionService.Approve(c.Request.Context(), id, supplierID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}

type rejectExecutionDTO struct {
	Reason string `json:"reason"`
}

// Reject declines the pending approval and terminally fails the execution
func (h *ExecutionHandler) Reject(c *gin.Context) {
	supplierID, _ := middleware.SupplierID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid execution id"))
		return
	}

	var req rejectExecutionDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Allow empty body — reason is optional
		req.Reason = ""
	}

	exec, err := h.executionService.Reject(c.Request.Context(), id, supplierID, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}
