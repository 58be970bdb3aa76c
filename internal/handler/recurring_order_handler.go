package handler

import (
	"context"
	"errors"
	"net/http"

	"reorder/internal/engine"
	"reorder/internal/middleware"
	"reorder/internal/model"
	"reorder/internal/service"
	"reorder/pkg/pagination"
	"reorder/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RecurringOrderHandler struct {
	orderService     service.RecurringOrderService
	executionService service.ExecutionService
}

func NewRecurringOrderHandler(orderService service.RecurringOrderService, executionService service.ExecutionService) *RecurringOrderHandler {
	return &RecurringOrderHandler{orderService: orderService, executionService: executionService}
}

func (h *RecurringOrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/recurring-orders", middleware.RequireSupplier())
	{
		orders.POST("", h.Create)
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
		orders.PATCH("/:id", h.Update)
		orders.PUT("/:id/pause", h.Pause)
		orders.PUT("/:id/resume", h.Resume)
		orders.PUT("/:id/cancel", h.Cancel)
		orders.POST("/:id/execute", h.Execute)
		orders.GET("/:id/executions", h.ListExecutions)
	}
}

// Create registers a new recurring order for the authenticated supplier
func (h *RecurringOrderHandler) Create(c *gin.Context) {
	supplierID, _ := middleware.SupplierID(c)

	var dto service.CreateRecurringOrderDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	order, err := h.orderService.Create(c.Request.Context(), supplierID, dto)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// List returns the supplier's recurring orders with optional filters
func (h *RecurringOrderHandler) List(c *gin.Context) {
	supplierID, _ := middleware.SupplierID(c)
	page := pagination.Parse(c)

	filter := service.ListRecurringOrdersFilter{
		Warehouse: c.Query("warehouse"),
		Frequency: c.Query("frequency"),
		Tag:       c.Query("tag"),
		Page:      page.Page,
		Limit:     page.Limit,
	}

	orders, total, err := h.orderService.List(c.Request.Context(), supplierID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, orders, total, page.Page, page.Limit))
}

// Get returns one recurring order
func (h *RecurringOrderHandler) Get(c *gin.Context) {
	supplierID, _ := middleware.SupplierID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid recurring order id"))
		return
	}

	order, err := h.orderService.Get(c.Request.Context(), id, supplierID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// Update applies a partial patch to a recurring order
func (h *RecurringOrderHandler) Update(c *gin.Context) {
	supplierID, _ := middleware.SupplierID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid recurring order id"))
		return
	}

	var dto service.UpdateRecurringOrderDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	order, err := h.orderService.Update(c.Request.Context(), id, supplierID, dto)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// Pause suspends scheduling without losing the order
func (h *RecurringOrderHandler) Pause(c *gin.Context) {
	h.statusTransition(c, h.orderService.Pause)
}

// Resume reactivates a paused order
func (h *RecurringOrderHandler) Resume(c *gin.Context) {
	h.statusTransition(c, h.orderService.Resume)
}

// Cancel terminates the order permanently; history is retained
func (h *RecurringOrderHandler) Cancel(c *gin.Context) {
	h.statusTransition(c, h.orderService.Cancel)
}

// Execute triggers an execution attempt immediately
func (h *RecurringOrderHandler) Execute(c *gin.Context) {
	supplierID, _ := middleware.SupplierID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid recurring order id"))
		return
	}

	// Ownership check before firing
	if _, err := h.orderService.Get(c.Request.Context(), id, supplierID); err != nil {
		respondServiceError(c, err)
		return
	}

	exec, err := h.executionService.Execute(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, exec))
}

// ListExecutions returns the execution history for one recurring order
func (h *RecurringOrderHandler) ListExecutions(c *gin.Context) {
	supplierID, _ := middleware.SupplierID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid recurring order id"))
		return
	}
	page := pagination.Parse(c)

	execs, total, err := h.executionService.List(c.Request.Context(), id, supplierID, page.Page, page.Limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, execs, total, page.Page, page.Limit))
}

func (h *RecurringOrderHandler) statusTransition(c *gin.Context, fn func(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error)) {
	supplierID, _ := middleware.SupplierID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid recurring order id"))
		return
	}

	order, err := fn(c.Request.Context(), id, supplierID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// respondServiceError maps service sentinel errors onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	case errors.Is(err, engine.ErrExecutionInProgress):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	default:
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	}
}
