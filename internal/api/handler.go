package api

import (
	"net/http"
	"strconv"
	"time"

	"trace-service/internal/service"
	"trace-service/internal/telemetry"
	"trace-service/internal/util"
	"trace-service/internal/viewmodel"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	viewModels map[string]*viewmodel.ViewModel
	users      *service.UserDirectory
	history    *service.HistoryService
	poller     *telemetry.Poller
}

// NewHandler creates a new HTTP handler. Each view model is mounted under
// its role name.
func NewHandler(
	viewModels []*viewmodel.ViewModel,
	users *service.UserDirectory,
	history *service.HistoryService,
	poller *telemetry.Poller,
) *Handler {
	byRole := make(map[string]*viewmodel.ViewModel, len(viewModels))
	for _, vm := range viewModels {
		byRole[vm.Role().String()] = vm
	}
	return &Handler{
		viewModels: byRole,
		users:      users,
		history:    history,
		poller:     poller,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/:role/snapshot", h.getSnapshot)
		v1.POST("/:role/refresh", h.refresh)
		v1.POST("/:role/select", h.selectItem)
		v1.POST("/:role/input", h.bufferInput)
		v1.POST("/:role/actions", h.submitAction)

		v1.GET("/items/:id/history", h.getHistory)
		v1.GET("/users/:address", h.getUser)
		v1.POST("/admin/users", h.registerUser)
		v1.GET("/telemetry", h.getTelemetry)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) roleViewModel(c *gin.Context) (*viewmodel.ViewModel, bool) {
	vm, ok := h.viewModels[c.Param("role")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown role",
		})
		return nil, false
	}
	return vm, true
}

// getSnapshot returns the role's current view-model snapshot
func (h *Handler) getSnapshot(c *gin.Context) {
	vm, ok := h.roleViewModel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, vm.Snapshot())
}

// refresh triggers a manual snapshot refresh
func (h *Handler) refresh(c *gin.Context) {
	vm, ok := h.roleViewModel(c)
	if !ok {
		return
	}
	vm.Refresh(c.Request.Context(), "manual")
	c.JSON(http.StatusOK, vm.Snapshot())
}

type selectRequest struct {
	TokenID uint64 `json:"token_id" binding:"required"`
}

// selectItem toggles the role's item selection
func (h *Handler) selectItem(c *gin.Context) {
	vm, ok := h.roleViewModel(c)
	if !ok {
		return
	}

	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	vm.SelectItem(c.Request.Context(), req.TokenID)
	c.JSON(http.StatusOK, vm.Snapshot())
}

type inputRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

// bufferInput stores one form-field edit against the current selection
func (h *Handler) bufferInput(c *gin.Context) {
	vm, ok := h.roleViewModel(c)
	if !ok {
		return
	}

	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	vm.BufferInput(req.Field, req.Value)
	c.Status(http.StatusNoContent)
}

type actionRequest struct {
	Kind    string            `json:"kind" binding:"required"`
	Payload map[string]string `json:"payload"`
}

// submitAction dispatches a user action; the outcome lands in the snapshot's
// notification, never in the HTTP status
func (h *Handler) submitAction(c *gin.Context) {
	vm, ok := h.roleViewModel(c)
	if !ok {
		return
	}

	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	vm.SubmitAction(c.Request.Context(), viewmodel.ActionKind(req.Kind), req.Payload)
	c.JSON(http.StatusOK, vm.Snapshot())
}

// getHistory returns the traced journey of one item
func (h *Handler) getHistory(c *gin.Context) {
	tokenID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid token ID",
		})
		return
	}

	cards, err := h.history.Journey(c.Request.Context(), tokenID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load history",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token_id": tokenID,
		"steps":    cards,
	})
}

// getUser resolves an on-chain actor record
func (h *Handler) getUser(c *gin.Context) {
	record, err := h.users.Lookup(c.Request.Context(), c.Param("address"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "User not found",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, record)
}

// registerUser handles admin user registration
func (h *Handler) registerUser(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	record, err := h.users.Register(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to register user",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// getTelemetry returns the session's sensor series and extremes
func (h *Handler) getTelemetry(c *gin.Context) {
	if h.poller == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Telemetry feed is not configured",
		})
		return
	}

	resp := gin.H{"samples": h.poller.Samples()}
	if last, ok := h.poller.LastValue(); ok {
		resp["last"] = last
	}
	if minVal, maxVal, ok := h.poller.MinMax(); ok {
		resp["min"] = minVal
		resp["max"] = maxVal
	}
	c.JSON(http.StatusOK, resp)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
