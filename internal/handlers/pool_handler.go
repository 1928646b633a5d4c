package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/services"
)

type PoolHandler struct {
	BaseHandler
	poolService services.PoolService
}

func NewPoolHandler(poolService services.PoolService, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		BaseHandler: NewBaseHandler(logger),
		poolService: poolService,
	}
}

// CreatePool creates a question pool
// @Summary Create pool
// @Tags pools
// @Accept json
// @Produce json
// @Param pool body services.CreatePoolRequest true "Pool data"
// @Success 201 {object} models.Pool
// @Failure 400 {object} ErrorResponse
// @Router /pools [post]
func (h *PoolHandler) CreatePool(c *gin.Context) {
	var req services.CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	pool, err := h.poolService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pool)
}

func (h *PoolHandler) GetPool(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	pool, err := h.poolService.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

func (h *PoolHandler) ListPools(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	filters := parsePoolFilters(c)
	pools, total, err := h.poolService.List(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: pools, Total: total})
}

func (h *PoolHandler) UpdatePool(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.UpdatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	pool, err := h.poolService.Update(c.Request.Context(), userID, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

// DeletePool removes a pool. Pools drawn on by published assessments are
// protected.
func (h *PoolHandler) DeletePool(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.poolService.Delete(c.Request.Context(), userID, id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PoolHandler) GetPoolStats(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	stats, err := h.poolService.GetStats(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parsePoolFilters(c *gin.Context) repositories.PoolFilters {
	filters := repositories.PoolFilters{
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if context := c.Query("context"); context != "" {
		filters.Context = &context
	}
	if creator := c.Query("created_by"); creator != "" {
		filters.CreatedBy = &creator
	}
	if difficulty := c.Query("difficulty"); difficulty != "" {
		if n, err := strconv.Atoi(difficulty); err == nil {
			d := models.DifficultyLevel(n)
			filters.Difficulty = &d
		}
	}
	if title := c.Query("title"); title != "" {
		filters.Title = &title
	}
	filters.Limit = parseIntQuery(c, "limit", 20)
	filters.Offset = parseIntQuery(c, "offset", 0)
	return filters
}
