package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"signalmarket/internal/models"
	"signalmarket/internal/repository"
	"signalmarket/internal/resolver"
)

type StrategyHandler struct {
	Repo     repository.Repository
	Resolver *resolver.Resolver
}

func (h *StrategyHandler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	group := r.Group("/api/strategies", mw...)
	group.GET("", h.listStrategies)
	group.GET("/:id", h.getStrategy)
	group.POST("", h.createStrategy)
	group.POST("/:id/activate", h.setActive(true))
	group.POST("/:id/deactivate", h.setActive(false))
	group.POST("/:id/promote", h.promoteStrategy)
}

func (h *StrategyHandler) listStrategies(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListStrategies(c.Request.Context(), repository.ListStrategiesParams{
		Limit:       limit,
		Offset:      offset,
		Source:      strQueryPtr(c, "source"),
		VirtualOnly: c.Query("virtual") == "true",
		ActiveOnly:  c.Query("active") == "true",
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}

func (h *StrategyHandler) getStrategy(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.GetStrategyByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "strategy not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

type createStrategyRequest struct {
	Name        string `json:"name" binding:"required"`
	Source      string `json:"source"`
	ProviderID  string `json:"providerId"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

func (h *StrategyHandler) createStrategy(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req createStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Source == "" {
		req.Source = "tradingview"
	}

	item := &models.Strategy{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Source:      req.Source,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		IsActive:    true,
	}
	if req.ProviderID != "" {
		item.ProviderID = &req.ProviderID
	}
	if err := h.Repo.CreateStrategy(c.Request.Context(), item); err != nil {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	// A token registered after alerts already created a virtual strategy must
	// not be served from the resolver cache.
	if h.Resolver != nil {
		h.Resolver.Invalidate(item.Name, item.Source)
	}
	Ok(c, item, nil)
}

func (h *StrategyHandler) setActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Repo == nil {
			Error(c, http.StatusInternalServerError, "repo unavailable", nil)
			return
		}
		id := c.Param("id")
		if err := h.Repo.SetStrategyActive(c.Request.Context(), id, active); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				Error(c, http.StatusNotFound, "strategy not found", nil)
				return
			}
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		Ok(c, gin.H{"id": id, "isActive": active}, nil)
	}
}

type promoteStrategyRequest struct {
	ProviderID string `json:"providerId" binding:"required"`
}

// promoteStrategy turns an auto-detected virtual strategy into a provider
// owned one, keeping its accumulated signal history.
func (h *StrategyHandler) promoteStrategy(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req promoteStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	id := c.Param("id")
	item, err := h.Repo.GetStrategyByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "strategy not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !item.IsVirtual {
		Error(c, http.StatusConflict, "strategy is not virtual", nil)
		return
	}
	if err := h.Repo.PromoteStrategy(c.Request.Context(), id, req.ProviderID); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if h.Resolver != nil {
		h.Resolver.Invalidate(item.Name, item.Source)
	}
	Ok(c, gin.H{"id": id, "providerId": req.ProviderID, "isVirtual": false}, nil)
}
