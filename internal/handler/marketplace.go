package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signalmarket/internal/stats"
)

type MarketplaceHandler struct {
	Stats *stats.Aggregator
}

func (h *MarketplaceHandler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	group := r.Group("/api/marketplace", mw...)
	group.GET("/strategies", h.listStrategies)
	group.GET("/leaderboard", h.leaderboard)
}

func (h *MarketplaceHandler) listStrategies(c *gin.Context) {
	if h.Stats == nil {
		Error(c, http.StatusInternalServerError, "stats unavailable", nil)
		return
	}
	snap, err := h.Stats.Snapshot(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, snap, map[string]any{"total": len(snap)})
}

func (h *MarketplaceHandler) leaderboard(c *gin.Context) {
	if h.Stats == nil {
		Error(c, http.StatusInternalServerError, "stats unavailable", nil)
		return
	}
	top, err := h.Stats.Leaderboard(c.Request.Context(), intQuery(c, "limit", 10))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, top, nil)
}
