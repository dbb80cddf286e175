package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"signalmarket/internal/repository"
)

type SignalHandler struct {
	Repo repository.Repository
}

func (h *SignalHandler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	group := r.Group("/api/signals", mw...)
	group.GET("", h.listSignals)
	group.GET("/:id", h.getSignal)
}

func (h *SignalHandler) listSignals(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	params := repository.ListSignalsParams{
		Limit:      limit,
		Offset:     offset,
		StrategyID: strQueryPtr(c, "strategyId"),
		Symbol:     strQueryPtr(c, "symbol"),
		Type:       strQueryPtr(c, "type"),
		Status:     strQueryPtr(c, "status"),
		Since:      timeQueryPtr(c, "since"),
	}

	items, err := h.Repo.ListSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *SignalHandler) getSignal(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.GetSignalByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "signal not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}
