package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"signalmarket/internal/audit"
	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

type SubscriptionHandler struct {
	Repo  repository.Repository
	Audit *audit.Recorder
}

func (h *SubscriptionHandler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	group := r.Group("/api/subscriptions", mw...)
	group.GET("", h.getSubscription)
	group.POST("", h.subscribe)
	group.DELETE("/:id", h.cancel)
}

func (h *SubscriptionHandler) getSubscription(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	userID := c.Query("userId")
	strategyID := c.Query("strategyId")
	if userID == "" || strategyID == "" {
		Error(c, http.StatusBadRequest, "userId and strategyId are required", nil)
		return
	}
	item, err := h.Repo.GetSubscription(c.Request.Context(), userID, strategyID)
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "subscription not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

type subscribeRequest struct {
	UserID          string   `json:"userId" binding:"required"`
	StrategyID      string   `json:"strategyId" binding:"required"`
	SubscribedPairs []string `json:"subscribedPairs"`
}

func (h *SubscriptionHandler) subscribe(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if _, err := h.Repo.GetStrategyByID(c.Request.Context(), req.StrategyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, http.StatusNotFound, "strategy not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	item := &models.Subscription{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		StrategyID: req.StrategyID,
		Status:     models.SubscriptionActive,
	}
	if len(req.SubscribedPairs) > 0 {
		if b, err := json.Marshal(req.SubscribedPairs); err == nil {
			item.SubscribedPairs = b
		}
	}
	if err := h.Repo.UpsertSubscription(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if h.Audit != nil {
		h.Audit.SubscriptionChange(req.UserID, item.ID, "subscribe", map[string]any{
			"strategyId": req.StrategyID,
			"pairs":      req.SubscribedPairs,
		})
	}
	Ok(c, item, nil)
}

func (h *SubscriptionHandler) cancel(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := c.Param("id")
	item, err := h.Repo.GetSubscriptionByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "subscription not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if err := h.Repo.CancelSubscription(c.Request.Context(), id); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if h.Audit != nil {
		h.Audit.SubscriptionChange(item.UserID, id, "unsubscribe", map[string]any{
			"strategyId": item.StrategyID,
		})
	}
	Ok(c, gin.H{"id": id, "status": models.SubscriptionCancelled}, nil)
}
