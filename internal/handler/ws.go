package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"signalmarket/internal/dispatch"
	"signalmarket/internal/repository"
)

const wsWriteTimeout = 5 * time.Second

type WSHandler struct {
	Hub    *dispatch.Hub
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *WSHandler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	r.GET("/ws/signals", append(mw, h.stream)...)
}

// stream upgrades the request and pumps hub events to the client. Filters
// come from query params, or from the user's active subscriptions when
// userId is given.
func (h *WSHandler) stream(c *gin.Context) {
	if h.Hub == nil {
		Error(c, http.StatusInternalServerError, "dispatch unavailable", nil)
		return
	}

	sub, err := h.buildSubscription(c)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("ws accept failed", zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	id, events, cancel := h.Hub.Subscribe(sub)
	defer cancel()
	if h.Logger != nil {
		h.Logger.Info("ws subscriber connected", zap.String("subscriber_id", id))
	}

	ctx := c.Request.Context()

	// The read pump surfaces client disconnects and applies subscribe and
	// unsubscribe messages to the live filter set.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		current := sub
		for {
			var msg wsClientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			switch msg.Type {
			case "subscribe":
				current.StrategyIDs = mergeList(current.StrategyIDs, msg.StrategyIDs)
				current.Symbols = mergeList(current.Symbols, msg.Symbols)
				h.Hub.Update(id, current)
			case "unsubscribe":
				current.StrategyIDs = removeList(current.StrategyIDs, msg.StrategyIDs)
				current.Symbols = removeList(current.Symbols, msg.Symbols)
				h.Hub.Update(id, current)
			default:
				// Pings and unknown messages only keep the connection alive.
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutdown")
			return
		case <-readDone:
			return
		case ev, ok := <-events:
			if !ok {
				// Evicted as a slow consumer.
				conn.Close(websocket.StatusPolicyViolation, "too slow")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}

// wsClientMessage is what clients may send over the socket: subscribe and
// unsubscribe adjust the filters, ping keeps the connection alive.
type wsClientMessage struct {
	Type        string   `json:"type"`
	StrategyIDs []string `json:"strategyIds"`
	Symbols     []string `json:"symbols"`
}

func mergeList(existing, added []string) []string {
	for _, item := range added {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		found := false
		for _, have := range existing {
			if have == item {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, item)
		}
	}
	return existing
}

func removeList(existing, removed []string) []string {
	if len(removed) == 0 {
		return existing
	}
	drop := map[string]struct{}{}
	for _, item := range removed {
		drop[strings.TrimSpace(item)] = struct{}{}
	}
	out := existing[:0]
	for _, item := range existing {
		if _, ok := drop[item]; !ok {
			out = append(out, item)
		}
	}
	return out
}

func (h *WSHandler) buildSubscription(c *gin.Context) (dispatch.Subscription, error) {
	sub := dispatch.Subscription{
		StrategyIDs: splitList(c.Query("strategyId")),
		Symbols:     splitList(c.Query("symbol")),
	}

	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" || h.Repo == nil {
		return sub, nil
	}

	items, err := h.Repo.ListSubscriptionsByUser(c.Request.Context(), userID)
	if err != nil {
		return sub, err
	}
	for _, item := range items {
		sub.StrategyIDs = append(sub.StrategyIDs, item.StrategyID)
		if len(item.SubscribedPairs) > 0 {
			var pairs []string
			if json.Unmarshal(item.SubscribedPairs, &pairs) == nil {
				sub.Symbols = append(sub.Symbols, pairs...)
			}
		}
	}
	return sub, nil
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
