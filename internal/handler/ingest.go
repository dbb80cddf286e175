package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signalmarket/internal/parser"
	"signalmarket/internal/service"
	"signalmarket/internal/tracker"
)

// maxAlertBody caps webhook payloads; alert bodies are small.
const maxAlertBody = 64 << 10

type IngestHandler struct {
	Ingest *service.IngestService
	Logger *zap.Logger
}

func (h *IngestHandler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	r.POST("/api/webhook", append(mw, h.receive)...)
}

// webhookEnvelope is the optional JSON wrapper some senders use instead of
// the raw alert text.
type webhookEnvelope struct {
	Text   string `json:"text"`
	Symbol string `json:"symbol"`
	Source string `json:"source"`
}

func (h *IngestHandler) receive(c *gin.Context) {
	if h.Ingest == nil {
		Error(c, http.StatusInternalServerError, "ingest unavailable", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAlertBody))
	if err != nil {
		Error(c, http.StatusBadRequest, "unreadable body", nil)
		return
	}

	raw := string(body)
	symbol := strings.TrimSpace(c.Query("symbol"))
	source := strings.TrimSpace(c.Query("source"))

	// Senders may wrap the alert text in a JSON envelope. A body whose top
	// level parses as the envelope is unwrapped; anything else is treated as
	// raw alert text.
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		var env webhookEnvelope
		if json.Unmarshal(body, &env) == nil && env.Text != "" {
			raw = env.Text
			if env.Symbol != "" {
				symbol = env.Symbol
			}
			if env.Source != "" {
				source = env.Source
			}
		}
	}

	out, err := h.Ingest.HandleAlert(c.Request.Context(), raw, symbol, source)
	if err != nil {
		var parseErr *parser.ParseError
		var validationErr *tracker.ValidationError
		switch {
		case errors.As(err, &parseErr), errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		default:
			if h.Logger != nil {
				h.Logger.Error("webhook ingest failed", zap.Error(err))
			}
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "ingest failed"})
		}
		return
	}

	resp := gin.H{"success": true}
	if out.Signal != nil {
		resp["signalId"] = out.Signal.ID
		resp["strategyId"] = out.StrategyID
	}
	if out.Duplicate {
		resp["duplicate"] = true
	}
	if out.Orphan {
		resp["orphan"] = true
	}
	c.JSON(http.StatusAccepted, resp)
}
