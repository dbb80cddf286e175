package handler

import (
	"encoding/csv"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

type ExportHandler struct {
	Repo repository.Repository
}

func (h *ExportHandler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	r.GET("/api/export/signals", append(mw, h.exportSignals)...)
}

func (h *ExportHandler) exportSignals(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListSignals(c.Request.Context(), repository.ListSignalsParams{
		Limit:      intQuery(c, "limit", 1000),
		StrategyID: strQueryPtr(c, "strategyId"),
		Symbol:     strQueryPtr(c, "symbol"),
		Since:      timeQueryPtr(c, "since"),
		Asc:        true,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="signals.csv"`)

	w := csv.NewWriter(c.Writer)
	header := []string{
		"id", "strategy_id", "symbol", "type", "direction", "status",
		"entry_price", "exit_price", "profit_loss", "created_at", "closed_at",
	}
	if err := w.Write(header); err != nil {
		return
	}
	for _, sig := range items {
		if err := w.Write(csvRow(sig)); err != nil {
			return
		}
	}
	w.Flush()
}

func csvRow(sig models.Signal) []string {
	strategyID := ""
	if sig.StrategyID != nil {
		strategyID = *sig.StrategyID
	}
	exitPrice := ""
	if sig.ExitPrice != nil {
		exitPrice = sig.ExitPrice.String()
	}
	pnl := ""
	if sig.ProfitLoss != nil {
		pnl = sig.ProfitLoss.String()
	}
	closedAt := ""
	if sig.ClosedAt != nil {
		closedAt = sig.ClosedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		sig.ID,
		strategyID,
		sig.Symbol,
		sig.Type,
		sig.Direction,
		sig.Status,
		sig.EntryPrice.String(),
		exitPrice,
		pnl,
		sig.CreatedAt.UTC().Format(time.RFC3339),
		closedAt,
	}
}
