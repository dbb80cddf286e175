package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signalmarket/internal/repository"
)

type AuditHandler struct {
	Repo repository.Repository
}

func (h *AuditHandler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	r.GET("/api/audit", append(mw, h.listRecords)...)
}

func (h *AuditHandler) listRecords(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListAuditRecords(c.Request.Context(), repository.ListAuditParams{
		Limit:    limit,
		Offset:   offset,
		Action:   strQueryPtr(c, "action"),
		Resource: strQueryPtr(c, "resource"),
		UserID:   strQueryPtr(c, "userId"),
		Since:    timeQueryPtr(c, "since"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}
