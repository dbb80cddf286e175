package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signalmarket/internal/audit"
	"signalmarket/internal/ratelimit"
)

// CredentialVerifier is the pluggable identity backend. Implementations must
// return ok=false, not an error, for wrong credentials; errors mean the
// backend itself failed.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (userID string, ok bool, err error)
}

type AuthHandler struct {
	Verifier CredentialVerifier
	Limiter  *ratelimit.Limiter
	Audit    *audit.Recorder
	Logger   *zap.Logger
}

func (h *AuthHandler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	r.POST("/api/auth/login", append(mw, h.login)...)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) login(c *gin.Context) {
	if h.Verifier == nil {
		Error(c, http.StatusInternalServerError, "auth unavailable", nil)
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	userID, ok, err := h.Verifier.Verify(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("credential backend failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, "auth backend unavailable", nil)
		return
	}
	if !ok {
		if h.Audit != nil {
			h.Audit.Login(req.Username, false, map[string]string{"ip": c.ClientIP()})
		}
		Error(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	// Only failed attempts count against the auth budget.
	if h.Limiter != nil {
		if err := h.Limiter.Forgive(c.Request.Context(), ratelimit.CategoryAuth, c.ClientIP()); err != nil && h.Logger != nil {
			h.Logger.Warn("auth rate limit refund failed", zap.Error(err))
		}
	}
	if h.Audit != nil {
		h.Audit.Login(userID, true, map[string]string{"ip": c.ClientIP()})
	}
	Ok(c, gin.H{"userId": userID}, nil)
}
