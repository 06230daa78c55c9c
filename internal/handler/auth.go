package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"meb-console/internal/account"
	"meb-console/internal/auth"
	"meb-console/internal/middleware"
)

type AuthHandler struct {
	Accounts     *account.Store
	TokenConfig  auth.TokenConfig
	LoginLimiter *middleware.LoginLimiter
}

type authBody struct {
	AccessToken string `json:"accessToken"`
}

// Exchange trades an operator access credential for a bearer token.
// Failures stay generic so callers cannot tell which credentials exist.
func (h *AuthHandler) Exchange(c *gin.Context) {
	if h.LoginLimiter != nil && !h.LoginLimiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		return
	}

	var body authBody
	if err := c.ShouldBindJSON(&body); err != nil || body.AccessToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	operator, ok := h.Accounts.FindByToken(body.AccessToken)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.CreateToken(operator.ID, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}
