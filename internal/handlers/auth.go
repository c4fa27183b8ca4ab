package handlers

import (
	"net/http"
	"time"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

type AuthHandler struct {
	authService   *services.AuthService
	secureCookies bool
}

func NewAuthHandler(authService *services.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{authService: authService, secureCookies: secureCookies}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err)
		return
	}

	res, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	h.setRefreshCookie(c, res.RefreshToken, res.RefreshExpiresAt)
	c.JSON(http.StatusCreated, res)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err)
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	h.setRefreshCookie(c, res.RefreshToken, res.RefreshExpiresAt)
	c.JSON(http.StatusOK, res)
}

// Refresh reads the refresh credential from its cookie and rotates it.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(refreshCookieName)
	if err != nil || token == "" {
		apperrors.Respond(c, apperrors.Authentication("refresh token required"))
		return
	}

	res, err := h.authService.Refresh(c.Request.Context(), token)
	if err != nil {
		h.clearRefreshCookie(c)
		apperrors.Respond(c, err)
		return
	}
	h.setRefreshCookie(c, res.RefreshToken, res.RefreshExpiresAt)
	c.JSON(http.StatusOK, res)
}

// Logout always succeeds from the client's point of view.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(refreshCookieName); err == nil {
		if err := h.authService.Logout(c.Request.Context(), token); err != nil {
			apperrors.Respond(c, err)
			return
		}
	}
	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, token, maxAge, refreshCookiePath, "", h.secureCookies, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", h.secureCookies, true)
}
