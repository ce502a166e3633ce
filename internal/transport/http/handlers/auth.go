package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/logger"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/middleware"
)

// AuthHandler exposes session termination.
type AuthHandler struct {
	guard  *middleware.Guard
	secure bool
	logger *zap.Logger
}

// NewAuthHandler constructs an auth handler. secure marks cleared cookies as Secure.
func NewAuthHandler(guard *middleware.Guard, secure bool, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{guard: guard, secure: secure, logger: logger}
}

// RegisterRoutes binds auth routes to the provided router group.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, signOutMiddlewares ...gin.HandlerFunc) {
	r.POST("/signout", append(signOutMiddlewares, h.SignOut)...)
}

// SignOut godoc
// @Summary Sign out
// @Description Ends the session, clears its persisted state and returns the neutral route. Idempotent.
// @Tags Auth
// @Produce json
// @Success 200 {object} SignOutResponse
// @Router /api/v1/auth/signout [post]
func (h *AuthHandler) SignOut(c *gin.Context) {
	redirect, err := h.guard.SignOut(c)
	if err != nil {
		appLogger.WithContext(c.Request.Context(), h.logger).Warn("sign out completed with errors",
			zap.String("trace_id", middleware.GetTraceID(c)),
			zap.Error(err),
		)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.guard.SessionCookie(), "", -1, "/", "", h.secure, true)
	c.JSON(http.StatusOK, SignOutResponse{Redirect: redirect})
}
