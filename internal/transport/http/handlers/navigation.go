package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/middleware"
)

// NavigationHandler lets the single-page client ask the guard before it navigates.
type NavigationHandler struct {
	guard *middleware.Guard
}

// NewNavigationHandler constructs a navigation handler.
func NewNavigationHandler(guard *middleware.Guard) *NavigationHandler {
	return &NavigationHandler{guard: guard}
}

// RegisterRoutes binds navigation routes to the provided router group.
func (h *NavigationHandler) RegisterRoutes(r *gin.RouterGroup, mw ...gin.HandlerFunc) {
	r.GET("", append(mw, h.Evaluate)...)
	r.GET("/return-url", h.ReturnURL)
}

// Evaluate godoc
// @Summary Evaluate a navigation
// @Description Runs the session guard for the path and returns its decision.
// @Tags Navigation
// @Produce json
// @Param path query string true "Requested path including query"
// @Success 200 {object} NavigationResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/navigation [get]
func (h *NavigationHandler) Evaluate(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "path is required"))
		return
	}

	decision := h.guard.Evaluate(c, path)
	c.JSON(http.StatusOK, newNavigationResponse(path, decision))
}

// ReturnURL godoc
// @Summary Validate a return URL
// @Description Reports whether the URL is a safe post-login destination.
// @Tags Navigation
// @Produce json
// @Param url query string true "Candidate return URL"
// @Success 200 {object} ReturnURLResponse
// @Router /api/v1/navigation/return-url [get]
func (h *NavigationHandler) ReturnURL(c *gin.Context) {
	raw := c.Query("url")
	redirects := h.guard.Redirects()
	c.JSON(http.StatusOK, ReturnURLResponse{
		URL:      raw,
		Valid:    redirects.ValidateReturnURL(raw),
		Resolved: redirects.ResolveReturnURL(raw),
	})
}
