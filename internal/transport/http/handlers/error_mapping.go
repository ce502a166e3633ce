package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/repository"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

var appointmentErrorCases = []ErrorCase{
	{Err: domain.ErrInvalidDateRange, Status: http.StatusBadRequest, Message: "date range end precedes start"},
	{Err: repository.ErrUnknownCollection, Status: http.StatusNotFound, Message: "unknown collection"},
	{Err: usecase.ErrFeedUnavailable, Status: http.StatusServiceUnavailable, Message: "live updates unavailable"},
	{Err: usecase.ErrSubscribeTimeout, Status: http.StatusServiceUnavailable, Message: "live updates unavailable"},
	{Err: usecase.ErrQueryLayerClosed, Status: http.StatusServiceUnavailable, Message: "service shutting down"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
