package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	appLogger "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/logger"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/middleware"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/usecase"
)

const (
	dateLayout = "2006-01-02"

	defaultPrefetchDays = 7
	defaultHeartbeat    = 15 * time.Second
)

// AppointmentQueries is the query layer surface used by the HTTP API.
type AppointmentQueries interface {
	Collection() string
	Get(ctx context.Context, collection string, start, end time.Time, principalID string, useCache bool) ([]domain.Appointment, error)
	Prefetch(ctx context.Context, base time.Time, rangeDays int, principalID string)
	ClearCache()
	Subscribe(ctx context.Context, start, end time.Time, principalID string, onUpdate func([]domain.Appointment)) (string, error)
	Unsubscribe(id string)
	SubscriptionErr(id string) error
}

// AppointmentHandlerOptions configures defaults of the appointment endpoints.
type AppointmentHandlerOptions struct {
	PrefetchDays int
	Heartbeat    time.Duration
}

// AppointmentHandler serves cached appointment range queries and their live stream.
type AppointmentHandler struct {
	queries      AppointmentQueries
	prefetchDays int
	heartbeat    time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewAppointmentHandler constructs an appointment handler.
func NewAppointmentHandler(queries AppointmentQueries, opts AppointmentHandlerOptions, logger *zap.Logger) *AppointmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	days := opts.PrefetchDays
	if days <= 0 {
		days = defaultPrefetchDays
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &AppointmentHandler{
		queries:      queries,
		prefetchDays: days,
		heartbeat:    heartbeat,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the handler clock for deterministic tests.
func (h *AppointmentHandler) WithClock(clock func() time.Time) *AppointmentHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// RegisterRoutes binds appointment routes to the provided router group.
func (h *AppointmentHandler) RegisterRoutes(r *gin.RouterGroup, prefetchMiddlewares ...gin.HandlerFunc) {
	r.GET("", h.List)
	r.GET("/stream", h.Stream)
	r.POST("/prefetch", append(prefetchMiddlewares, h.Prefetch)...)
}

// RegisterCacheRoutes binds cache maintenance routes to the provided router group.
func (h *AppointmentHandler) RegisterCacheRoutes(r *gin.RouterGroup) {
	r.POST("/clear", h.ClearCache)
}

// List godoc
// @Summary List appointments in a date range
// @Description Returns appointments ordered by date then start time, served from the cache unless cache=false.
// @Tags Appointments
// @Produce json
// @Param collection query string false "Collection name"
// @Param from query string false "First day (YYYY-MM-DD), defaults to today"
// @Param to query string false "Last day (YYYY-MM-DD), defaults to from"
// @Param cache query bool false "Serve from cache when valid" default(true)
// @Success 200 {object} AppointmentsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	rng, ok := h.bindRange(c)
	if !ok {
		return
	}

	useCache := true
	if raw := c.Query("cache"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "cache must be a boolean"))
			return
		}
		useCache = parsed
	}

	collection := strings.TrimSpace(c.Query("collection"))
	if collection == "" {
		collection = h.queries.Collection()
	}

	principalID, _ := middleware.GetPrincipalID(c)
	records, err := h.queries.Get(c.Request.Context(), collection, rng.Start, rng.End, principalID, useCache)
	if err != nil {
		RespondWithMappedError(c, err, appointmentErrorCases, http.StatusBadGateway, "failed to load appointments")
		return
	}

	c.JSON(http.StatusOK, newAppointmentsResponse(collection, rng, records))
}

// Stream godoc
// @Summary Stream appointments in a date range
// @Description Server-sent events: "appointments" on every snapshot, "error" when the feed fails.
// @Tags Appointments
// @Produce text/event-stream
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Router /api/v1/appointments/stream [get]
func (h *AppointmentHandler) Stream(c *gin.Context) {
	rng, ok := h.bindRange(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	principalID, _ := middleware.GetPrincipalID(c)

	// Only the newest snapshot matters; a slow client skips intermediate ones.
	updates := make(chan []domain.Appointment, 1)
	id, err := h.queries.Subscribe(ctx, rng.Start, rng.End, principalID, func(records []domain.Appointment) {
		for {
			select {
			case updates <- records:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	if err != nil {
		RespondWithMappedError(c, err, appointmentErrorCases, http.StatusBadGateway, "failed to open appointment stream")
		return
	}
	defer h.queries.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	collection := h.queries.Collection()
	var reported error
	for {
		select {
		case <-ctx.Done():
			return
		case records := <-updates:
			c.SSEvent("appointments", newAppointmentsResponse(collection, rng, records))
			c.Writer.Flush()
		case <-heartbeat.C:
			err := h.queries.SubscriptionErr(id)
			if err != nil && !errors.Is(err, reported) {
				reported = err
				appLogger.WithContext(c.Request.Context(), h.logger).Warn("appointment stream degraded", zap.String("range", rng.String()), zap.Error(err))
				c.SSEvent("error", NewErrorResponse(c, "appointment feed unavailable"))
				c.Writer.Flush()
				if errors.Is(err, usecase.ErrSubscriptionClosed) || errors.Is(err, usecase.ErrSubscriptionRevoked) {
					return
				}
				continue
			}
			if _, werr := fmt.Fprint(c.Writer, ": ping\n\n"); werr != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// Prefetch godoc
// @Summary Warm the appointment cache
// @Description Loads [base, base+days] in the background. Failures are only logged.
// @Tags Appointments
// @Accept json
// @Produce json
// @Param request body PrefetchRequest false "Prefetch window"
// @Success 202 {object} PrefetchResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/appointments/prefetch [post]
func (h *AppointmentHandler) Prefetch(c *gin.Context) {
	var req PrefetchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
			return
		}
	}

	base := domain.DateOnly(h.now())
	if req.Base != "" {
		parsed, err := domain.ParseDate(req.Base)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "base must be YYYY-MM-DD"))
			return
		}
		base = parsed
	}

	days := h.prefetchDays
	if req.Days != nil {
		if *req.Days < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "days must not be negative"))
			return
		}
		days = *req.Days
	}

	principalID, _ := middleware.GetPrincipalID(c)
	h.queries.Prefetch(c.Request.Context(), base, days, principalID)

	c.JSON(http.StatusAccepted, PrefetchResponse{
		From: base.Format(dateLayout),
		To:   base.AddDate(0, 0, days).Format(dateLayout),
	})
}

// ClearCache godoc
// @Summary Clear the appointment cache
// @Tags Appointments
// @Produce json
// @Success 200 {object} MessageResponse
// @Router /api/v1/cache/clear [post]
func (h *AppointmentHandler) ClearCache(c *gin.Context) {
	h.queries.ClearCache()
	c.JSON(http.StatusOK, MessageResponse{Message: "cache cleared"})
}

func (h *AppointmentHandler) bindRange(c *gin.Context) (domain.DateRange, bool) {
	from := domain.DateOnly(h.now())
	if raw := c.Query("from"); raw != "" {
		parsed, err := domain.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "from must be YYYY-MM-DD"))
			return domain.DateRange{}, false
		}
		from = parsed
	}

	to := from
	if raw := c.Query("to"); raw != "" {
		parsed, err := domain.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "to must be YYYY-MM-DD"))
			return domain.DateRange{}, false
		}
		to = parsed
	}

	rng, err := domain.NewDateRange(from, to)
	if err != nil {
		RespondWithMappedError(c, err, appointmentErrorCases, http.StatusBadRequest, "invalid date range")
		return domain.DateRange{}, false
	}
	return rng, true
}

var _ AppointmentQueries = (*usecase.CachedQueryLayer)(nil)
