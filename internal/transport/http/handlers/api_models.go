package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: c.GetString("trace_id"),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse lists the result of every readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// NavigationResponse is the guard decision for a path.
type NavigationResponse struct {
	Path          string `json:"path"`
	Outcome       string `json:"outcome"`
	Reason        string `json:"reason,omitempty"`
	RouteClass    string `json:"route_class"`
	Redirect      string `json:"redirect,omitempty"`
	Authenticated bool   `json:"authenticated"`
	PrincipalID   string `json:"principal_id,omitempty"`
	Role          string `json:"role,omitempty"`
}

func newNavigationResponse(path string, decision domain.Decision) NavigationResponse {
	resp := NavigationResponse{
		Path:          path,
		Outcome:       string(decision.Outcome),
		Reason:        string(decision.Reason),
		RouteClass:    decision.Class.String(),
		Redirect:      decision.Redirect,
		Authenticated: decision.Authenticated,
	}
	if decision.Authenticated {
		resp.PrincipalID = decision.PrincipalID
		resp.Role = string(decision.Role)
	}
	return resp
}

// ReturnURLResponse reports whether a post-login return URL is safe and where login should continue.
type ReturnURLResponse struct {
	URL      string `json:"url"`
	Valid    bool   `json:"valid"`
	Resolved string `json:"resolved"`
}

// AppointmentsResponse carries the records of one date range.
type AppointmentsResponse struct {
	Collection   string               `json:"collection"`
	From         string               `json:"from"`
	To           string               `json:"to"`
	Count        int                  `json:"count"`
	Appointments []domain.Appointment `json:"appointments"`
}

func newAppointmentsResponse(collection string, rng domain.DateRange, records []domain.Appointment) AppointmentsResponse {
	if records == nil {
		records = []domain.Appointment{}
	}
	return AppointmentsResponse{
		Collection:   collection,
		From:         rng.Start.Format(dateLayout),
		To:           rng.End.Format(dateLayout),
		Count:        len(records),
		Appointments: records,
	}
}

// PrefetchRequest asks for a background warm of [base, base+days].
type PrefetchRequest struct {
	Base string `json:"base"`
	Days *int   `json:"days"`
}

// PrefetchResponse acknowledges a scheduled prefetch.
type PrefetchResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SignOutResponse points the browser at the neutral route.
type SignOutResponse struct {
	Redirect string `json:"redirect"`
}
