package domain

import (
	"errors"
	"sort"
	"time"
)

// ErrInvalidDateRange is returned when a range ends before it starts.
var ErrInvalidDateRange = errors.New("date range end precedes start")

const dateLayout = "2006-01-02"

// Appointment is a booking record read from the document store.
type Appointment struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	StylistID  string    `json:"stylist_id,omitempty"`
	ServiceID  string    `json:"service_id,omitempty"`
	Date       time.Time `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time,omitempty"`
	Status     string    `json:"status"`
	Notes      *string   `json:"notes,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both bounds to day granularity.
func NewDateRange(start, end time.Time) (DateRange, error) {
	rng := DateRange{Start: DateOnly(start), End: DateOnly(end)}
	if rng.End.Before(rng.Start) {
		return DateRange{}, ErrInvalidDateRange
	}
	return rng, nil
}

// Contains reports whether the calendar day of t lies inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	day := DateOnly(t)
	return !day.Before(r.Start) && !day.After(r.End)
}

// String renders the range with date-only bounds.
func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + ".." + r.End.Format(dateLayout)
}

// DateOnly drops the clock part of t, keeping its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD value.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, value)
}

// SortAppointments orders records by date, then start time.
func SortAppointments(items []Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		if items[i].StartTime != items[j].StartTime {
			return items[i].StartTime < items[j].StartTime
		}
		return items[i].ID < items[j].ID
	})
}

// CloneAppointments returns a shallow copy so callers cannot mutate cached slices.
func CloneAppointments(items []Appointment) []Appointment {
	if items == nil {
		return nil
	}
	out := make([]Appointment, len(items))
	copy(out, items)
	return out
}
