package domain

import "time"

// SessionSignedOutEvent represents the payload for salon.session.signed_out messages.
type SessionSignedOutEvent struct {
	EventID     string
	PrincipalID string
	SessionKey  string
	Role        Role
	ClientID    string
	SignedOutAt time.Time
}

// AppointmentChangedEvent announces a write to an appointment document.
// PreviousDate is set when the appointment moved to another day.
type AppointmentChangedEvent struct {
	EventID       string     `json:"event_id"`
	Collection    string     `json:"collection"`
	AppointmentID string     `json:"appointment_id"`
	Date          time.Time  `json:"date"`
	PreviousDate  *time.Time `json:"previous_date,omitempty"`
	Kind          string     `json:"kind"`
	ChangedAt     time.Time  `json:"changed_at"`
}

// Touches reports whether the change affects any day of the range.
func (e AppointmentChangedEvent) Touches(rng DateRange) bool {
	if rng.Contains(e.Date) {
		return true
	}
	return e.PreviousDate != nil && rng.Contains(*e.PreviousDate)
}
