package port

import (
	"context"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

// AppointmentStore runs range reads against the document store.
type AppointmentStore interface {
	QueryRange(ctx context.Context, collection string, rng domain.DateRange) ([]domain.Appointment, error)
}

// Snapshot is a single push from a watched range: either a full result set or an error.
type Snapshot struct {
	Appointments []domain.Appointment
	Err          error
}

// AppointmentFeed opens push channels over a range query.
// The returned channel is closed once ctx is done or the feed can no longer deliver.
type AppointmentFeed interface {
	Watch(ctx context.Context, collection string, rng domain.DateRange) (<-chan Snapshot, error)
}

// ChangeNotifier fans appointment change events out to open feeds.
type ChangeNotifier interface {
	NotifyAppointmentChanged(ctx context.Context, event domain.AppointmentChangedEvent) error
}
