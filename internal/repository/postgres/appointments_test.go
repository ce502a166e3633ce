package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/repository"
)

var appointmentColumns = []string{
	"id", "customer_id", "stylist_id", "service_id", "reservation_date", "start_time", "end_time", "status", "notes", "updated_at",
}

func TestAppointmentRepository_QueryRange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAppointmentRepository(mock, nil)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	rng, err := domain.NewDateRange(start, end)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	updatedAt := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	notes := "first visit"

	rows := pgxmock.NewRows(appointmentColumns).
		AddRow("r-1", "c-1", "st-1", nil, start, "09:30", "10:30", "confirmed", notes, updatedAt).
		AddRow("r-2", "c-2", nil, "sv-2", start.AddDate(0, 0, 1), "14:00", nil, "pending", nil, nil)

	mock.ExpectQuery(`SELECT .*FROM salon\.reservations WHERE reservation_date >= \$1 AND reservation_date <= \$2 ORDER BY reservation_date ASC, start_time ASC, id ASC`).
		WithArgs(rng.Start, rng.End).
		WillReturnRows(rows)

	appointments, err := repo.QueryRange(context.Background(), "reservations", rng)
	if err != nil {
		t.Fatalf("QueryRange returned error: %v", err)
	}
	if len(appointments) != 2 {
		t.Fatalf("expected two appointments, got %d", len(appointments))
	}

	first := appointments[0]
	if first.ID != "r-1" || first.StylistID != "st-1" || first.ServiceID != "" || first.EndTime != "10:30" {
		t.Fatalf("unexpected first appointment %+v", first)
	}
	if first.Notes == nil || *first.Notes != notes || !first.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("expected optional fields populated, got %+v", first)
	}
	second := appointments[1]
	if second.Notes != nil || !second.UpdatedAt.IsZero() || second.EndTime != "" {
		t.Fatalf("expected nullable fields empty, got %+v", second)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepository_UnknownCollection(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAppointmentRepository(mock, map[string]string{"reservations": "salon.reservations"})
	rng, _ := domain.NewDateRange(time.Now(), time.Now())

	_, err = repo.QueryRange(context.Background(), "users; DROP TABLE salon.reservations", rng)
	if !errors.Is(err, repository.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepository_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAppointmentRepository(mock, nil)
	rng, _ := domain.NewDateRange(time.Now(), time.Now())
	boom := errors.New("connection reset")

	mock.ExpectQuery(`SELECT .*FROM salon\.reservations`).
		WithArgs(rng.Start, rng.End).
		WillReturnError(boom)

	if _, err := repo.QueryRange(context.Background(), "reservations", rng); !errors.Is(err, boom) {
		t.Fatalf("expected query error to propagate, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
