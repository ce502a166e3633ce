package redis

import (
	"context"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

type stubAppointmentStore struct {
	mu      sync.Mutex
	records []domain.Appointment
	err     error
	calls   int
}

func (s *stubAppointmentStore) QueryRange(_ context.Context, _ string, rng domain.DateRange) ([]domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Appointment, 0, len(s.records))
	for _, record := range s.records {
		if rng.Contains(record.Date) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *stubAppointmentStore) set(records []domain.Appointment, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.err = err
}

func (s *stubAppointmentStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
