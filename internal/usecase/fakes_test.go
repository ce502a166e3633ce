package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
)

type memoryStore struct {
	mu         sync.Mutex
	values     map[string]string
	getErr     error
	panicOnGet bool
	sets       int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if m.panicOnGet {
		panic("storage exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.sets++
	return nil
}

func (m *memoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memoryStore) value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok
}

type fakeIdentity struct {
	mu         sync.Mutex
	principals map[string]*domain.Principal
	err        error
	gates      map[string]chan struct{}
	started    chan string
	signOuts   int
	signOutErr error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		principals: make(map[string]*domain.Principal),
		gates:      make(map[string]chan struct{}),
	}
}

func (f *fakeIdentity) with(credentials string, principal *domain.Principal) *fakeIdentity {
	f.principals[credentials] = principal
	return f
}

func (f *fakeIdentity) CurrentPrincipal(_ context.Context, credentials string) (*domain.Principal, error) {
	if f.started != nil {
		f.started <- credentials
	}
	f.mu.Lock()
	gate := f.gates[credentials]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	principal, ok := f.principals[credentials]
	if !ok || principal == nil {
		return nil, nil
	}
	copied := *principal
	return &copied, nil
}

func (f *fakeIdentity) OnPrincipalChanged(func(domain.PrincipalChange)) (func(), error) {
	return func() {}, nil
}

func (f *fakeIdentity) SignOut(_ context.Context, credentials string) (*domain.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	if f.signOutErr != nil {
		return nil, f.signOutErr
	}
	principal, ok := f.principals[credentials]
	if !ok || principal == nil {
		return nil, nil
	}
	delete(f.principals, credentials)
	copied := *principal
	return &copied, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.SessionSignedOutEvent
	err    error
}

func (f *fakePublisher) PublishSessionSignedOut(_ context.Context, event domain.SessionSignedOutEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type fakeGuardMetrics struct {
	mu        sync.Mutex
	decisions []domain.Decision
}

func (f *fakeGuardMetrics) ObserveDecision(decision domain.Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, decision)
}

type rangeQuery struct {
	collection string
	rng        domain.DateRange
}

type fakeAppointmentStore struct {
	mu      sync.Mutex
	records []domain.Appointment
	err     error
	calls   []rangeQuery
}

func (f *fakeAppointmentStore) QueryRange(_ context.Context, collection string, rng domain.DateRange) ([]domain.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rangeQuery{collection: collection, rng: rng})
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Appointment, 0, len(f.records))
	for _, record := range f.records {
		if rng.Contains(record.Date) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeAppointmentStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type feedWatch struct {
	collection string
	rng        domain.DateRange
	ctx        context.Context
	in         chan port.Snapshot
	ended      chan struct{}
	closed     chan struct{}
}

type fakeFeed struct {
	mu       sync.Mutex
	watches  []*feedWatch
	watchErr error
	// hold, when set, stalls Watch until it is closed or ctx ends; holding is signalled on entry.
	hold    chan struct{}
	holding chan struct{}
}

func (f *fakeFeed) stall(hold chan struct{}) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = hold
	f.holding = make(chan struct{}, 4)
	return f.holding
}

func (f *fakeFeed) Watch(ctx context.Context, collection string, rng domain.DateRange) (<-chan port.Snapshot, error) {
	f.mu.Lock()
	hold, holding := f.hold, f.holding
	f.mu.Unlock()
	if hold != nil {
		holding <- struct{}{}
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	w := &feedWatch{
		collection: collection,
		rng:        rng,
		ctx:        ctx,
		in:         make(chan port.Snapshot),
		ended:      make(chan struct{}),
		closed:     make(chan struct{}),
	}
	out := make(chan port.Snapshot)
	go func() {
		defer close(w.closed)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.ended:
				return
			case snapshot := <-w.in:
				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	f.mu.Lock()
	f.watches = append(f.watches, w)
	f.mu.Unlock()
	return out, nil
}

func (f *fakeFeed) watch(i int) *feedWatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watches[i]
}

func (f *fakeFeed) watchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watches)
}

// push delivers a snapshot unless the watch has already terminated.
func (w *feedWatch) push(snapshot port.Snapshot) bool {
	select {
	case w.in <- snapshot:
		return true
	case <-w.closed:
		return false
	}
}

// end terminates the feed from the producer side.
func (w *feedWatch) end() {
	close(w.ended)
	<-w.closed
}

// released reports whether the consumer cancelled the watch.
func (w *feedWatch) released() bool {
	select {
	case <-w.ctx.Done():
		return true
	default:
		return false
	}
}

var errBoom = errors.New("boom")

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
