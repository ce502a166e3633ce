package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
)

const (
	// DefaultCollection is the appointment collection served when none is configured.
	DefaultCollection = "reservations"

	defaultPrefetchTimeout  = 30 * time.Second
	defaultSubscribeTimeout = 10 * time.Second
)

var (
	// ErrQueryLayerClosed is returned by operations on a closed layer.
	ErrQueryLayerClosed = errors.New("query layer closed")
	// ErrFeedUnavailable is returned when subscriptions are requested without a configured feed.
	ErrFeedUnavailable = errors.New("appointment feed not configured")
	// ErrSubscriptionClosed is the observable state of a subscription whose feed ended on its own.
	ErrSubscriptionClosed = errors.New("subscription feed closed")
	// ErrSubscriptionRevoked is the state of subscriptions released because their principal signed out.
	ErrSubscriptionRevoked = errors.New("subscription revoked")
	// ErrSubscribeTimeout is returned when the feed does not confirm a subscription in time.
	ErrSubscribeTimeout = errors.New("subscribe timed out")
)

// QueryState enumerates the lifecycle of a query.
type QueryState string

const (
	QueryStateIdle    QueryState = "idle"
	QueryStateLoading QueryState = "loading"
	QueryStateSuccess QueryState = "success"
	QueryStateError   QueryState = "error"
)

// QueryStatus is a readable view of the last query lifecycle.
type QueryStatus struct {
	State     QueryState
	Err       error
	UpdatedAt time.Time
}

// CachedQueryOptions configures the query layer.
type CachedQueryOptions struct {
	TTL              time.Duration
	Collection       string
	PrefetchTimeout  time.Duration
	SubscribeTimeout time.Duration
}

// subscriptionGroup is one shared feed. It sits in groups while its Watch is in flight; ready is closed
// once the outcome is known and openErr holds a failure. pending counts callers waiting to join.
type subscriptionGroup struct {
	key         string
	principalID string
	cancel      context.CancelFunc
	ready       chan struct{}
	done        chan struct{}
	openErr     error
	pending     int
	listeners   map[string]func([]domain.Appointment)
	err         error
	stopped     bool
}

func (g *subscriptionGroup) idle() bool {
	return len(g.listeners) == 0 && g.pending == 0
}

// CachedQueryLayer serves range queries through a TTL cache and keeps it current from push feeds.
// Subscriptions on the same (range, principal) share one feed and are reference counted.
type CachedQueryLayer struct {
	store      port.AppointmentStore
	feed       port.AppointmentFeed
	cache      *QueryCache
	collection string
	metrics    port.QueryMetrics
	logger     *zap.Logger
	tracer     trace.Tracer

	prefetchTimeout  time.Duration
	subscribeTimeout time.Duration
	prefetches       sync.WaitGroup

	statusMu sync.RWMutex
	status   QueryStatus

	mu     sync.Mutex
	groups map[string]*subscriptionGroup
	subs   map[string]*subscriptionGroup
	closed bool
}

// NewCachedQueryLayer constructs the layer around a store and an optional feed.
func NewCachedQueryLayer(store port.AppointmentStore, feed port.AppointmentFeed, opts CachedQueryOptions, logger *zap.Logger) *CachedQueryLayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	collection := strings.TrimSpace(opts.Collection)
	if collection == "" {
		collection = DefaultCollection
	}
	timeout := opts.PrefetchTimeout
	if timeout <= 0 {
		timeout = defaultPrefetchTimeout
	}
	subscribeTimeout := opts.SubscribeTimeout
	if subscribeTimeout <= 0 {
		subscribeTimeout = defaultSubscribeTimeout
	}

	return &CachedQueryLayer{
		store:           store,
		feed:            feed,
		cache:           NewQueryCache(opts.TTL),
		collection:      collection,
		logger:          logger,
		tracer:          otel.Tracer("salon/usecase/cached_query"),
		prefetchTimeout:  timeout,
		subscribeTimeout: subscribeTimeout,
		status:           QueryStatus{State: QueryStateIdle},
		groups:           make(map[string]*subscriptionGroup),
		subs:             make(map[string]*subscriptionGroup),
	}
}

// WithMetrics attaches cache and subscription metrics.
func (l *CachedQueryLayer) WithMetrics(metrics port.QueryMetrics) *CachedQueryLayer {
	l.metrics = metrics
	return l
}

// WithClock overrides the cache clock for deterministic tests.
func (l *CachedQueryLayer) WithClock(clock func() time.Time) *CachedQueryLayer {
	l.cache.WithClock(clock)
	return l
}

// Collection returns the collection used by subscriptions and prefetches.
func (l *CachedQueryLayer) Collection() string {
	return l.collection
}

// Status returns the lifecycle state of the most recent Get.
func (l *CachedQueryLayer) Status() QueryStatus {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.status
}

// Get returns the ordered records of collection within [start, end] for the principal.
// With useCache a valid cache entry is returned without touching the store; otherwise
// the live result replaces the entry. Store failures are returned, never masked.
func (l *CachedQueryLayer) Get(ctx context.Context, collection string, start, end time.Time, principalID string, useCache bool) ([]domain.Appointment, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = l.collection
	}
	rng, err := domain.NewDateRange(start, end)
	if err != nil {
		l.setStatus(QueryStateError, err)
		return nil, err
	}

	key := QueryCacheKey(collection, rng, principalID)
	if useCache {
		if records, ok := l.cache.Get(key); ok {
			l.observeHit(collection)
			l.setStatus(QueryStateSuccess, nil)
			return records, nil
		}
		l.observeMiss(collection)
	}

	l.setStatus(QueryStateLoading, nil)
	records, err := l.load(ctx, collection, rng, principalID)
	if err != nil {
		l.setStatus(QueryStateError, err)
		return nil, err
	}
	l.setStatus(QueryStateSuccess, nil)
	return records, nil
}

// Prefetch warms the cache for [base, base+rangeDays] in the background, always hitting the store.
// Failures are logged and never reach the caller or the query status.
func (l *CachedQueryLayer) Prefetch(ctx context.Context, base time.Time, rangeDays int, principalID string) {
	if rangeDays < 0 {
		rangeDays = 0
	}
	rng, err := domain.NewDateRange(base, base.AddDate(0, 0, rangeDays))
	if err != nil {
		l.logger.Warn("prefetch skipped", zap.Error(err))
		return
	}

	l.prefetches.Add(1)
	go func() {
		defer l.prefetches.Done()

		prefetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.prefetchTimeout)
		defer cancel()

		if _, err := l.load(prefetchCtx, l.collection, rng, principalID); err != nil {
			l.logger.Warn("prefetch failed",
				zap.String("collection", l.collection),
				zap.String("range", rng.String()),
				zap.Error(err),
			)
		}
	}()
}

// WaitPrefetches blocks until every in-flight prefetch has finished.
func (l *CachedQueryLayer) WaitPrefetches() {
	l.prefetches.Wait()
}

// ClearCache drops every cached entry.
func (l *CachedQueryLayer) ClearCache() {
	l.cache.Clear()
}

// ForgetPrincipal releases the principal's subscriptions and drops its cached entries. Released
// subscriptions stop writing to the cache and report ErrSubscriptionRevoked until unsubscribed.
func (l *CachedQueryLayer) ForgetPrincipal(principalID string) {
	owner := principalKey(principalID)

	l.mu.Lock()
	var released []*subscriptionGroup
	for key, group := range l.groups {
		if principalKey(group.principalID) != owner {
			continue
		}
		group.stopped = true
		group.err = ErrSubscriptionRevoked
		delete(l.groups, key)
		released = append(released, group)
	}
	l.mu.Unlock()

	for _, group := range released {
		group.cancel()
	}
	dropped := l.cache.DropPrincipal(principalID)
	if dropped > 0 || len(released) > 0 {
		l.logger.Debug("forgot principal queries",
			zap.Int("entries", dropped),
			zap.Int("feeds", len(released)),
		)
	}
}

// Subscribe opens (or joins) a push channel for the range. Every snapshot is ordered, written to the
// cache under the same key Get uses, then handed to onUpdate. Feed errors are recorded and readable
// through SubscriptionErr; onUpdate only ever receives data.
func (l *CachedQueryLayer) Subscribe(ctx context.Context, start, end time.Time, principalID string, onUpdate func([]domain.Appointment)) (string, error) {
	if l.feed == nil {
		return "", ErrFeedUnavailable
	}
	if onUpdate == nil {
		onUpdate = func([]domain.Appointment) {}
	}
	rng, err := domain.NewDateRange(start, end)
	if err != nil {
		return "", err
	}

	key := QueryCacheKey(l.collection, rng, principalID)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", ErrQueryLayerClosed
	}
	group, joining := l.groups[key]
	if !joining {
		watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		group = &subscriptionGroup{
			key:         key,
			principalID: principalID,
			cancel:      cancel,
			ready:       make(chan struct{}),
			done:        make(chan struct{}),
			listeners:   make(map[string]func([]domain.Appointment)),
		}
		l.groups[key] = group
		group.pending++
		l.mu.Unlock()
		l.open(watchCtx, group, rng)
	} else {
		group.pending++
		l.mu.Unlock()
	}

	if joining {
		select {
		case <-group.ready:
		case <-ctx.Done():
			l.leave(group, "")
			return "", ctx.Err()
		}
	}

	l.mu.Lock()
	group.pending--
	if group.openErr != nil || group.stopped {
		err := group.openErr
		if err == nil {
			err = group.err
		}
		if err == nil {
			err = ErrQueryLayerClosed
		}
		l.mu.Unlock()
		return "", err
	}
	id := uuid.NewString()
	group.listeners[id] = onUpdate
	l.subs[id] = group
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.SubscriptionOpened()
	}
	return id, nil
}

// open runs the feed Watch for a new group outside the layer lock. The subscribe step is bounded by
// subscribeTimeout; the feed itself lives until the group is released.
func (l *CachedQueryLayer) open(watchCtx context.Context, group *subscriptionGroup, rng domain.DateRange) {
	timer := time.AfterFunc(l.subscribeTimeout, group.cancel)
	snapshots, err := l.feed.Watch(watchCtx, l.collection, rng)
	if !timer.Stop() {
		if err == nil {
			// The feed was confirmed after its context got cancelled; it closes on its own.
			go drain(snapshots)
			err = ErrSubscribeTimeout
		} else {
			err = fmt.Errorf("%w: %v", ErrSubscribeTimeout, err)
		}
	}
	if err != nil {
		err = fmt.Errorf("watch %s %s: %w", l.collection, rng, err)
	}

	l.mu.Lock()
	switch {
	case err != nil:
		group.openErr = err
		group.stopped = true
		if l.groups[group.key] == group {
			delete(l.groups, group.key)
		}
	case l.closed && !group.stopped:
		group.stopped = true
	}
	close(group.ready)
	l.mu.Unlock()

	if err != nil {
		group.cancel()
		close(group.done)
		return
	}
	go l.pump(group, snapshots)
}

// Unsubscribe detaches the subscription and releases its feed once no subscriber is left.
// Unknown or already released ids are ignored.
func (l *CachedQueryLayer) Unsubscribe(id string) {
	l.mu.Lock()
	group, ok := l.subs[id]
	if !ok {
		l.mu.Unlock()
		return
	}
	delete(l.subs, id)
	l.mu.Unlock()

	l.leave(group, id)
	if l.metrics != nil {
		l.metrics.SubscriptionClosed()
	}
}

// leave removes a listener (or a pending joiner when id is empty) and cancels the feed once the group
// has nobody left.
func (l *CachedQueryLayer) leave(group *subscriptionGroup, id string) {
	l.mu.Lock()
	if id == "" {
		group.pending--
	} else {
		delete(group.listeners, id)
	}
	release := !group.stopped && group.idle()
	if release {
		group.stopped = true
		if l.groups[group.key] == group {
			delete(l.groups, group.key)
		}
	}
	l.mu.Unlock()

	if release {
		group.cancel()
	}
}

// SubscriptionErr returns the last feed error of the subscription, or nil.
func (l *CachedQueryLayer) SubscriptionErr(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	group, ok := l.subs[id]
	if !ok {
		return nil
	}
	return group.err
}

// ActiveSubscriptions reports how many subscriptions are open.
func (l *CachedQueryLayer) ActiveSubscriptions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Close releases every open subscription and waits for their feeds to drain.
func (l *CachedQueryLayer) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	groups := make([]*subscriptionGroup, 0, len(l.groups))
	for _, group := range l.groups {
		group.stopped = true
		groups = append(groups, group)
	}
	closedSubs := len(l.subs)
	l.groups = make(map[string]*subscriptionGroup)
	l.subs = make(map[string]*subscriptionGroup)
	l.mu.Unlock()

	for _, group := range groups {
		group.cancel()
	}
	for _, group := range groups {
		<-group.done
	}
	if l.metrics != nil {
		for i := 0; i < closedSubs; i++ {
			l.metrics.SubscriptionClosed()
		}
	}
	l.prefetches.Wait()
}

func (l *CachedQueryLayer) pump(group *subscriptionGroup, snapshots <-chan port.Snapshot) {
	defer close(group.done)

	for snapshot := range snapshots {
		if snapshot.Err != nil {
			l.logger.Warn("appointment feed error",
				zap.String("key", group.key),
				zap.Error(snapshot.Err),
			)
			if l.metrics != nil {
				l.metrics.FeedError()
			}
			l.mu.Lock()
			if !group.stopped {
				group.err = snapshot.Err
			}
			l.mu.Unlock()
			continue
		}

		records := domain.CloneAppointments(snapshot.Appointments)
		if records == nil {
			records = []domain.Appointment{}
		}
		domain.SortAppointments(records)

		l.mu.Lock()
		if group.stopped {
			l.mu.Unlock()
			continue
		}
		group.err = nil
		l.cache.Put(group.key, group.principalID, records)
		listeners := make([]func([]domain.Appointment), 0, len(group.listeners))
		for _, fn := range group.listeners {
			listeners = append(listeners, fn)
		}
		l.mu.Unlock()

		for _, fn := range listeners {
			fn(domain.CloneAppointments(records))
		}
	}

	l.mu.Lock()
	if !group.stopped {
		group.err = ErrSubscriptionClosed
	}
	l.mu.Unlock()
}

func drain(snapshots <-chan port.Snapshot) {
	for range snapshots {
	}
}

func (l *CachedQueryLayer) load(ctx context.Context, collection string, rng domain.DateRange, principalID string) ([]domain.Appointment, error) {
	ctx, span := l.tracer.Start(ctx, "cached_query.load", trace.WithAttributes(
		attribute.String("query.collection", collection),
		attribute.String("query.range", rng.String()),
	))
	defer span.End()

	if l.store == nil {
		return nil, fmt.Errorf("appointment store not configured")
	}

	records, err := l.store.QueryRange(ctx, collection, rng)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query range failed")
		return nil, fmt.Errorf("query %s %s: %w", collection, rng, err)
	}

	records = domain.CloneAppointments(records)
	if records == nil {
		records = []domain.Appointment{}
	}
	domain.SortAppointments(records)
	l.cache.Put(QueryCacheKey(collection, rng, principalID), principalID, records)
	return domain.CloneAppointments(records), nil
}

func (l *CachedQueryLayer) setStatus(state QueryState, err error) {
	l.statusMu.Lock()
	l.status = QueryStatus{State: state, Err: err, UpdatedAt: time.Now().UTC()}
	l.statusMu.Unlock()
}

func (l *CachedQueryLayer) observeHit(collection string) {
	if l.metrics != nil {
		l.metrics.CacheHit(collection)
	}
}

func (l *CachedQueryLayer) observeMiss(collection string) {
	if l.metrics != nil {
		l.metrics.CacheMiss(collection)
	}
}
