package port

import "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"

// GuardMetrics records guard outcomes.
type GuardMetrics interface {
	ObserveDecision(decision domain.Decision)
}

// QueryMetrics records cache and subscription activity of the query layer.
type QueryMetrics interface {
	CacheHit(collection string)
	CacheMiss(collection string)
	SubscriptionOpened()
	SubscriptionClosed()
	FeedError()
}
