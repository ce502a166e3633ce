package port

import "context"

// KeyValueStore is the durable client storage surface used for session bookkeeping.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
}
