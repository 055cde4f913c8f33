package store

import (
	"context"

	"bonvoyage/internal/domain"
)

// Store holds everything one request accumulates between dispatch and
// publication. Append is the only operation written concurrently.
type Store interface {
	Ping(ctx context.Context) error
	Append(ctx context.Context, requestID string, entry domain.Entry) error
	ReadAll(ctx context.Context, requestID string) ([]domain.Entry, error)
	Replied(ctx context.Context, requestID string) (int, error)
	PublishFinal(ctx context.Context, requestID string, journeys []domain.Journey) error
	ReadFinal(ctx context.Context, requestID string) ([]domain.Journey, error)
	SaveRequestContext(ctx context.Context, rc domain.RequestContext) error
	GetRequestContext(ctx context.Context, requestID string) (domain.RequestContext, error)
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
