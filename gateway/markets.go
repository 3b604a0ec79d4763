package gateway

import (
	"context"
	"sync"
	"time"

	slog "log/slog"
)

// MarketsFetcher returns the raw market-overview listing payload.
type MarketsFetcher func(ctx context.Context) ([]byte, error)

// Markets is a TTL-guarded passthrough of the coin-catalog markets listing.
// The body is served verbatim; on upstream failure the previous body is
// reused so the overview page degrades instead of blanking.
type Markets struct {
	fetch MarketsFetcher
	ttl   time.Duration

	mu        sync.Mutex
	body      []byte
	fetchedAt time.Time
}

// NewMarkets creates a markets proxy with the given TTL.
func NewMarkets(fetch MarketsFetcher, ttl time.Duration) *Markets {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Markets{fetch: fetch, ttl: ttl}
}

// Listing returns a recent markets payload, refreshing it when the cached
// body has expired.
func (m *Markets) Listing(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.body != nil && time.Since(m.fetchedAt) < m.ttl {
		return m.body, nil
	}

	body, err := m.fetch(ctx)
	if err != nil {
		if m.body != nil {
			slog.Warn("markets refresh failed, serving previous listing", "error", err, "age", time.Since(m.fetchedAt))
			return m.body, nil
		}
		return nil, err
	}
	m.body = body
	m.fetchedAt = time.Now()
	return body, nil
}
