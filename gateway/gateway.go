// Package gateway implements the price feed gateway: TTL cache, in-flight
// request deduplication, and stale-serve degradation over a provider
// fallback chain.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	slog "log/slog"

	"github.com/addnad/perpgate/oracle"
)

// ErrAssetNotSupported is returned before any network call when no
// configured provider maps the asset.
var ErrAssetNotSupported = errors.New("asset not supported")

// ErrAllSourcesFailed is returned only when every provider failed and no
// cache entry exists to serve instead.
var ErrAllSourcesFailed = errors.New("failed to fetch price from all sources")

// Fetcher produces a quote for an asset. oracle.Chain is the production
// implementation.
type Fetcher interface {
	Supports(asset string) bool
	Fetch(ctx context.Context, asset string) (oracle.Quote, error)
}

// Result is the gateway's response shape for one price request.
type Result struct {
	Price8       string  `json:"price8"`
	PriceDecimal float64 `json:"priceDecimal"`
	Cached       bool    `json:"cached"`
	Deduped      bool    `json:"deduped,omitempty"`
	Stale        bool    `json:"stale,omitempty"`
}

// Config holds per-deployment gateway settings. The same component serves
// both the 30s-TTL and 5m-TTL variants.
type Config struct {
	TTL        time.Duration
	Registerer prometheus.Registerer // defaults to prometheus.DefaultRegisterer
}

// Gateway owns the cache and dedup group for one deployment surface.
// Construct one per process and inject it into the handlers; both maps live
// from startup to shutdown.
type Gateway struct {
	fetcher Fetcher
	cache   *Cache
	ttl     time.Duration
	flight  singleflight.Group
	m       *metrics
}

// New creates a Gateway over the given fetcher.
func New(fetcher Fetcher, cfg Config) *Gateway {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Gateway{
		fetcher: fetcher,
		cache:   NewCache(),
		ttl:     cfg.TTL,
		m:       newMetrics(reg),
	}
}

// Cache exposes the gateway's cache for snapshot persistence.
func (g *Gateway) Cache() *Cache { return g.cache }

// Price resolves one asset request: fresh cache hit, joining an in-flight
// fetch, a new fallback-chain pass, or a stale serve, in that order.
func (g *Gateway) Price(ctx context.Context, asset string) (Result, error) {
	if !g.fetcher.Supports(asset) {
		return Result{}, fmt.Errorf("%w: %s", ErrAssetNotSupported, asset)
	}

	if q, ok := g.cache.Get(asset); ok && Fresh(q, g.ttl, time.Now()) {
		g.m.cacheHits.Inc()
		return shape(q, true, false, false), nil
	}
	g.m.cacheMisses.Inc()

	q, started, err := g.fly(ctx, asset)
	if err != nil && !started {
		// The flight this request joined failed. Retry once as if this
		// request had started the fetch itself.
		q, _, err = g.fly(ctx, asset)
		started = true
	}
	if err == nil {
		if !started {
			g.m.dedupJoins.Inc()
		}
		return shape(q, false, !started, false), nil
	}

	// Every source failed. A stale entry beats an error for price consumers.
	if q, ok := g.cache.Get(asset); ok {
		g.m.staleServes.Inc()
		slog.Warn("serving stale price", "asset", asset, "age", time.Since(q.FetchedAt), "error", err)
		return shape(q, true, false, true), nil
	}
	return Result{}, fmt.Errorf("%w: %w", ErrAllSourcesFailed, err)
}

// fly runs the fetch under singleflight so that at most one upstream pass
// per asset is in flight. The group drops the key once the call settles, on
// success and failure alike. started reports whether this caller's function
// ran, i.e. whether it initiated the fetch rather than joining one.
func (g *Gateway) fly(ctx context.Context, asset string) (oracle.Quote, bool, error) {
	var started bool
	v, err, _ := g.flight.Do(asset, func() (interface{}, error) {
		started = true
		q, err := g.fetcher.Fetch(ctx, asset)
		if err != nil {
			g.m.fetchFail.Inc()
			return nil, err
		}
		g.cache.Put(asset, q)
		g.m.fetchOK.Inc()
		g.m.priceGauge.WithLabelValues(asset).Set(q.PriceDecimal)
		return q, nil
	})
	if err != nil {
		return oracle.Quote{}, started, err
	}
	return v.(oracle.Quote), started, nil
}

func shape(q oracle.Quote, cached, deduped, stale bool) Result {
	return Result{
		Price8:       oracle.FormatOracle(oracle.ToOracle(q.PriceDecimal)),
		PriceDecimal: q.PriceDecimal,
		Cached:       cached,
		Deduped:      deduped,
		Stale:        stale,
	}
}
