package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the gateway's Prometheus collectors.
type metrics struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	dedupJoins  prometheus.Counter
	staleServes prometheus.Counter
	fetchOK     prometheus.Counter
	fetchFail   prometheus.Counter
	priceGauge  *prometheus.GaugeVec
}

// newMetrics creates and registers the collectors on the given registerer.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_cache_hits_total",
			Help: "Requests served from a fresh cache entry",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_cache_misses_total",
			Help: "Requests that had to consult the dedup map or upstreams",
		}),
		dedupJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_dedup_joins_total",
			Help: "Requests that attached to an in-flight fetch",
		}),
		staleServes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_stale_serves_total",
			Help: "Requests served an expired cache entry after all sources failed",
		}),
		fetchOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_fetches_total",
			Help: "Upstream fetch passes that produced a quote",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_fetch_failures_total",
			Help: "Upstream fetch passes that exhausted every source",
		}),
		priceGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "asset_price_usd",
			Help: "Last fetched USD price per asset",
		}, []string{"asset"}),
	}
	reg.MustRegister(m.cacheHits, m.cacheMisses, m.dedupJoins, m.staleServes,
		m.fetchOK, m.fetchFail, m.priceGauge)
	return m
}
