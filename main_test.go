package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addnad/perpgate/gateway"
	"github.com/addnad/perpgate/oracle"
)

type stubFetcher struct {
	price       float64
	err         error
	unsupported bool
}

func (s stubFetcher) Supports(asset string) bool { return !s.unsupported }

func (s stubFetcher) Fetch(ctx context.Context, asset string) (oracle.Quote, error) {
	if s.err != nil {
		return oracle.Quote{}, s.err
	}
	return oracle.Quote{Asset: asset, PriceDecimal: s.price, Source: "stub", FetchedAt: time.Now()}, nil
}

func servePrice(t *testing.T, f gateway.Fetcher, target string) *httptest.ResponseRecorder {
	t.Helper()
	gw := gateway.New(f, gateway.Config{TTL: 30 * time.Second, Registerer: prometheus.NewRegistry()})
	e := initHTTP(gw, gateway.NewMarkets(func(ctx context.Context) ([]byte, error) {
		return []byte(`[]`), nil
	}, time.Minute))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestPriceEndpointSuccess(t *testing.T) {
	rec := servePrice(t, stubFetcher{price: 65000.12345678}, "/price?asset=BTC")
	require.Equal(t, http.StatusOK, rec.Code, "body=%s", rec.Body.String())
	assert.JSONEq(t,
		`{"price8":"6500012345678","priceDecimal":65000.12345678,"cached":false}`,
		rec.Body.String())
}

func TestPriceEndpointUnsupportedAsset(t *testing.T) {
	rec := servePrice(t, stubFetcher{unsupported: true}, "/price?asset=SHIB")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Asset not supported"}`, rec.Body.String())
}

func TestPriceEndpointAllSourcesFailed(t *testing.T) {
	rec := servePrice(t, stubFetcher{err: errors.New("down")}, "/price?asset=SOL")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch price from all sources"}`, rec.Body.String())
}

func TestPriceEndpointStaleServeReturns200(t *testing.T) {
	gw := gateway.New(stubFetcher{err: errors.New("down")},
		gateway.Config{TTL: 30 * time.Second, Registerer: prometheus.NewRegistry()})
	gw.Cache().Put("ETH", oracle.Quote{Asset: "ETH", PriceDecimal: 2500, FetchedAt: time.Now().Add(-10 * time.Minute)})
	e := initHTTP(gw, gateway.NewMarkets(func(ctx context.Context) ([]byte, error) {
		return []byte(`[]`), nil
	}, time.Minute))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/price?asset=ETH", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"price8":"250000000000","priceDecimal":2500,"cached":true,"stale":true}`,
		rec.Body.String())
}

func TestMarketsEndpointPassthrough(t *testing.T) {
	rec := servePrice(t, stubFetcher{price: 1}, "/markets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("/definitely/not/there.conf")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30_000, cfg.CacheTTLMs)
	assert.Equal(t, []string{"coingecko", "defillama"}, cfg.Providers)
}
