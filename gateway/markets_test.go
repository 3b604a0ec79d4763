package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketsListingCached(t *testing.T) {
	var calls int32
	m := NewMarkets(func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`[{"id":"bitcoin"}]`), nil
	}, time.Minute)

	body, err := m.Listing(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"bitcoin"}]`, string(body))

	_, err = m.Listing(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestMarketsServesPreviousBodyOnFailure(t *testing.T) {
	var fail atomic.Bool
	m := NewMarkets(func(ctx context.Context) ([]byte, error) {
		if fail.Load() {
			return nil, errors.New("upstream down")
		}
		return []byte(`[{"id":"ethereum"}]`), nil
	}, time.Nanosecond)

	_, err := m.Listing(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	time.Sleep(time.Millisecond)
	body, err := m.Listing(context.Background())
	require.NoError(t, err, "previous listing should mask the failure")
	assert.JSONEq(t, `[{"id":"ethereum"}]`, string(body))
}

func TestMarketsErrorWithNoCachedBody(t *testing.T) {
	m := NewMarkets(func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("upstream down")
	}, time.Minute)

	_, err := m.Listing(context.Background())
	assert.Error(t, err)
}
