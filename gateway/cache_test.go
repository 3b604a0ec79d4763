package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/addnad/perpgate/oracle"
)

func TestCachePutOverwrites(t *testing.T) {
	c := NewCache()
	_, ok := c.Get("BTC")
	assert.False(t, ok)

	c.Put("BTC", oracle.Quote{Asset: "BTC", PriceDecimal: 65000})
	c.Put("BTC", oracle.Quote{Asset: "BTC", PriceDecimal: 66000})

	q, ok := c.Get("BTC")
	assert.True(t, ok)
	assert.Equal(t, 66000.0, q.PriceDecimal)
}

func TestFreshWindow(t *testing.T) {
	now := time.Now()
	q := oracle.Quote{FetchedAt: now.Add(-29 * time.Second)}
	assert.True(t, Fresh(q, 30*time.Second, now))

	q.FetchedAt = now.Add(-30 * time.Second)
	assert.False(t, Fresh(q, 30*time.Second, now), "age == ttl is expired")

	// Same entry under the 5m deployment variant is still fresh.
	assert.True(t, Fresh(q, 5*time.Minute, now))
}

func TestRestoreKeepsNewerEntries(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.Put("BTC", oracle.Quote{Asset: "BTC", PriceDecimal: 66000, FetchedAt: now})

	c.Restore([]oracle.Quote{
		{Asset: "BTC", PriceDecimal: 65000, FetchedAt: now.Add(-time.Hour)},
		{Asset: "ETH", PriceDecimal: 2500, FetchedAt: now.Add(-time.Hour)},
	})

	q, _ := c.Get("BTC")
	assert.Equal(t, 66000.0, q.PriceDecimal, "restore must not roll a price backwards")
	q, ok := c.Get("ETH")
	assert.True(t, ok)
	assert.Equal(t, 2500.0, q.PriceDecimal)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.Put("BTC", oracle.Quote{Asset: "BTC", PriceDecimal: 66000, FetchedAt: now})
	c.Put("ETH", oracle.Quote{Asset: "ETH", PriceDecimal: 2500, FetchedAt: now})

	restored := NewCache()
	restored.Restore(c.Snapshot())
	for _, asset := range []string{"BTC", "ETH"} {
		want, _ := c.Get(asset)
		got, ok := restored.Get(asset)
		assert.True(t, ok)
		assert.Equal(t, want.PriceDecimal, got.PriceDecimal)
	}
}
