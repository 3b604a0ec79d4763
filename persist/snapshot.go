// Package persist snapshots the price cache to Redis so a restarted
// instance can stale-serve through an upstream outage.
package persist

import (
	"context"
	"fmt"
	"strconv"
	"time"

	slog "log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack"

	"github.com/addnad/perpgate/gateway"
	"github.com/addnad/perpgate/oracle"
)

// Store handles persistence of cache snapshots in Redis under a given key
// prefix.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New creates a new Store using the provided Redis client and key prefix.
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// key constructs the Redis key for a specific field (quotes, updated).
func (s *Store) key(field string) string {
	return fmt.Sprintf("%s:%s", s.prefix, field)
}

// Snapshot represents the persisted state of the price cache.
type Snapshot struct {
	Quotes  []oracle.Quote // persisted cache entries
	Updated time.Time      // timestamp of the save
}

// Load retrieves the cache snapshot from Redis. Returns an error if any
// field is missing or invalid.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	vals, err := s.rdb.MGet(ctx,
		s.key("quotes"),
		s.key("updated"),
	).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, fmt.Errorf("snapshot missing fields")
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid quotes data type: %T", vals[0])
	}
	var quotes []oracle.Quote
	if err := msgpack.Unmarshal([]byte(raw), &quotes); err != nil {
		return nil, err
	}

	updatedMs, err := strconv.ParseInt(vals[1].(string), 10, 64)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Quotes: quotes, Updated: time.UnixMilli(updatedMs)}, nil
}

// Save writes the current cache contents to Redis atomically using a
// pipeline.
func (s *Store) Save(ctx context.Context, cache *gateway.Cache) error {
	quotes := cache.Snapshot()
	data, err := msgpack.Marshal(quotes)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("quotes"), data, 0)
		pipe.Set(ctx, s.key("updated"), time.Now().UnixMilli(), 0)
		return nil
	})
	if err != nil {
		slog.Error("persist: snapshot save failed", "error", err)
		return err
	}
	slog.Debug("snapshot saved", "quotes", len(quotes))
	return nil
}

// Start begins a background loop that saves the cache every interval until
// ctx is done.
func Start(ctx context.Context, store *Store, cache *gateway.Cache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Save(ctx, cache); err != nil {
				slog.Error("persist: error saving snapshot", "error", err)
			}
		}
	}
}
