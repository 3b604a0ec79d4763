// Package oracle provides multi-source USD price fetching with ordered
// provider fallback and fixed-point oracle encoding.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	slog "log/slog"
)

// Source represents an upstream price provider.
type Source int

const (
	SourceBinance Source = iota
	SourceCoingecko
	SourceDefiLlama
)

// String returns the name of the source.
func (s Source) String() string {
	switch s {
	case SourceBinance:
		return "Binance"
	case SourceCoingecko:
		return "Coingecko"
	case SourceDefiLlama:
		return "DefiLlama"
	default:
		return "Unknown"
	}
}

// ParseSource resolves a config string to a Source.
func ParseSource(name string) (Source, error) {
	switch strings.ToLower(name) {
	case "binance":
		return SourceBinance, nil
	case "coingecko":
		return SourceCoingecko, nil
	case "defillama":
		return SourceDefiLlama, nil
	default:
		return 0, fmt.Errorf("unknown price source %q", name)
	}
}

// ChainConfig holds fallback-chain settings.
type ChainConfig struct {
	Sources        []Source      // strict priority order, primary first
	AttemptTimeout time.Duration // per-provider timeout
}

// Chain consults providers in priority order until one returns a usable
// quote. One pass per invocation: no retry, no backoff. Retries across time
// happen only via the next request triggering a new pass.
type Chain struct {
	pc  *PriceClient
	cfg ChainConfig
}

// NewChain creates a Chain over the given client and config.
func NewChain(pc *PriceClient, cfg ChainConfig) *Chain {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 4 * time.Second
	}
	return &Chain{pc: pc, cfg: cfg}
}

// Supports reports whether any configured source maps the asset.
func (c *Chain) Supports(asset string) bool {
	return Supported(asset, c.cfg.Sources)
}

// Fetch attempts each source in order and returns the first usable quote.
// Sources without a listing for the asset are skipped. The returned error
// joins every attempt's failure when the chain is exhausted.
func (c *Chain) Fetch(ctx context.Context, asset string) (Quote, error) {
	var errs []error
	for _, src := range c.cfg.Sources {
		if _, ok := MapSymbol(asset, src); !ok {
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		q, err := c.fetchFrom(attemptCtx, src, asset)
		cancel()

		if err == nil {
			slog.Info("source fetch success", "source", src, "asset", asset, "price", q.PriceDecimal)
			return q, nil
		}
		slog.Warn("source fetch failed, falling back", "source", src, "asset", asset, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", src, err))
	}
	if len(errs) == 0 {
		return Quote{}, fmt.Errorf("no source maps asset %s", asset)
	}
	return Quote{}, errors.Join(errs...)
}

func (c *Chain) fetchFrom(ctx context.Context, src Source, asset string) (Quote, error) {
	switch src {
	case SourceBinance:
		return c.pc.FetchBinance(ctx, asset)
	case SourceCoingecko:
		return c.pc.FetchCoingecko(ctx, asset)
	case SourceDefiLlama:
		return c.pc.FetchDefiLlama(ctx, asset)
	default:
		return Quote{}, fmt.Errorf("unknown source %d", src)
	}
}
