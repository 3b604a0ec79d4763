package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	slog "log/slog"
)

// Default upstream endpoints. Overridable per client for tests and
// self-hosted mirrors.
const (
	DefaultBinanceURL   = "https://fapi.binance.com/fapi/v1/ticker/price"
	DefaultCoingeckoURL = "https://api.coingecko.com/api/v3"
	DefaultDefiLlamaURL = "https://coins.llama.fi/prices/current"

	coingeckoProURL = "https://pro-api.coingecko.com/api/v3"
)

// Quote is one provider's observation of an asset's USD price.
type Quote struct {
	Asset        string    `json:"asset"`
	PriceDecimal float64   `json:"price_decimal"`
	Source       string    `json:"source"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// ErrRateLimited marks an upstream 429. The fallback chain advances on it
// immediately instead of retrying the same provider.
var ErrRateLimited = errors.New("upstream rate limited")

// PriceClient fetches quotes from the configured upstreams, supporting demo
// and pro Coingecko API keys.
type PriceClient struct {
	http             *http.Client
	coingeckoAPIKey  string
	coingeckoKeyType string // "demo" or "pro"

	binanceURL   string
	coingeckoURL string
	defillamaURL string
}

// ClientOption adjusts a PriceClient, mainly endpoint overrides in tests.
type ClientOption func(*PriceClient)

// WithBinanceURL overrides the Binance futures ticker endpoint.
func WithBinanceURL(u string) ClientOption {
	return func(pc *PriceClient) { pc.binanceURL = u }
}

// WithCoingeckoURL overrides the Coingecko API base URL.
func WithCoingeckoURL(u string) ClientOption {
	return func(pc *PriceClient) { pc.coingeckoURL = u }
}

// WithDefiLlamaURL overrides the DefiLlama current-prices base URL.
func WithDefiLlamaURL(u string) ClientOption {
	return func(pc *PriceClient) { pc.defillamaURL = u }
}

// NewPriceClient returns a PriceClient with default timeout and Coingecko
// API key/type.
func NewPriceClient(httpClient *http.Client, key, keyType string, opts ...ClientOption) *PriceClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	pc := &PriceClient{
		http:             httpClient,
		coingeckoAPIKey:  key,
		coingeckoKeyType: keyType,
		binanceURL:       DefaultBinanceURL,
		coingeckoURL:     DefaultCoingeckoURL,
		defillamaURL:     DefaultDefiLlamaURL,
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc
}

// get issues a GET and converts non-2xx statuses into errors, tagging 429
// with ErrRateLimited.
func (pc *PriceClient) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := pc.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		slog.Warn("upstream rate limited", "url", url)
		return nil, fmt.Errorf("%s: %w", url, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("upstream non-200 response", "url", url, "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return body, nil
}

// FetchBinance retrieves the asset's USD price from the Binance futures
// ticker endpoint.
func (pc *PriceClient) FetchBinance(ctx context.Context, asset string) (Quote, error) {
	pair, ok := MapSymbol(asset, SourceBinance)
	if !ok {
		return Quote{}, fmt.Errorf("binance pair unknown for %s", asset)
	}

	body, err := pc.get(ctx, fmt.Sprintf("%s?symbol=%s", pc.binanceURL, pair), nil)
	if err != nil {
		return Quote{}, err
	}

	var out struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		slog.Error("decoding Binance response", "error", err)
		return Quote{}, err
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		slog.Error("parsing Binance price", "error", err, "price", out.Price)
		return Quote{}, err
	}
	if price <= 0 {
		return Quote{}, fmt.Errorf("binance returned non-positive price for %s", pair)
	}

	return Quote{Asset: asset, PriceDecimal: price, Source: SourceBinance.String(), FetchedAt: time.Now()}, nil
}

// coingeckoBase selects the base URL and API-key header based on key type.
func (pc *PriceClient) coingeckoBase() (string, map[string]string) {
	baseURL := pc.coingeckoURL
	headers := map[string]string{}
	if pc.coingeckoAPIKey != "" {
		switch pc.coingeckoKeyType {
		case "pro":
			if baseURL == DefaultCoingeckoURL {
				baseURL = coingeckoProURL
			}
			headers["x-cg-pro-api-key"] = pc.coingeckoAPIKey
		default:
			headers["x-cg-demo-api-key"] = pc.coingeckoAPIKey
		}
	}
	return baseURL, headers
}

// FetchCoingecko retrieves the asset's USD price from the Coingecko
// simple/price endpoint.
func (pc *PriceClient) FetchCoingecko(ctx context.Context, asset string) (Quote, error) {
	id, ok := MapSymbol(asset, SourceCoingecko)
	if !ok {
		return Quote{}, fmt.Errorf("coingecko id unknown for %s", asset)
	}

	baseURL, headers := pc.coingeckoBase()
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", baseURL, id)
	body, err := pc.get(ctx, url, headers)
	if err != nil {
		return Quote{}, err
	}

	// Response format: {"bitcoin":{"usd":...}}
	var data map[string]map[string]float64
	if err := json.Unmarshal(body, &data); err != nil {
		slog.Error("decoding Coingecko response", "error", err)
		return Quote{}, err
	}
	price, ok := data[id]["usd"]
	if !ok || price <= 0 {
		return Quote{}, fmt.Errorf("invalid Coingecko data for %s: %+v", id, data)
	}

	return Quote{Asset: asset, PriceDecimal: price, Source: SourceCoingecko.String(), FetchedAt: time.Now()}, nil
}

// FetchDefiLlama retrieves the asset's USD price from the DefiLlama
// current-prices endpoint.
func (pc *PriceClient) FetchDefiLlama(ctx context.Context, asset string) (Quote, error) {
	id, ok := MapSymbol(asset, SourceDefiLlama)
	if !ok {
		return Quote{}, fmt.Errorf("defillama id unknown for %s", asset)
	}

	body, err := pc.get(ctx, fmt.Sprintf("%s/%s", pc.defillamaURL, id), nil)
	if err != nil {
		return Quote{}, err
	}

	// Price sits at coins["<id>:usd"].price
	v := gjson.GetBytes(body, "coins."+id+"\\:usd.price")
	if !v.Exists() || v.Float() <= 0 {
		return Quote{}, fmt.Errorf("defillama: missing price for %s", id)
	}

	return Quote{Asset: asset, PriceDecimal: v.Float(), Source: SourceDefiLlama.String(), FetchedAt: time.Now()}, nil
}

// FetchMarkets retrieves the raw coin-catalog markets listing for the given
// catalog ids. The payload is passed through to callers untouched.
func (pc *PriceClient) FetchMarkets(ctx context.Context, ids []string) ([]byte, error) {
	baseURL, headers := pc.coingeckoBase()
	url := fmt.Sprintf("%s/coins/markets?vs_currency=usd&ids=%s&order=market_cap_desc&sparkline=true",
		baseURL, strings.Join(ids, ","))
	body, err := pc.get(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsArray() {
		return nil, fmt.Errorf("markets: unexpected payload shape")
	}
	return body, nil
}
