package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	slog "log/slog"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/addnad/perpgate/docs"
	"github.com/addnad/perpgate/gateway"
	"github.com/addnad/perpgate/oracle"
	"github.com/addnad/perpgate/persist"
)

// Config holds service and gateway configuration loaded from JSON file.
type Config struct {
	Port             int      `json:"port"`
	CacheTTLMs       int      `json:"cache_ttl_ms"`
	FetchTimeoutMs   int      `json:"fetch_timeout_ms"`
	Providers        []string `json:"providers"`
	MarketsIDs       []string `json:"markets_ids"`
	MarketsTTLMs     int      `json:"markets_ttl_ms"`
	RedisURL         string   `json:"redis_url"`
	SnapshotSec      int      `json:"snapshot_sec"`
	LogLevel         string   `json:"log_level"`
	CoingeckoAPIKey  string   `json:"coingecko_api_key"`
	CoingeckoKeyType string   `json:"coingecko_key_type"`
}

// envOverrides are deploy-time overrides for secrets and surface settings.
type envOverrides struct {
	Port             int    `envconfig:"PORT"`
	RedisURL         string `envconfig:"REDIS_URL"`
	CoingeckoAPIKey  string `envconfig:"COINGECKO_API_KEY"`
	CoingeckoKeyType string `envconfig:"COINGECKO_KEY_TYPE"`
}

// ErrorResponse defines the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

var logLevel = slog.LevelVar{}

// defaultConfig returns the 30s-TTL deployment variant.
func defaultConfig() *Config {
	return &Config{
		Port:           8080,
		CacheTTLMs:     30_000,
		FetchTimeoutMs: 4_000,
		Providers:      []string{"coingecko", "defillama"},
		MarketsIDs:     []string{"bitcoin", "ethereum", "solana", "cardano", "polkadot"},
		MarketsTTLMs:   10_000,
		SnapshotSec:    60,
		LogLevel:       "info",
	}
}

// loadConfig reads JSON config from path, starting from defaults. A missing
// file is not an error; env overrides still apply.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding config JSON: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("opening config file: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("processing env overrides: %w", err)
	}
	if env.Port > 0 {
		cfg.Port = env.Port
	}
	if env.RedisURL != "" {
		cfg.RedisURL = env.RedisURL
	}
	if env.CoingeckoAPIKey != "" {
		cfg.CoingeckoAPIKey = env.CoingeckoAPIKey
	}
	if env.CoingeckoKeyType != "" {
		cfg.CoingeckoKeyType = env.CoingeckoKeyType
	}
	return cfg, nil
}

// configPath resolves the config file location.
func configPath() string {
	if p := os.Getenv("GATEWAY_CONF"); p != "" {
		return p
	}
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	return "/etc/perpgate.conf"
}

// initLogger configures slog structured logger with the configured level.
func initLogger(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	logLevel.Set(lvl)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel})
	slog.SetDefault(slog.New(handler))
}

// initRedis initializes and verifies the Redis client.
func initRedis(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		slog.Error("invalid Redis URL", "error", err)
		os.Exit(1)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("cannot connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// buildGateway assembles the provider chain and gateway from config.
func buildGateway(cfg *Config) (*gateway.Gateway, *oracle.PriceClient, error) {
	sources := make([]oracle.Source, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		src, err := oracle.ParseSource(name)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, src)
	}

	pc := oracle.NewPriceClient(nil, cfg.CoingeckoAPIKey, cfg.CoingeckoKeyType)
	chain := oracle.NewChain(pc, oracle.ChainConfig{
		Sources:        sources,
		AttemptTimeout: time.Duration(cfg.FetchTimeoutMs) * time.Millisecond,
	})
	gw := gateway.New(chain, gateway.Config{
		TTL: time.Duration(cfg.CacheTTLMs) * time.Millisecond,
	})
	return gw, pc, nil
}

// startPersistence restores a cache snapshot and begins the snapshot loop.
func startPersistence(ctx context.Context, cfg *Config, gw *gateway.Gateway) {
	rdb := initRedis(cfg.RedisURL)
	store := persist.New(rdb, "perpgate")

	// Even an old snapshot is worth restoring: stale entries let the
	// gateway answer through an upstream outage right after a restart.
	if snap, err := store.Load(ctx); err == nil {
		gw.Cache().Restore(snap.Quotes)
		slog.Info("restored price cache", "quotes", len(snap.Quotes), "updated", snap.Updated)
	} else {
		slog.Warn("no snapshot found", "error", err)
	}

	go persist.Start(ctx, store, gw.Cache(), time.Duration(cfg.SnapshotSec)*time.Second)
}

// priceHandler handles /price requests.
// @Summary Get oracle price
// @Description Returns a recent USD price for the asset in 8-decimal fixed-point oracle format
// @Tags price
// @Produce json
// @Param asset query string true "Asset ticker (e.g. BTC)"
// @Success 200 {object} gateway.Result
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /price [get]
func priceHandler(gw *gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		asset := c.QueryParam("asset")
		res, err := gw.Price(c.Request().Context(), asset)
		if err != nil {
			if errors.Is(err, gateway.ErrAssetNotSupported) {
				return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Asset not supported"})
			}
			slog.Error("all price sources failed", "asset", asset, "error", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch price from all sources"})
		}
		return c.JSON(http.StatusOK, res)
	}
}

// marketsHandler handles /markets requests.
// @Summary Get market overview
// @Description Returns the cached coin-catalog markets listing
// @Tags price
// @Produce json
// @Success 200 {array} object
// @Failure 500 {object} ErrorResponse
// @Router /markets [get]
func marketsHandler(m *gateway.Markets) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := m.Listing(c.Request().Context())
		if err != nil {
			slog.Error("markets listing failed", "error", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch crypto prices"})
		}
		return c.JSONBlob(http.StatusOK, body)
	}
}

// metricsHandler handles /metrics requests.
// @Summary Prometheus metrics
// @Description Exposes Prometheus-compatible metrics
// @Tags metrics
// @Produce plain
// @Success 200
// @Router /metrics [get]
func metricsHandler(c echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

// initHTTP sets up the Echo server with routes and middleware.
func initHTTP(gw *gateway.Gateway, markets *gateway.Markets) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/healthz" || p == "/readyz"
		},
	}))

	// Routes
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/readyz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/price", priceHandler(gw))
	e.GET("/markets", marketsHandler(markets))
	e.GET("/metrics", metricsHandler)

	// Swagger
	e.GET("/swagger", func(c echo.Context) error { return c.Redirect(http.StatusMovedPermanently, "/swagger/index.html") })
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.GET("/", func(c echo.Context) error { return c.Redirect(http.StatusFound, "/swagger/index.html") })

	return e
}

// @title perpgate price oracle feed gateway
// @version 1.0
// @description USD price gateway with TTL caching, request deduplication, and provider fallback.
func main() {
	// .env file is optional; real env always wins
	_ = godotenv.Load()

	cfg, err := loadConfig(configPath())
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	initLogger(cfg.LogLevel)
	slog.Info("Starting service", "port", cfg.Port, "ttl_ms", cfg.CacheTTLMs, "providers", cfg.Providers)

	gw, pc, err := buildGateway(cfg)
	if err != nil {
		slog.Error("gateway configuration error", "error", err)
		os.Exit(1)
	}
	markets := gateway.NewMarkets(func(ctx context.Context) ([]byte, error) {
		return pc.FetchMarkets(ctx, cfg.MarketsIDs)
	}, time.Duration(cfg.MarketsTTLMs)*time.Millisecond)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisURL != "" {
		startPersistence(ctx, cfg, gw)
	}

	// Start HTTP server
	e := initHTTP(gw, markets)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.Shutdown(shutdownCtx)
	slog.Info("Server stopped")
}
