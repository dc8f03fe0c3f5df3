package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/auroca-io/Asset-Referenced-Token/config"
	"github.com/auroca-io/Asset-Referenced-Token/core/events"
	"github.com/auroca-io/Asset-Referenced-Token/gateway"
	"github.com/auroca-io/Asset-Referenced-Token/gateway/middleware"
	"github.com/auroca-io/Asset-Referenced-Token/native/basket"
	"github.com/auroca-io/Asset-Referenced-Token/native/pricing"
	"github.com/auroca-io/Asset-Referenced-Token/native/token"
	"github.com/auroca-io/Asset-Referenced-Token/observability"
	"github.com/auroca-io/Asset-Referenced-Token/observability/logging"
	oraclemetrics "github.com/auroca-io/Asset-Referenced-Token/observability/metrics"
	"github.com/auroca-io/Asset-Referenced-Token/observability/otel"
	"github.com/auroca-io/Asset-Referenced-Token/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ART_ENV"))
	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.Setup("artd", env).Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.SetupWithLevel("artd", env, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "artd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown incomplete", slog.Any("error", err))
			}
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", slog.Any("error", err))
		os.Exit(1)
	}
	state, err := storage.OpenBolt(filepath.Join(cfg.DataDir, "wrapper.db"), nil)
	if err != nil {
		logger.Error("failed to open state database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = state.Close() }()

	directory := token.NewDirectory()
	for _, tok := range cfg.Tokens {
		addr := ethcommon.HexToAddress(tok.Address)
		if err := directory.Register(addr, token.NewLedger(tok.Symbol, tok.Decimals)); err != nil {
			logger.Error("failed to register token", "symbol", tok.Symbol, slog.Any("error", err))
			os.Exit(1)
		}
	}

	adapter := pricing.NewAdapter(cfg.Oracle.FreshnessOrDefault())
	for _, feedCfg := range cfg.Feeds {
		feed, err := buildFeed(feedCfg)
		if err != nil {
			logger.Error("failed to build price feed", "token", feedCfg.Token, slog.Any("error", err))
			os.Exit(1)
		}
		if err := adapter.Bind(ethcommon.HexToAddress(feedCfg.Token), feed); err != nil {
			logger.Error("failed to bind price feed", "token", feedCfg.Token, slog.Any("error", err))
			os.Exit(1)
		}
	}

	registry := basket.NewRegistry(state)
	guard := pricing.NewGuard(registry, adapter)
	if cfg.Engine.ToleranceBps > 0 {
		if err := guard.SetTolerance(cfg.Engine.ToleranceBps); err != nil {
			logger.Error("invalid slippage tolerance", slog.Any("error", err))
			os.Exit(1)
		}
	}

	owner := ethcommon.HexToAddress(cfg.Owner)
	custody := ethcommon.HexToAddress(cfg.Custody)
	engine := basket.NewEngine(state, registry, directory, basket.NewAuthority(owner), custody)
	engine.SetPricing(adapter, guard)
	if err := engine.RestorePauseState(); err != nil {
		logger.Error("failed to restore pause state", slog.Any("error", err))
		os.Exit(1)
	}

	recorder := events.NewRecorder(256)
	engine.SetEmitter(events.Fanout{
		recorder,
		events.EmitterFunc(func(evt events.Event) {
			observability.Events().RecordEvent(evt.EventType())
			logger.Info("event", eventAttrs(evt)...)
		}),
	})
	registry.SetEmitter(recorder)

	go sampleHealth(ctx, engine, adapter, registry, logger)

	server := gateway.NewServer(engine, adapter, guard, recorder, logger)
	handler := server.Router(gateway.Config{
		Auth: middleware.AuthConfig{
			Enabled:    cfg.Gateway.AuthEnabled,
			HMACSecret: cfg.Gateway.ResolveAuthSecret(),
			Issuer:     cfg.Gateway.Issuer,
			Audience:   cfg.Gateway.Audience,
		},
		RateLimits: map[string]middleware.RateLimit{
			"mint": {RequestsPerMinute: cfg.Gateway.MintPerMinute, Burst: cfg.Gateway.Burst},
			"burn": {RequestsPerMinute: cfg.Gateway.BurnPerMinute, Burst: cfg.Gateway.Burst},
		},
		Observability: middleware.ObservabilityConfig{
			ServiceName: "artd",
			LogRequests: cfg.Gateway.LogRequests,
			Enabled:     true,
		},
		CORS: middleware.CORSConfig{AllowedOrigins: cfg.Gateway.AllowedOrigins},
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway stopped", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown incomplete", slog.Any("error", err))
	}
}

func buildFeed(cfg config.FeedConfig) (pricing.PriceFeed, error) {
	if strings.TrimSpace(cfg.Endpoint) != "" {
		return pricing.NewHTTPFeed(nil, cfg.Endpoint, cfg.Decimals)
	}
	manual := pricing.NewManualFeed(cfg.Decimals)
	if err := manual.SetDecimal(cfg.Price, time.Now()); err != nil {
		return nil, err
	}
	return manual, nil
}

func eventAttrs(evt events.Event) []any {
	attrs := evt.Attributes()
	out := make([]any, 0, 2+2*len(attrs))
	out = append(out, "type", evt.EventType())
	for key, value := range attrs {
		out = append(out, key, value)
	}
	return out
}

// sampleHealth periodically publishes supply, dust, pause, and oracle
// freshness gauges so dashboards track them without request traffic.
func sampleHealth(ctx context.Context, engine *basket.Engine, adapter *pricing.Adapter, registry *basket.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		metrics := observability.Engine()
		if supply, err := engine.TotalSupply(); err == nil {
			metrics.SetSupply(supply)
		}
		metrics.SetPaused(engine.Paused())
		if dust, err := engine.Dust(); err == nil {
			for asset, units := range dust {
				metrics.SetDust(asset.Hex(), units)
			}
		}
		legs, err := registry.ActiveLegs()
		if err != nil {
			continue
		}
		now := time.Now()
		for _, leg := range legs {
			_, updatedAt, priceErr := adapter.Reading(leg.Token)
			oraclemetrics.Oracle().RecordRead(leg.Token.Hex(), priceErr)
			if priceErr != nil {
				logger.Warn("asset unpriceable", "token", strings.ToLower(leg.Token.Hex()), slog.Any("error", priceErr))
				continue
			}
			oraclemetrics.Oracle().RecordReading(leg.Token.Hex(), updatedAt, now)
		}
	}
}
