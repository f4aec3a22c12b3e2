package app

import (
	"context"
	"log/slog"
	"time"

	"stockpane/internal/config"
	"stockpane/internal/quote"
	"stockpane/internal/store"
)

// providerTimeout bounds a single HTTP request to the quote provider.
const providerTimeout = 10 * time.Second

// Build wires the Alpaca quote source and the configured registry backend
// and opens the application.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Application, error) {
	if cfg.Alpaca.APIKey == "" {
		log.Warn("no Alpaca API key configured; quote fetches will fail")
	}
	src := quote.Limited(quote.NewAlpacaSource(quote.AlpacaOptions{
		APIKey:     cfg.Alpaca.APIKey,
		APISecret:  cfg.Alpaca.APISecret,
		BaseURL:    cfg.Alpaca.BaseURL,
		DataURL:    cfg.Alpaca.DataURL,
		Feed:       cfg.Alpaca.Feed,
		Timeout:    min(providerTimeout, cfg.Refresh.PollInterval),
		Retries:    cfg.Refresh.FetchRetries,
		RetryDelay: cfg.Refresh.RetryDelay,
	}, log), cfg.Refresh.RateLimitPerMin)

	registry, err := store.OpenRegistry(cfg.Storage.RegistryBackend, cfg.Storage.RegistryPath(), cfg.Storage.SQLiteFile())
	if err != nil {
		return nil, err
	}
	a, err := Open(ctx, *cfg, src, registry, log)
	if err != nil {
		registry.Close()
		return nil, err
	}
	return a, nil
}
