package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cwygoda/tokbot/internal/adapter/postgres"
	"github.com/cwygoda/tokbot/internal/adapter/provider"
	"github.com/cwygoda/tokbot/internal/adapter/sqlite"
	"github.com/cwygoda/tokbot/internal/adapter/stream"
	"github.com/cwygoda/tokbot/internal/config"
	"github.com/cwygoda/tokbot/internal/domain"
)

// store is a usage repository the process owns and closes on exit.
type store interface {
	domain.UsageRepository
	Ping(ctx context.Context) error
	Close() error
}

// openStore opens the configured usage store.
func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		repo, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		return repo, nil
	default:
		repo, err := sqlite.New(config.ExpandPath(cfg.Database.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return repo, nil
	}
}

// usageRecorder returns the store, fanned out to the Redis stream when one
// is configured. The returned close func releases the Redis client.
func usageRecorder(ctx context.Context, cfg *config.Config, st store) (domain.UsageRecorder, func(), error) {
	if cfg.Redis.URL == "" {
		return st, func() {}, nil
	}
	client, err := stream.Dial(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	pub := stream.NewPublisher(client,
		stream.WithStream(cfg.Redis.Stream),
		stream.WithMaxLen(cfg.Redis.MaxLen),
	)
	return domain.FanoutRecorder{st, pub}, func() { client.Close() }, nil
}

// newExtractor wires the configured providers and the shared fetcher.
func newExtractor(cfg *config.Config, client *http.Client, deliverer domain.Deliverer, obs domain.Observer) (*domain.Extractor, error) {
	providers, err := provider.FromConfig(cfg, client)
	if err != nil {
		return nil, err
	}
	opts := []domain.ExtractorOption{
		domain.WithMaxFileSize(cfg.MaxFileSize),
		domain.WithFetchConcurrency(cfg.FetchConcurrency),
		domain.WithLogger(appLogger),
	}
	if obs != nil {
		opts = append(opts, domain.WithObserver(obs))
	}
	return domain.NewExtractor(providers, provider.NewFetcher(client), deliverer, opts...), nil
}
