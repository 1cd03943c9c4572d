package main

import (
	"fmt"

	"github.com/yourusername/traceboard/pkg/config"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/storage"
	"github.com/yourusername/traceboard/pkg/storage/badger"
	"github.com/yourusername/traceboard/pkg/storage/clickhouse"
	"github.com/yourusername/traceboard/pkg/storage/elasticsearch"
)

// backends holds the stores built from the configuration. A store is nil
// when its backend has no address configured.
type backends struct {
	tenants  *badger.Store
	search   storage.AnalyticsStore
	columnar storage.AnalyticsStore
}

func limitsFrom(cfg *config.Config) storage.Limits {
	return storage.Limits{
		MaxBuckets:   cfg.Analytics.MaxBuckets,
		Options:      cfg.Analytics.FilterOptionsLimit,
		TopDocuments: cfg.Analytics.TopDocumentsLimit,
		Feedback:     cfg.Analytics.FeedbackLimit,
	}
}

func openBackends(cfg *config.Config, reg *registry.Registry) (*backends, error) {
	tenants, err := badger.NewStore(cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tenant store: %w", err)
	}
	b := &backends{tenants: tenants}
	limits := limitsFrom(cfg)

	if len(cfg.Storage.Search.Addresses) > 0 {
		client, err := elasticsearch.NewClient(cfg.Storage.Search)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to initialize Elasticsearch: %w", err)
		}
		b.search = elasticsearch.NewStore(client, cfg.Storage.Search.Index, reg, tenants, limits, cfg.Storage.Search.TermsFallback)
	}

	if len(cfg.Storage.ClickHouse.Addresses) > 0 {
		conn, err := clickhouse.Open(cfg.Storage.ClickHouse)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
		}
		b.columnar = clickhouse.NewStore(conn, reg, tenants, limits)
	}

	return b, nil
}

func (b *backends) Close() {
	if b.search != nil {
		_ = b.search.Close()
	}
	if b.columnar != nil {
		_ = b.columnar.Close()
	}
	_ = b.tenants.Close()
}
