package clickhouse

import (
	"context"

	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/normalize"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/storage"
)

// Store implements the AnalyticsStore interface using ClickHouse
type Store struct {
	db       Querier
	compiler *Compiler
	registry *registry.Registry
	labels   storage.LabelResolver
	limits   storage.Limits
}

// NewStore creates a new ClickHouse store
func NewStore(db Querier, reg *registry.Registry, labels storage.LabelResolver, limits storage.Limits) *Store {
	return &Store{
		db:       db,
		compiler: NewCompiler(reg, limits.MaxBuckets),
		registry: reg,
		labels:   labels,
		limits:   limits,
	}
}

// Name identifies the backend
func (s *Store) Name() string {
	return storage.BackendColumnar
}

// Timeseries compiles, runs and parses a timeseries query
func (s *Store) Timeseries(ctx context.Context, q models.TimeseriesQuery) (*models.TimeseriesResult, error) {
	compiled, err := s.compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	var labels map[string]string
	if compiled.Layout.Group != nil {
		labels = storage.ResolveLabels(ctx, s.labels, q.TenantID, compiled.Layout.Group.LabelResolver)
	}
	rows, err := s.db.Rows(ctx, compiled.SQL, compiled.Params)
	if err != nil {
		return nil, apperrors.NewBackendError(s.Name(), err)
	}
	result, err := Parse(rows, q.Series, compiled.Layout, labels)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to parse timeseries rows", err)
	}
	normalize.Apply(result)
	return result, nil
}

// Health checks the connection
func (s *Store) Health(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) selectRows(ctx context.Context, dest any, query string, params map[string]string) error {
	if err := s.db.Select(ctx, dest, query, params); err != nil {
		return apperrors.NewBackendError(s.Name(), err)
	}
	return nil
}
