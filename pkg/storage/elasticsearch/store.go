package elasticsearch

import (
	"context"
	"encoding/json"

	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/esquery"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/normalize"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/storage"
)

// Store implements the AnalyticsStore interface using Elasticsearch
type Store struct {
	client   Searcher
	index    string
	compiler *Compiler
	registry *registry.Registry
	labels   storage.LabelResolver
	limits   storage.Limits
}

// NewStore creates a new Elasticsearch store reading from index
func NewStore(client Searcher, index string, reg *registry.Registry, labels storage.LabelResolver, limits storage.Limits, termsFallback bool) *Store {
	return &Store{
		client:   client,
		index:    index,
		compiler: NewCompiler(reg, limits.MaxBuckets, termsFallback),
		registry: reg,
		labels:   labels,
		limits:   limits,
	}
}

// Name identifies the backend
func (s *Store) Name() string {
	return storage.BackendSearch
}

// Timeseries compiles, runs and extracts a timeseries query
func (s *Store) Timeseries(ctx context.Context, q models.TimeseriesQuery) (*models.TimeseriesResult, error) {
	plan, err := s.compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	var labels map[string]string
	if plan.Group != nil {
		labels = storage.ResolveLabels(ctx, s.labels, q.TenantID, plan.Group.LabelResolver)
	}
	resp, err := s.search(ctx, plan.Request)
	if err != nil {
		return nil, err
	}
	result, err := Extract(plan, resp, labels)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to extract timeseries", err)
	}
	normalize.Apply(result)
	return result, nil
}

// Health checks the cluster
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close releases the store; the HTTP transport needs no teardown
func (s *Store) Close() error {
	return nil
}

func (s *Store) search(ctx context.Context, req *esquery.Request) (map[string]any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode search request", err)
	}
	resp, err := s.client.Search(ctx, s.index, body)
	if err != nil {
		return nil, apperrors.NewBackendError(s.Name(), err)
	}
	return resp, nil
}
