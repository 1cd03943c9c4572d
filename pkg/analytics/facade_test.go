package analytics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/storage"
	"github.com/yourusername/traceboard/pkg/telemetry"
)

// fakeStore answers every operation with fixed results
type fakeStore struct {
	name       string
	timeseries *models.TimeseriesResult
	options    *models.FilterOptionsResult
	err        error
	calls      atomic.Int32
}

func (f *fakeStore) Name() string { return f.name }

func (f *fakeStore) Timeseries(context.Context, models.TimeseriesQuery) (*models.TimeseriesResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.timeseries, nil
}

func (f *fakeStore) FilterOptions(context.Context, models.FilterOptionsQuery) (*models.FilterOptionsResult, error) {
	f.calls.Add(1)
	return f.options, f.err
}

func (f *fakeStore) TopDocuments(context.Context, models.DocumentsQuery) (*models.TopDocumentsResult, error) {
	f.calls.Add(1)
	return &models.TopDocumentsResult{}, f.err
}

func (f *fakeStore) FeedbackEvents(context.Context, models.FeedbackQuery) (*models.FeedbackResult, error) {
	f.calls.Add(1)
	return &models.FeedbackResult{}, f.err
}

func (f *fakeStore) Health(context.Context) error { return f.err }
func (f *fakeStore) Close() error                 { return nil }

var _ storage.AnalyticsStore = (*fakeStore)(nil)

type flagMap map[string]bool

func (m flagMap) ColumnarEnabled(_ context.Context, tenantID string) (bool, error) {
	return m[tenantID], nil
}

type failingFlags struct{}

func (failingFlags) ColumnarEnabled(context.Context, string) (bool, error) {
	return false, errors.New("badger store is closed")
}

func series(value float64) *models.TimeseriesResult {
	return &models.TimeseriesResult{
		PreviousPeriod: []*models.Bucket{bucket("full", map[string]float64{"0/metadata.trace_id/cardinality": value})},
		CurrentPeriod:  []*models.Bucket{bucket("full", map[string]float64{"0/metadata.trace_id/cardinality": value})},
	}
}

func stores(searchValue, columnarValue float64) (*fakeStore, *fakeStore) {
	return &fakeStore{name: storage.BackendSearch, timeseries: series(searchValue)},
		&fakeStore{name: storage.BackendColumnar, timeseries: series(columnarValue)}
}

func query(tenant string) models.TimeseriesQuery {
	return models.TimeseriesQuery{Scope: models.Scope{TenantID: tenant}}
}

func TestFacadeRoutesByTenantFlag(t *testing.T) {
	search, columnar := stores(10, 20)
	f := NewFacade(search, columnar, flagMap{"columnar-tenant": true})

	r, err := f.Timeseries(context.Background(), query("search-tenant"))
	require.NoError(t, err)
	require.Same(t, search.timeseries, r)

	r, err = f.Timeseries(context.Background(), query("columnar-tenant"))
	require.NoError(t, err)
	require.Same(t, columnar.timeseries, r)

	require.EqualValues(t, 1, search.calls.Load())
	require.EqualValues(t, 1, columnar.calls.Load())
}

func TestFacadeFlagFailureMeansDisabled(t *testing.T) {
	tests := []struct {
		name     string
		flags    FlagSource
		columnar bool
	}{
		{"lookup error", failingFlags{}, true},
		{"no flag source", nil, true},
		{"no columnar backend", flagMap{"t": true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search, columnar := stores(10, 20)
			var col storage.AnalyticsStore
			if tt.columnar {
				col = columnar
			}
			f := NewFacade(search, col, tt.flags)
			r, err := f.Timeseries(context.Background(), query("t"))
			require.NoError(t, err)
			require.Same(t, search.timeseries, r)
			require.Zero(t, columnar.calls.Load())
		})
	}
}

func TestFacadeOnlyColumnarConfigured(t *testing.T) {
	_, columnar := stores(0, 20)
	f := NewFacade(nil, columnar, flagMap{})
	r, err := f.Timeseries(context.Background(), query("t"))
	require.NoError(t, err)
	require.Same(t, columnar.timeseries, r)
	require.Len(t, f.Backends(), 1)
}

func TestFacadeNoBackend(t *testing.T) {
	f := NewFacade(nil, nil, nil)
	_, err := f.FeedbackEvents(context.Background(), models.FeedbackQuery{})
	require.ErrorIs(t, err, ErrNoBackend)
	require.Equal(t, apperrors.ErrCodeUnavailable, apperrors.CodeOf(err))
	require.Empty(t, f.Backends())
}

func TestFacadeComparisonAgreement(t *testing.T) {
	search, columnar := stores(100, 97)
	var drift int
	f := NewFacade(search, columnar, flagMap{},
		WithComparison(true),
		WithMetrics(telemetry.NewMetrics()),
		WithDriftHandler(func(Kind, []string) { drift++ }),
	)

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	r, err := f.Timeseries(ctx, query("t"))
	require.NoError(t, err)
	require.Same(t, search.timeseries, r)
	require.Len(t, r.CurrentPeriod, 1)
	require.Zero(t, drift)
	require.NotContains(t, buf.String(), "backend discrepancy")
	require.EqualValues(t, 1, search.calls.Load())
	require.EqualValues(t, 1, columnar.calls.Load())
}

func TestFacadeComparisonDrift(t *testing.T) {
	search, columnar := stores(100, 50)
	var got []string
	var kind Kind
	f := NewFacade(search, columnar, flagMap{"t": true},
		WithComparison(true),
		WithDriftHandler(func(op Kind, d []string) { kind, got = op, d }),
	)

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	r, err := f.Timeseries(ctx, query("t"))
	require.NoError(t, err)
	require.Same(t, columnar.timeseries, r)

	require.Equal(t, KindTimeseries, kind)
	require.Len(t, got, 2)
	require.Contains(t, got[0], "clickhouse=50 elasticsearch=100")
	require.Contains(t, buf.String(), "backend discrepancy")
}

func TestFacadeComparisonDriftLogIsCapped(t *testing.T) {
	wide := func(value float64) *models.TimeseriesResult {
		values := map[string]float64{}
		for i := 0; i < 8; i++ {
			values[fmt.Sprintf("%d/metadata.trace_id/cardinality", i)] = value
		}
		return &models.TimeseriesResult{
			PreviousPeriod: []*models.Bucket{bucket("full", values)},
			CurrentPeriod:  []*models.Bucket{bucket("full", values)},
		}
	}
	search := &fakeStore{name: storage.BackendSearch, timeseries: wide(100)}
	columnar := &fakeStore{name: storage.BackendColumnar, timeseries: wide(50)}

	var got []string
	f := NewFacade(search, columnar, flagMap{},
		WithComparison(true),
		WithDriftHandler(func(_ Kind, d []string) { got = d }),
	)
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	r, err := f.Timeseries(ctx, query("t"))
	require.NoError(t, err)
	require.Same(t, search.timeseries, r)

	require.Len(t, got, 16)
	require.Equal(t, 10, strings.Count(buf.String(), `"message":"backend discrepancy"`))
	require.Equal(t, 1, strings.Count(buf.String(), `"message":"more backend discrepancies"`))
	require.Contains(t, buf.String(), `"omitted":6`)
}

func TestFacadeComparisonFallback(t *testing.T) {
	search, columnar := stores(100, 100)
	columnar.err = errors.New("connection refused")

	var drift bool
	f := NewFacade(search, columnar, flagMap{"t": true},
		WithComparison(true),
		WithDriftHandler(func(Kind, []string) { drift = true }),
	)
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	r, err := f.Timeseries(ctx, query("t"))
	require.NoError(t, err)
	require.Same(t, search.timeseries, r)
	require.False(t, drift)
	require.Contains(t, buf.String(), "serving result of fallback backend")

	columnar.err = nil
	search.err = errors.New("timeout")
	r, err = f.Timeseries(ctx, query("t"))
	require.NoError(t, err)
	require.Same(t, columnar.timeseries, r)
}

func TestFacadeComparisonBothFail(t *testing.T) {
	search, columnar := stores(0, 0)
	search.err = errors.New("search down")
	columnar.err = errors.New("columnar down")

	f := NewFacade(search, columnar, flagMap{}, WithComparison(true))
	_, err := f.FilterOptions(context.Background(), models.FilterOptionsQuery{})
	require.Equal(t, apperrors.ErrCodeUnavailable, apperrors.CodeOf(err))
	require.ErrorIs(t, err, search.err)
	require.ErrorIs(t, err, columnar.err)
}

func TestFacadeSingleBackendErrorPassesThrough(t *testing.T) {
	search, columnar := stores(0, 0)
	search.err = apperrors.NewBackendError(storage.BackendSearch, errors.New("shard failure"))

	f := NewFacade(search, columnar, flagMap{})
	_, err := f.TopDocuments(context.Background(), models.DocumentsQuery{})
	require.Equal(t, apperrors.ErrCodeBackend, apperrors.CodeOf(err))
	require.Zero(t, columnar.calls.Load())
}
