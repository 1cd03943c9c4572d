// Package analytics routes analytics operations to the backend enabled for
// a tenant, and in comparison mode runs both backends and reports drift.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/storage"
	"github.com/yourusername/traceboard/pkg/telemetry"
)

// maxLoggedDiscrepancies caps the discrepancies logged per comparison.
const maxLoggedDiscrepancies = 10

// ErrNoBackend is returned when no backend can serve a tenant.
var ErrNoBackend = errors.New("no analytics backend available")

// FlagSource tells whether the columnar backend is enabled for a tenant.
type FlagSource interface {
	ColumnarEnabled(ctx context.Context, tenantID string) (bool, error)
}

// Facade is the entry point of the analytics operations.
type Facade struct {
	search   storage.AnalyticsStore
	columnar storage.AnalyticsStore
	flags    FlagSource
	compare  bool
	metrics  *telemetry.Metrics
	onDrift  func(op Kind, discrepancies []string)
}

// Option configures a Facade.
type Option func(*Facade)

// WithComparison runs both backends on every operation.
func WithComparison(enabled bool) Option {
	return func(f *Facade) { f.compare = enabled }
}

// WithMetrics records backend calls and discrepancies.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(f *Facade) { f.metrics = m }
}

// WithDriftHandler receives every non-empty discrepancy list.
func WithDriftHandler(fn func(op Kind, discrepancies []string)) Option {
	return func(f *Facade) { f.onDrift = fn }
}

// NewFacade creates a facade. Either backend may be nil when it is not
// configured; a nil columnar backend counts as disabled for every tenant.
func NewFacade(search, columnar storage.AnalyticsStore, flags FlagSource, opts ...Option) *Facade {
	f := &Facade{search: search, columnar: columnar, flags: flags}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Timeseries runs a timeseries query.
func (f *Facade) Timeseries(ctx context.Context, q models.TimeseriesQuery) (*models.TimeseriesResult, error) {
	r, err := f.run(ctx, q.TenantID, KindTimeseries, func(ctx context.Context, s storage.AnalyticsStore) (Result, error) {
		out, err := s.Timeseries(ctx, q)
		return timeseriesResult(out), err
	})
	return r.Timeseries, err
}

// FilterOptions runs a filter option lookup.
func (f *Facade) FilterOptions(ctx context.Context, q models.FilterOptionsQuery) (*models.FilterOptionsResult, error) {
	r, err := f.run(ctx, q.TenantID, KindFilterOptions, func(ctx context.Context, s storage.AnalyticsStore) (Result, error) {
		out, err := s.FilterOptions(ctx, q)
		return filterOptionsResult(out), err
	})
	return r.FilterOptions, err
}

// TopDocuments runs a top documents lookup.
func (f *Facade) TopDocuments(ctx context.Context, q models.DocumentsQuery) (*models.TopDocumentsResult, error) {
	r, err := f.run(ctx, q.TenantID, KindTopDocuments, func(ctx context.Context, s storage.AnalyticsStore) (Result, error) {
		out, err := s.TopDocuments(ctx, q)
		return topDocumentsResult(out), err
	})
	return r.TopDocuments, err
}

// FeedbackEvents runs a feedback event lookup.
func (f *Facade) FeedbackEvents(ctx context.Context, q models.FeedbackQuery) (*models.FeedbackResult, error) {
	r, err := f.run(ctx, q.TenantID, KindFeedback, func(ctx context.Context, s storage.AnalyticsStore) (Result, error) {
		out, err := s.FeedbackEvents(ctx, q)
		return feedbackResult(out), err
	})
	return r.Feedback, err
}

// Backends returns the configured backends, search first.
func (f *Facade) Backends() []storage.AnalyticsStore {
	var out []storage.AnalyticsStore
	for _, s := range []storage.AnalyticsStore{f.search, f.columnar} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type call func(ctx context.Context, s storage.AnalyticsStore) (Result, error)

// columnarEnabled resolves the tenant flag. A failed lookup counts as
// disabled.
func (f *Facade) columnarEnabled(ctx context.Context, tenantID string) bool {
	if f.columnar == nil || f.flags == nil {
		return false
	}
	enabled, err := f.flags.ColumnarEnabled(ctx, tenantID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("tenant_id", tenantID).Msg("backend flag lookup failed, using search backend")
		return false
	}
	return enabled
}

func (f *Facade) run(ctx context.Context, tenantID string, op Kind, fn call) (Result, error) {
	primary, secondary := f.search, f.columnar
	if f.columnarEnabled(ctx, tenantID) {
		primary, secondary = f.columnar, f.search
	}
	if primary == nil {
		primary, secondary = secondary, nil
	}
	if primary == nil {
		return Result{Kind: op}, apperrors.NewUnavailableError("no backend configured", ErrNoBackend)
	}
	if !f.compare || secondary == nil {
		return f.invoke(ctx, op, primary, fn)
	}
	return f.compareRun(ctx, tenantID, op, primary, secondary, fn)
}

func (f *Facade) invoke(ctx context.Context, op Kind, s storage.AnalyticsStore, fn call) (Result, error) {
	started := time.Now()
	r, err := fn(ctx, s)
	f.metrics.ObserveBackend(s.Name(), op.String(), started, err)
	return r, err
}

// compareRun queries both backends concurrently. Each outcome is captured
// on its own: one backend failing never cancels or fails the other.
func (f *Facade) compareRun(ctx context.Context, tenantID string, op Kind, primary, secondary storage.AnalyticsStore, fn call) (Result, error) {
	logger := zerolog.Ctx(ctx).With().Str("tenant_id", tenantID).Str("operation", op.String()).Logger()

	var (
		g                    errgroup.Group
		primaryRes, otherRes Result
		primaryErr, otherErr error
	)
	g.Go(func() error {
		primaryRes, primaryErr = f.invoke(ctx, op, primary, fn)
		return nil
	})
	g.Go(func() error {
		otherRes, otherErr = f.invoke(ctx, op, secondary, fn)
		return nil
	})
	_ = g.Wait()

	if primaryErr != nil {
		logger.Error().Err(primaryErr).Str("backend", primary.Name()).Msg("backend query failed")
	}
	if otherErr != nil {
		logger.Error().Err(otherErr).Str("backend", secondary.Name()).Msg("backend query failed")
	}

	switch {
	case primaryErr == nil && otherErr == nil:
		discrepancies := Compare(primary.Name(), primaryRes, secondary.Name(), otherRes)
		f.report(logger, op, discrepancies)
		return primaryRes, nil
	case primaryErr == nil:
		return primaryRes, nil
	case otherErr == nil:
		logger.Warn().Str("backend", secondary.Name()).Msg("serving result of fallback backend")
		return otherRes, nil
	default:
		return Result{Kind: op}, apperrors.NewUnavailableError("all backends failed", errors.Join(primaryErr, otherErr))
	}
}

func (f *Facade) report(logger zerolog.Logger, op Kind, discrepancies []string) {
	if len(discrepancies) == 0 {
		logger.Debug().Msg("backends agree")
		return
	}
	f.metrics.AddDiscrepancies(op.String(), len(discrepancies))
	for i, d := range discrepancies {
		if i == maxLoggedDiscrepancies {
			logger.Warn().Int("omitted", len(discrepancies)-i).Msg("more backend discrepancies")
			break
		}
		logger.Warn().Str("discrepancy", d).Msg("backend discrepancy")
	}
	if f.onDrift != nil {
		f.onDrift(op, discrepancies)
	}
}
