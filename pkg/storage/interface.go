package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yourusername/traceboard/pkg/models"
)

// Backend names.
const (
	BackendSearch   = "elasticsearch"
	BackendColumnar = "clickhouse"
)

// AnalyticsStore defines the analytics operations every backend answers
type AnalyticsStore interface {
	// Name identifies the backend in logs and comparisons
	Name() string

	// Query operations
	Timeseries(ctx context.Context, q models.TimeseriesQuery) (*models.TimeseriesResult, error)
	FilterOptions(ctx context.Context, q models.FilterOptionsQuery) (*models.FilterOptionsResult, error)
	TopDocuments(ctx context.Context, q models.DocumentsQuery) (*models.TopDocumentsResult, error)
	FeedbackEvents(ctx context.Context, q models.FeedbackQuery) (*models.FeedbackResult, error)

	// Lifecycle operations
	Health(ctx context.Context) error
	Close() error
}

// LabelResolver maps stored ids of a labelled dimension (e.g. topic ids)
// to display names for one tenant.
type LabelResolver interface {
	Labels(ctx context.Context, tenantID, kind string) (map[string]string, error)
}

// Limits bound the size of lookup results
type Limits struct {
	MaxBuckets   int
	Options      int
	TopDocuments int
	Feedback     int
}

// DefaultLimits returns the limits used when none are configured
func DefaultLimits() Limits {
	return Limits{
		MaxBuckets:   1000,
		Options:      100,
		TopDocuments: 10,
		Feedback:     100,
	}
}

// ResolveLabels fetches the labels of kind for a tenant. A failed lookup is
// logged and yields no labels, so raw ids are shown instead. A label shared
// by several ids is suffixed with the id, e.g. "Billing (t2)", so their
// groups and options stay apart.
func ResolveLabels(ctx context.Context, r LabelResolver, tenantID, kind string) map[string]string {
	if r == nil || kind == "" {
		return nil
	}
	labels, err := r.Labels(ctx, tenantID, kind)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("tenant_id", tenantID).Str("kind", kind).Msg("label lookup failed")
		return nil
	}
	return uniqueLabels(labels)
}

func uniqueLabels(labels map[string]string) map[string]string {
	seen := make(map[string]int, len(labels))
	for _, l := range labels {
		seen[l]++
	}
	out := make(map[string]string, len(labels))
	for id, l := range labels {
		if seen[l] > 1 {
			l = fmt.Sprintf("%s (%s)", l, id)
		}
		out[id] = l
	}
	return out
}
