package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/traceboard/pkg/chsql"
	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/storage"
)

type optionRow struct {
	Value string `ch:"value"`
	Count uint64 `ch:"count"`
}

type documentRow struct {
	DocumentID string `ch:"document_id"`
	Count      uint64 `ch:"count"`
	TraceID    string `ch:"trace_id"`
	Content    string `ch:"content"`
}

type totalRow struct {
	Total uint64 `ch:"total"`
}

type eventRow struct {
	EventID    string             `ch:"event_id"`
	EventType  string             `ch:"event_type"`
	TraceID    string             `ch:"trace_id"`
	OccurredAt time.Time          `ch:"occurred_at"`
	Metrics    map[string]float64 `ch:"metrics"`
	Details    map[string]string  `ch:"details"`
}

// FilterOptions lists the most used values of a filter field, counted in
// distinct traces. Filters on the looked-up field itself are ignored.
func (s *Store) FilterOptions(ctx context.Context, q models.FilterOptionsQuery) (*models.FilterOptionsResult, error) {
	f, err := s.registry.Filter(q.Field)
	if err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}
	b := chsql.NewBinder()
	const table = "t"
	value := f.OptionsSQL(table, registry.OptionParams{Key: q.Key, Subkey: q.Subkey, Size: s.limits.Options, Binder: b})
	having := []string{"value != ''"}
	if q.Query != "" {
		having = append(having, fmt.Sprintf("position(value, %s) > 0", b.Named("match", "String", q.Query)))
	}
	query := fmt.Sprintf(`SELECT %s AS value, uniqExact(%s.%s) AS count
FROM %s AS %s
WHERE %s
GROUP BY value
HAVING %s
ORDER BY count DESC, value
LIMIT %s`,
		value, table, registry.ColumnTraceID,
		f.OptionsSource.Table(), table,
		strings.Join(s.scopeConditions(b, q.Scope, q.Field, f.OptionsSource, table), " AND "),
		strings.Join(having, " AND "),
		b.Named("limit", "UInt32", s.limits.Options))

	var rows []optionRow
	if err := s.selectRows(ctx, &rows, query, b.Params()); err != nil {
		return nil, err
	}
	labels := storage.ResolveLabels(ctx, s.labels, q.TenantID, f.LabelResolver)
	result := &models.FilterOptionsResult{Options: make([]models.FilterOption, 0, len(rows))}
	for _, r := range rows {
		label := r.Value
		if l, ok := labels[r.Value]; ok {
			label = l
		}
		result.Options = append(result.Options, models.FilterOption{Field: r.Value, Label: label, Count: int64(r.Count)})
	}
	models.SortOptions(result.Options)
	return result, nil
}

// TopDocuments lists the retrieval documents used by the most traces.
func (s *Store) TopDocuments(ctx context.Context, q models.DocumentsQuery) (*models.TopDocumentsResult, error) {
	b := chsql.NewBinder()
	const table = "c"
	where := append(s.scopeConditions(b, q.Scope, "", registry.SourceContexts, table),
		fmt.Sprintf("%s.DocumentId != ''", table))
	from := fmt.Sprintf("%s AS %s\nWHERE %s", registry.SourceContexts.Table(), table, strings.Join(where, " AND "))

	top := fmt.Sprintf(`SELECT %[1]s.DocumentId AS document_id, uniqExact(%[1]s.TraceId) AS count,
  any(%[1]s.TraceId) AS trace_id, any(%[1]s.Content) AS content
FROM %[2]s
GROUP BY document_id
ORDER BY count DESC, document_id
LIMIT %[3]s`, table, from, b.Named("limit", "UInt32", s.limits.TopDocuments))
	var docs []documentRow
	if err := s.selectRows(ctx, &docs, top, b.Params()); err != nil {
		return nil, err
	}

	total := fmt.Sprintf("SELECT uniqExact(%s.DocumentId) AS total\nFROM %s", table, from)
	var totals []totalRow
	if err := s.selectRows(ctx, &totals, total, b.Params()); err != nil {
		return nil, err
	}

	result := &models.TopDocumentsResult{TopDocuments: make([]models.DocumentUsage, 0, len(docs))}
	if len(totals) > 0 {
		result.TotalUniqueDocuments = int64(totals[0].Total)
	}
	for _, d := range docs {
		doc := models.DocumentUsage{DocumentID: d.DocumentID, Count: int64(d.Count), TraceID: d.TraceID}
		if d.Content != "" {
			content := d.Content
			doc.Content = &content
		}
		result.TopDocuments = append(result.TopDocuments, doc)
	}
	models.SortDocuments(result.TopDocuments)
	return result, nil
}

// FeedbackEvents lists the latest thumbs up/down events carrying a
// feedback comment.
func (s *Store) FeedbackEvents(ctx context.Context, q models.FeedbackQuery) (*models.FeedbackResult, error) {
	b := chsql.NewBinder()
	const table = "e"
	where := append(s.scopeConditions(b, q.Scope, "", registry.SourceEvents, table),
		fmt.Sprintf("%s.EventType = %s", table, b.Named("eventType", "String", registry.EventThumbsUpDown)),
		fmt.Sprintf("mapContains(%s.Details, %s)", table, b.Named("detailKey", "String", registry.EventDetailFeedback)))
	query := fmt.Sprintf(`SELECT %[1]s.EventId AS event_id, %[1]s.EventType AS event_type, %[1]s.TraceId AS trace_id,
  %[1]s.OccurredAt AS occurred_at, %[1]s.Metrics AS metrics, %[1]s.Details AS details
FROM %[2]s AS %[1]s
WHERE %[3]s
ORDER BY occurred_at DESC, event_id
LIMIT %[4]s`, table, registry.SourceEvents.Table(), strings.Join(where, " AND "),
		b.Named("limit", "UInt32", s.limits.Feedback))

	var rows []eventRow
	if err := s.selectRows(ctx, &rows, query, b.Params()); err != nil {
		return nil, err
	}
	result := &models.FeedbackResult{Events: make([]models.EventRecord, 0, len(rows))}
	for _, r := range rows {
		ev := models.EventRecord{
			EventID:   r.EventID,
			EventType: r.EventType,
			TenantID:  q.TenantID,
			TraceID:   r.TraceID,
			Timestamp: r.OccurredAt.UTC(),
			Metrics:   r.Metrics,
			Details:   r.Details,
		}
		if ev.Metrics == nil {
			ev.Metrics = map[string]float64{}
		}
		if ev.Details == nil {
			ev.Details = map[string]string{}
		}
		result.Events = append(result.Events, ev)
	}
	models.SortEvents(result.Events)
	return result, nil
}

// scopeConditions restricts table, reading src, to the tenant, the current
// window and the filters other than except.
func (s *Store) scopeConditions(b *chsql.Binder, scope models.Scope, except models.FilterField, src registry.Source, table string) []string {
	tenant := b.Named("tenantId", "String", scope.TenantID)
	conds := []string{
		fmt.Sprintf("%s.%s = %s", table, registry.ColumnTenant, tenant),
		fmt.Sprintf("%s.%s >= %s", table, registry.ColumnOccurredAt, b.Time("currentStart", scope.StartDate)),
		fmt.Sprintf("%s.%s < %s", table, registry.ColumnOccurredAt, b.Time("currentEnd", scope.EndDate)),
	}
	if f := filterClause(s.registry, scope.Filters, except, src, table, tenant, b); f != "" {
		conds = append(conds, f)
	}
	return conds
}
