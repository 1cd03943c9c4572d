package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/yourusername/traceboard/pkg/auth"
	"github.com/yourusername/traceboard/pkg/config"
	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/storage"
)

// Analytics is the query surface the handler serves
type Analytics interface {
	Timeseries(ctx context.Context, q models.TimeseriesQuery) (*models.TimeseriesResult, error)
	FilterOptions(ctx context.Context, q models.FilterOptionsQuery) (*models.FilterOptionsResult, error)
	TopDocuments(ctx context.Context, q models.DocumentsQuery) (*models.TopDocumentsResult, error)
	FeedbackEvents(ctx context.Context, q models.FeedbackQuery) (*models.FeedbackResult, error)
	Backends() []storage.AnalyticsStore
}

// Handler handles HTTP API requests
type Handler struct {
	analytics Analytics
	registry  *registry.Registry
	validate  *validator.Validate
	config    *config.Config
	version   string
}

// NewHandler creates a new API handler
func NewHandler(analytics Analytics, reg *registry.Registry, cfg *config.Config, version string) *Handler {
	return &Handler{
		analytics: analytics,
		registry:  reg,
		validate:  validator.New(),
		config:    cfg,
		version:   version,
	}
}

type scopeRequest struct {
	StartDate time.Time      `json:"startDate" validate:"required"`
	EndDate   time.Time      `json:"endDate" validate:"required,gtfield=StartDate"`
	Filters   models.Filters `json:"filters"`
}

type timeseriesRequest struct {
	scopeRequest
	Series    []models.SeriesSpec `json:"series" validate:"required,min=1,dive"`
	GroupBy   string              `json:"groupBy"`
	TimeScale *models.TimeScale   `json:"timeScale"`
}

type filterOptionsRequest struct {
	scopeRequest
	Field  models.FilterField `json:"field" validate:"required"`
	Key    string             `json:"key"`
	Subkey string             `json:"subkey"`
	Query  string             `json:"query" validate:"max=200"`
}

type backendHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health reports the reachability of every configured backend. It answers
// 503 only when no backend is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	backends := h.analytics.Backends()
	reports := make([]backendHealth, 0, len(backends))
	healthy := 0
	for _, b := range backends {
		report := backendHealth{Name: b.Name(), Status: "ok"}
		if err := b.Health(r.Context()); err != nil {
			report.Status = "down"
			report.Error = err.Error()
		} else {
			healthy++
		}
		reports = append(reports, report)
	}

	status, code := "ok", http.StatusOK
	switch {
	case healthy == 0:
		status, code = "down", http.StatusServiceUnavailable
	case healthy < len(backends):
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{
		"status":   status,
		"version":  h.version,
		"backends": reports,
	})
}

// Timeseries handles timeseries queries
func (h *Handler) Timeseries(w http.ResponseWriter, r *http.Request) {
	var req timeseriesRequest
	scope, ok := h.decode(w, r, &req, &req.scopeRequest)
	if !ok {
		return
	}
	if limit := h.config.Analytics.MaxSeries; limit > 0 && len(req.Series) > limit {
		h.writeError(w, r, apperrors.NewBadRequestError(fmt.Sprintf("at most %d series allowed", limit)))
		return
	}
	q := models.TimeseriesQuery{
		Scope:     scope,
		Series:    req.Series,
		GroupBy:   req.GroupBy,
		TimeScale: req.TimeScale,
	}
	if err := h.registry.ValidateQuery(q); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()
	result, err := h.analytics.Timeseries(ctx, q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// FilterOptions handles filter option lookups
func (h *Handler) FilterOptions(w http.ResponseWriter, r *http.Request) {
	var req filterOptionsRequest
	scope, ok := h.decode(w, r, &req, &req.scopeRequest)
	if !ok {
		return
	}
	q := models.FilterOptionsQuery{
		Scope:  scope,
		Field:  req.Field,
		Key:    req.Key,
		Subkey: req.Subkey,
		Query:  req.Query,
	}
	if err := q.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.registry.Filter(q.Field); err != nil {
		h.writeError(w, r, apperrors.NewBadRequestError(err.Error()))
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()
	result, err := h.analytics.FilterOptions(ctx, q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TopDocuments handles top document lookups
func (h *Handler) TopDocuments(w http.ResponseWriter, r *http.Request) {
	var req scopeRequest
	scope, ok := h.decode(w, r, &req, &req)
	if !ok {
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()
	result, err := h.analytics.TopDocuments(ctx, models.DocumentsQuery{Scope: scope})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Feedbacks handles feedback event lookups
func (h *Handler) Feedbacks(w http.ResponseWriter, r *http.Request) {
	var req scopeRequest
	scope, ok := h.decode(w, r, &req, &req)
	if !ok {
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()
	result, err := h.analytics.FeedbackEvents(ctx, models.FeedbackQuery{Scope: scope})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decode reads a POST body into dst, validates it and builds the scope from
// the embedded scope request and the tenant on the context
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, sr *scopeRequest) (models.Scope, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, r, &apperrors.AppError{Code: errMethodNotAllowed, Message: "method not allowed"})
		return models.Scope{}, false
	}
	tenantID, err := auth.ExtractTenantID(r.Context())
	if err != nil {
		h.writeError(w, r, apperrors.NewUnauthorizedError("no tenant"))
		return models.Scope{}, false
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, r, apperrors.NewBadRequestError("invalid request body: "+err.Error()))
		return models.Scope{}, false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, apperrors.NewBadRequestError(validationMessage(err)))
		return models.Scope{}, false
	}
	if err := h.registry.ValidateFilters(sr.Filters); err != nil {
		h.writeError(w, r, err)
		return models.Scope{}, false
	}

	return models.Scope{
		TenantID:  tenantID,
		StartDate: sr.StartDate.UTC(),
		EndDate:   sr.EndDate.UTC(),
		Filters:   sr.Filters,
	}, true
}

func (h *Handler) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	if timeout := h.config.Analytics.QueryTimeout; timeout > 0 {
		return context.WithTimeout(r.Context(), timeout)
	}
	return context.WithCancel(r.Context())
}

// errMethodNotAllowed is local to the transport
const errMethodNotAllowed apperrors.ErrCode = "METHOD_NOT_ALLOWED"

func statusOf(code apperrors.ErrCode) int {
	switch code {
	case apperrors.ErrCodeBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeBackend:
		return http.StatusBadGateway
	case errMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		code = apperrors.ErrCodeUnavailable
	}
	status := statusOf(code)

	message := "internal error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	event := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")

	writeJSON(w, status, map[string]string{
		"code":    string(code),
		"message": message,
	})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed %q validation", fe.Namespace(), fe.Tag())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
