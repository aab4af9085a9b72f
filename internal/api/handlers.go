package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/bulkmail/internal/analytics"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/httputil"
	"github.com/ignite/bulkmail/internal/service/suppression"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Poller runs one analytics cycle on demand.
type Poller interface {
	RunOnce(ctx context.Context) []analytics.CycleResult
}

// Handlers serves the provider status and suppression admin endpoints.
type Handlers struct {
	adapters     []esp.Adapter
	suppressions *suppression.Service
	poller       Poller
}

// NewHandlers creates the handlers. poller may be nil, which disables the
// manual analytics trigger.
func NewHandlers(adapters []esp.Adapter, suppressions *suppression.Service, poller Poller) *Handlers {
	return &Handlers{adapters: adapters, suppressions: suppressions, poller: poller}
}

// ProviderStatus describes one enabled adapter.
type ProviderStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	BatchSize  int    `json:"batch_size"`
	PageLimit  int    `json:"page_limit"`
	Filter     string `json:"event_filter"`
}

// ListProviders handles GET /api/providers
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	out := make([]ProviderStatus, 0, len(h.adapters))
	for _, a := range h.adapters {
		f := a.AnalyticsProvider()
		out = append(out, ProviderStatus{
			Name:       a.Name(),
			Configured: a.IsConfigured(r.Context()),
			BatchSize:  a.BatchSize(),
			PageLimit:  f.PageLimit(),
			Filter:     f.Filter(),
		})
	}
	httputil.OK(w, out)
}

// ListSuppressions handles GET /api/suppressions?reason=&search=&limit=&offset=
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.QueryInt(w, r, "limit", defaultListLimit)
	if !ok {
		return
	}
	offset, ok := httputil.QueryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	filter := suppression.ListFilter{
		Reason: domain.SuppressionReason(r.URL.Query().Get("reason")),
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	}
	recs, total, err := h.suppressions.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.SuppressionRecord{}
	}
	httputil.OK(w, httputil.Page[domain.SuppressionRecord]{
		Items:  recs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// SuppressionStats handles GET /api/suppressions/stats
func (h *Handlers) SuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.suppressions.GetStats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// addressView is the response of the per-address check.
type addressView struct {
	Address    string                     `json:"address"`
	Suppressed bool                       `json:"suppressed"`
	Records    []domain.SuppressionRecord `json:"records"`
}

// GetSuppression handles GET /api/suppressions/{address}
func (h *Handlers) GetSuppression(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	recs, err := h.suppressions.Records(r.Context(), addr)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.SuppressionRecord{}
	}
	httputil.OK(w, addressView{
		Address:    domain.NormalizeAddress(addr),
		Suppressed: len(recs) > 0,
		Records:    recs,
	})
}

// RemoveSuppression handles DELETE /api/suppressions/{address}/{reason}
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	reason := domain.SuppressionReason(chi.URLParam(r, "reason"))
	if err := h.suppressions.Remove(r.Context(), addr, reason); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// cycleView is the JSON form of one analytics cycle.
type cycleView struct {
	Provider string    `json:"provider"`
	Begin    time.Time `json:"begin,omitempty"`
	End      time.Time `json:"end,omitempty"`
	Events   int       `json:"events"`
	Applied  int       `json:"applied"`
	Cursor   time.Time `json:"cursor,omitempty"`
	Skipped  string    `json:"skipped,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// RunAnalytics handles POST /api/analytics/run
func (h *Handlers) RunAnalytics(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "disabled", "analytics polling is disabled")
		return
	}
	results := h.poller.RunOnce(r.Context())
	out := make([]cycleView, len(results))
	for i, res := range results {
		out[i] = cycleView{
			Provider: res.Provider,
			Begin:    res.Begin,
			End:      res.End,
			Events:   res.Events,
			Applied:  res.Applied,
			Cursor:   res.Cursor,
			Skipped:  res.Skipped,
		}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	httputil.OK(w, out)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, suppression.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, suppression.ErrInvalidAddress), errors.Is(err, suppression.ErrInvalidReason):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
