package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/bulkmail/internal/analytics"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/repository/memory"
	"github.com/ignite/bulkmail/internal/service/suppression"
)

type stubAdapter struct {
	name       string
	configured bool
	batch      int
}

func (s *stubAdapter) Name() string                                            { return s.name }
func (s *stubAdapter) Ordering() esp.Ordering                                  { return esp.OldestFirst }
func (s *stubAdapter) IsConfigured(context.Context) bool                       { return s.configured }
func (s *stubAdapter) BatchSize() int                                          { return s.batch }
func (s *stubAdapter) NormalizeEvent(esp.RawEvent) (*domain.EmailEvent, error) { return nil, nil }

func (s *stubAdapter) Send(context.Context, *esp.Batch) (*domain.SendResult, error) {
	return nil, errors.New("not used")
}

func (s *stubAdapter) FetchEvents(context.Context, esp.PageQuery, esp.BatchHandler) error {
	return nil
}

func (s *stubAdapter) AnalyticsProvider() *esp.AnalyticsFetcher {
	return esp.NewAnalyticsFetcher(s, 300, "bounced OR complained")
}

type stubPoller struct {
	results []analytics.CycleResult
	calls   int
}

func (p *stubPoller) RunOnce(context.Context) []analytics.CycleResult {
	p.calls++
	return p.results
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T, poller Poller) (http.Handler, *suppression.Service) {
	t.Helper()
	svc := suppression.NewService(memory.NewSuppressionRepo())
	adapters := []esp.Adapter{
		&stubAdapter{name: "mailgun", configured: true, batch: 1000},
		&stubAdapter{name: "postmark", batch: 500},
	}
	h := NewHandlers(adapters, svc, poller)
	return SetupRoutes(h, NewHealthChecker(nil, nil), nil), svc
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func seed(t *testing.T, svc *suppression.Service, kind domain.EventKind, addr string, ts time.Time) {
	t.Helper()
	_, err := svc.Apply(context.Background(), &domain.EmailEvent{Kind: kind, Recipient: addr, Timestamp: ts})
	require.NoError(t, err)
}

func TestListProviders(t *testing.T) {
	router, _ := setupRouter(t, nil)

	rec := do(t, router, http.MethodGet, "/api/providers")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []ProviderStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, ProviderStatus{Name: "mailgun", Configured: true, BatchSize: 1000, PageLimit: 300, Filter: "bounced OR complained"}, got[0])
	assert.False(t, got[1].Configured)
}

func TestGetSuppression(t *testing.T) {
	router, svc := setupRouter(t, nil)
	seed(t, svc, domain.EventBounced, "a@example.com", t0)
	seed(t, svc, domain.EventComplained, "a@example.com", t0.Add(time.Hour))

	rec := do(t, router, http.MethodGet, "/api/suppressions/A@Example.com")
	require.Equal(t, http.StatusOK, rec.Code)

	var got addressView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "a@example.com", got.Address)
	assert.True(t, got.Suppressed)
	require.Len(t, got.Records, 2)
	assert.Equal(t, domain.ReasonBounce, got.Records[0].Reason)

	rec = do(t, router, http.MethodGet, "/api/suppressions/clean@example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"clean@example.com","suppressed":false,"records":[]}`, rec.Body.String())
}

func TestRemoveSuppression(t *testing.T) {
	router, svc := setupRouter(t, nil)
	seed(t, svc, domain.EventBounced, "a@example.com", t0)
	seed(t, svc, domain.EventUnsubscribed, "a@example.com", t0)

	rec := do(t, router, http.MethodDelete, "/api/suppressions/a@example.com/bounce")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	recs, err := svc.Records(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ReasonUnsubscribe, recs[0].Reason)

	rec = do(t, router, http.MethodDelete, "/api/suppressions/a@example.com/bounce")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/suppressions/a@example.com/spam")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSuppressions(t *testing.T) {
	router, svc := setupRouter(t, nil)
	seed(t, svc, domain.EventBounced, "old@example.com", t0)
	seed(t, svc, domain.EventBounced, "new@example.com", t0.Add(time.Hour))
	seed(t, svc, domain.EventComplained, "spam@other.org", t0.Add(2*time.Hour))

	rec := do(t, router, http.MethodGet, "/api/suppressions?reason=bounce&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items  []domain.SuppressionRecord `json:"items"`
		Total  int                        `json:"total"`
		Limit  int                        `json:"limit"`
		Offset int                        `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Limit)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "new@example.com", page.Items[0].Address)

	rec = do(t, router, http.MethodGet, "/api/suppressions?search=OTHER")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/suppressions?reason=spam").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/suppressions?offset=-2").Code)
}

func TestSuppressionStats(t *testing.T) {
	router, svc := setupRouter(t, nil)
	seed(t, svc, domain.EventBounced, "a@example.com", t0)
	seed(t, svc, domain.EventComplained, "a@example.com", t0)
	seed(t, svc, domain.EventComplained, "b@example.com", t0)

	rec := do(t, router, http.MethodGet, "/api/suppressions/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":3,"by_reason":{"bounce":1,"complaint":2,"unsubscribe":0}}`, rec.Body.String())
}

func TestRunAnalytics(t *testing.T) {
	router, _ := setupRouter(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, router, http.MethodPost, "/api/analytics/run").Code)

	poller := &stubPoller{results: []analytics.CycleResult{
		{Provider: "mailgun", Events: 4, Applied: 1, Cursor: t0},
		{Provider: "postmark", Err: errors.New("postmark analytics temporarily unavailable")},
	}}
	router, _ = setupRouter(t, poller)

	rec := do(t, router, http.MethodPost, "/api/analytics/run")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, poller.calls)

	var got []cycleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Applied)
	assert.Empty(t, got[0].Error)
	assert.Equal(t, "postmark analytics temporarily unavailable", got[1].Error)
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t, nil)

	rec := do(t, router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var got HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, "disabled", got.Checks["database"].Status)
	assert.Equal(t, "disabled", got.Checks["redis"].Status)
}

func TestHealthReadiness(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	hc := NewHealthChecker(db, client)
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var got struct {
		Ready  bool                      `json:"ready"`
		Checks map[string]ComponentCheck `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Ready)
	assert.Equal(t, "down", got.Checks["database"].Status)
	assert.Equal(t, "up", got.Checks["redis"].Status)
}
