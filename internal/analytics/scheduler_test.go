package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/distlock"
	"github.com/ignite/bulkmail/internal/repository/memory"
	"github.com/ignite/bulkmail/internal/service/suppression"
)

// fakeAdapter serves event pages for analytics tests. Only events inside
// the query's [Begin, End] window are returned. With events set, the window
// is paged by the query limit; otherwise the fixed pages are used.
type fakeAdapter struct {
	name       string
	configured bool
	pages      [][]esp.RawEvent
	events     []esp.RawEvent
	fetchErr   error

	mu      sync.Mutex
	queries []esp.PageQuery
}

func (f *fakeAdapter) Name() string                      { return f.name }
func (f *fakeAdapter) Ordering() esp.Ordering            { return esp.OldestFirst }
func (f *fakeAdapter) IsConfigured(context.Context) bool { return f.configured }
func (f *fakeAdapter) BatchSize() int                    { return 10 }

func (f *fakeAdapter) Send(context.Context, *esp.Batch) (*domain.SendResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeAdapter) AnalyticsProvider() *esp.AnalyticsFetcher {
	return esp.NewAnalyticsFetcher(f, 300, esp.JoinKinds(" OR ", domain.EventBounced, domain.EventDelivered))
}

func (f *fakeAdapter) FetchEvents(ctx context.Context, q esp.PageQuery, handler esp.BatchHandler) error {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.fetchErr != nil {
		return f.fetchErr
	}
	pages := f.windowPages(q)
	return esp.WalkPages(ctx, f.name, func(_ context.Context, token string) ([]esp.RawEvent, string, error) {
		i, _ := strconv.Atoi(token)
		if i >= len(pages) {
			return nil, "", nil
		}
		return pages[i], strconv.Itoa(i + 1), nil
	}, handler)
}

func (f *fakeAdapter) inWindow(q esp.PageQuery, raw esp.RawEvent) bool {
	ev, err := f.NormalizeEvent(raw)
	if err != nil || ev == nil {
		return true
	}
	ts := ev.Timestamp.Unix()
	return (q.Begin == 0 || ts >= q.Begin) && (q.End == 0 || ts <= q.End)
}

func (f *fakeAdapter) windowPages(q esp.PageQuery) [][]esp.RawEvent {
	var pages [][]esp.RawEvent
	if f.events == nil {
		for _, page := range f.pages {
			var kept []esp.RawEvent
			for _, raw := range page {
				if f.inWindow(q, raw) {
					kept = append(kept, raw)
				}
			}
			if len(kept) > 0 {
				pages = append(pages, kept)
			}
		}
		return pages
	}

	var page []esp.RawEvent
	for _, raw := range f.events {
		if !f.inWindow(q, raw) {
			continue
		}
		page = append(page, raw)
		if len(page) == q.Limit {
			pages = append(pages, page)
			page = nil
		}
	}
	if len(page) > 0 {
		pages = append(pages, page)
	}
	return pages
}

func (f *fakeAdapter) NormalizeEvent(raw esp.RawEvent) (*domain.EmailEvent, error) {
	var v struct {
		Event     string `json:"event"`
		Recipient string `json:"recipient"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch domain.EventKind(v.Event) {
	case domain.EventBounced, domain.EventDelivered:
	default:
		return nil, nil
	}
	return &domain.EmailEvent{
		Kind:      domain.EventKind(v.Event),
		Recipient: v.Recipient,
		Timestamp: time.Unix(v.Timestamp, 0).UTC(),
		Provider:  f.name,
	}, nil
}

func (f *fakeAdapter) lastQuery() esp.PageQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func (f *fakeAdapter) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func rawEvent(kind, recipient string, ts time.Time) esp.RawEvent {
	b, _ := json.Marshal(map[string]any{"event": kind, "recipient": recipient, "timestamp": ts.Unix()})
	return b
}

var now = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

func newTestScheduler(adapters ...esp.Adapter) (*Scheduler, *suppression.Service, *MemoryCursorStore) {
	svc := suppression.NewService(memory.NewSuppressionRepo())
	cursors := NewMemoryCursorStore()
	s := NewScheduler(adapters, svc, cursors, nil, DefaultSchedulerConfig())
	s.now = func() time.Time { return now }
	return s, svc, cursors
}

func TestRunOnce_FirstCycleUsesLookback(t *testing.T) {
	bounceAt := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	deliveredAt := time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	a := &fakeAdapter{name: "fake", configured: true, pages: [][]esp.RawEvent{
		{rawEvent("bounced", "Bounce@Example.com", bounceAt)},
		{rawEvent("delivered", "ok@example.com", deliveredAt), rawEvent("clicked", "ok@example.com", deliveredAt)},
	}}
	s, svc, cursors := newTestScheduler(a)
	ctx := context.Background()

	results := s.RunOnce(ctx)
	require.Len(t, results, 1)
	res := results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Events)
	assert.Equal(t, 1, res.Applied)

	q := a.lastQuery()
	assert.Equal(t, now.Add(-24*time.Hour).Unix(), q.Begin)
	assert.Equal(t, now.Unix(), q.End)
	assert.True(t, q.Ascending)
	assert.Equal(t, 300, q.Limit)

	cur, found, err := cursors.Load(ctx, "fake")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, deliveredAt, cur)

	suppressed, err := svc.IsSuppressed(ctx, "bounce@example.com")
	require.NoError(t, err)
	assert.True(t, suppressed)
}

func TestRunOnce_ResumesFromCursorMinusThreshold(t *testing.T) {
	a := &fakeAdapter{name: "fake", configured: true}
	s, _, cursors := newTestScheduler(a)
	ctx := context.Background()

	cursor := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, cursors.Save(ctx, "fake", cursor))

	res := s.RunOnce(ctx)[0]
	require.NoError(t, res.Err)
	assert.Equal(t, cursor.Add(-30*time.Minute).Unix(), a.lastQuery().Begin)

	got, _, _ := cursors.Load(ctx, "fake")
	assert.Equal(t, cursor, got, "an empty window must not move the cursor")
}

func TestRunOnce_OverlappingWindowsAreIdempotent(t *testing.T) {
	ts := time.Date(2025, 1, 1, 23, 50, 0, 0, time.UTC)
	a := &fakeAdapter{name: "fake", configured: true, pages: [][]esp.RawEvent{
		{rawEvent("bounced", "x@example.com", ts)},
	}}
	s, svc, _ := newTestScheduler(a)
	ctx := context.Background()

	s.RunOnce(ctx)
	s.RunOnce(ctx)

	recs, err := svc.Records(ctx, "x@example.com")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ts, recs[0].FirstSeen)
	assert.Equal(t, ts, recs[0].LastSeen)
}

func TestRunOnce_FailureKeepsCursor(t *testing.T) {
	a := &fakeAdapter{
		name:       "fake",
		configured: true,
		fetchErr:   esp.NewTransportError("fake", esp.OpFetch, errors.New("connection reset")),
	}
	s, _, cursors := newTestScheduler(a)
	ctx := context.Background()

	cursor := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, cursors.Save(ctx, "fake", cursor))

	res := s.RunOnce(ctx)[0]
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, esp.ErrProviderTransport))

	got, _, _ := cursors.Load(ctx, "fake")
	assert.Equal(t, cursor, got)
	assert.Equal(t, int64(1), s.Stats()["total_errors"])
}

func TestRunOnce_ProvidersAreIndependent(t *testing.T) {
	broken := &fakeAdapter{name: "broken", configured: true, fetchErr: errors.New("boom")}
	healthy := &fakeAdapter{name: "healthy", configured: true, pages: [][]esp.RawEvent{
		{rawEvent("bounced", "h@example.com", now.Add(-time.Hour))},
	}}
	idle := &fakeAdapter{name: "idle"}
	s, svc, _ := newTestScheduler(broken, healthy, idle)

	results := s.RunOnce(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, "broken", results[0].Provider)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 1, results[1].Applied)
	assert.Equal(t, "not configured", results[2].Skipped)
	assert.Zero(t, idle.queryCount())

	ok, _ := svc.IsSuppressed(context.Background(), "h@example.com")
	assert.True(t, ok)
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	a := &fakeAdapter{name: "fake", configured: true}
	locks := distlock.NewLocalLocks()
	held := locks.Lock("analytics:fake")
	ok, _ := held.Acquire(context.Background())
	require.True(t, ok)

	s := NewScheduler([]esp.Adapter{a}, suppression.NewService(memory.NewSuppressionRepo()),
		NewMemoryCursorStore(), locks.Lock, DefaultSchedulerConfig())

	res := s.RunOnce(context.Background())[0]
	assert.Equal(t, "cycle already running", res.Skipped)
	assert.Zero(t, a.queryCount())
}

func TestScheduler_StartStop(t *testing.T) {
	a := &fakeAdapter{name: "fake", configured: true}
	s, _, _ := newTestScheduler(a)
	s.cfg.Interval = time.Hour

	s.Start(context.Background())
	assert.True(t, s.IsRunning())
	require.Eventually(t, func() bool { return a.queryCount() == 1 }, time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Equal(t, int64(1), s.Stats()["total_cycles"])
}

type recordingArchive struct {
	mu    sync.Mutex
	pages int
	err   error
}

func (r *recordingArchive) Archive(_ context.Context, provider string, _ time.Time, events []esp.RawEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages++
	return r.err
}

type recordingLog struct {
	mu      sync.Mutex
	results []CycleResult
}

func (r *recordingLog) RecordCycle(_ context.Context, res CycleResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func TestRunOnce_ArchivesAndRecords(t *testing.T) {
	a := &fakeAdapter{name: "fake", configured: true, pages: [][]esp.RawEvent{
		{rawEvent("bounced", "x@example.com", now.Add(-time.Hour))},
		{rawEvent("delivered", "y@example.com", now.Add(-time.Minute))},
	}}
	archive := &recordingArchive{err: errors.New("bucket gone")}
	log := &recordingLog{}

	s := NewScheduler([]esp.Adapter{a}, suppression.NewService(memory.NewSuppressionRepo()),
		NewMemoryCursorStore(), nil, DefaultSchedulerConfig(),
		WithArchiver(archive), WithCycleRecorder(log))
	s.now = func() time.Time { return now }

	res := s.RunOnce(context.Background())[0]
	require.NoError(t, res.Err, "archive failures must not fail the cycle")
	assert.Equal(t, 2, archive.pages)

	require.Len(t, log.results, 1)
	assert.Equal(t, "fake", log.results[0].Provider)
	assert.Equal(t, 2, log.results[0].Events)
	assert.Equal(t, now.Add(-time.Minute), log.results[0].Cursor)
}

func TestRunOnce_CursorAdvancesThroughBurstInsideTrustWindow(t *testing.T) {
	burstStart := time.Date(2025, 1, 1, 21, 30, 0, 0, time.UTC)
	late := burstStart.Add(90 * time.Minute)

	a := &fakeAdapter{name: "fake", configured: true}
	for i := 0; i < 1000; i++ {
		ts := burstStart.Add(time.Duration(i) * 600 * time.Millisecond)
		a.events = append(a.events, rawEvent("bounced", "user"+strconv.Itoa(i)+"@example.com", ts))
	}
	a.events = append(a.events, rawEvent("bounced", "late@example.com", late))

	s, svc, cursors := newTestScheduler(a)
	ctx := context.Background()

	var cursor time.Time
	for cycle := 0; cycle < 10 && !cursor.Equal(late); cycle++ {
		res := s.RunOnce(ctx)[0]
		require.NoError(t, res.Err)
		require.True(t, res.Cursor.After(cursor), "cycle %d did not move the cursor past %s", cycle, cursor)
		cursor = res.Cursor
	}

	got, found, err := cursors.Load(ctx, "fake")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, late, got)

	for i := 0; i < 1000; i++ {
		ok, err := svc.IsSuppressed(ctx, "user"+strconv.Itoa(i)+"@example.com")
		require.NoError(t, err)
		require.True(t, ok, "user%d was never applied", i)
	}
	ok, err := svc.IsSuppressed(ctx, "late@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunOnce_WindowFollowsCursor(t *testing.T) {
	old := now.Add(-3 * time.Hour)
	recent := now.Add(-10 * time.Minute)
	a := &fakeAdapter{name: "fake", configured: true, events: []esp.RawEvent{
		rawEvent("bounced", "old@example.com", old),
		rawEvent("bounced", "recent@example.com", recent),
	}}
	s, svc, cursors := newTestScheduler(a)
	ctx := context.Background()
	require.NoError(t, cursors.Save(ctx, "fake", now.Add(-time.Hour)))

	res := s.RunOnce(ctx)[0]
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Events)
	assert.Equal(t, recent, res.Cursor)

	ok, _ := svc.IsSuppressed(ctx, "old@example.com")
	assert.False(t, ok, "events before cursor minus threshold are outside the window")
}
