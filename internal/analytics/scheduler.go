// Package analytics runs the periodic poll cycles that pull delivery events
// from every enabled provider and fold them into the suppression list.
package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/distlock"
	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// EventSink receives the normalized events of each page.
type EventSink interface {
	ApplyBatch(ctx context.Context, events []*domain.EmailEvent) (int, error)
}

// Archiver stores the raw provider payload of each page as received.
type Archiver interface {
	Archive(ctx context.Context, provider string, at time.Time, events []esp.RawEvent) error
}

// CycleRecorder keeps an audit trail of completed and failed cycles.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, res CycleResult) error
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

// WithArchiver archives every fetched page before it is applied. Archive
// failures are logged and do not fail the cycle.
func WithArchiver(a Archiver) Option {
	return func(s *Scheduler) { s.archiver = a }
}

// WithCycleRecorder records the outcome of every cycle that ran.
func WithCycleRecorder(r CycleRecorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// SchedulerConfig holds the poll cycle tuning.
type SchedulerConfig struct {
	Interval time.Duration
	// TrustThreshold is subtracted from the cursor so late-arriving events
	// in the recent past are fetched again.
	TrustThreshold  time.Duration
	InitialLookback time.Duration
	MaxEvents       int
	// LockTTL bounds how long a crashed worker can block a provider's
	// cycles. app.Open passes it to the Redis lock factory.
	LockTTL time.Duration
}

// DefaultSchedulerConfig returns default configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:        5 * time.Minute,
		TrustThreshold:  30 * time.Minute,
		InitialLookback: 24 * time.Hour,
		MaxEvents:       300,
		LockTTL:         10 * time.Minute,
	}
}

// SchedulerConfigFrom converts the analytics section of the app config.
func SchedulerConfigFrom(c config.AnalyticsConfig) SchedulerConfig {
	sc := DefaultSchedulerConfig()
	if c.IntervalSeconds > 0 {
		sc.Interval = c.Interval()
	}
	if c.TrustThresholdMinutes > 0 {
		sc.TrustThreshold = c.TrustThreshold()
	}
	if c.InitialLookbackHours > 0 {
		sc.InitialLookback = c.InitialLookback()
	}
	if c.MaxEvents > 0 {
		sc.MaxEvents = c.MaxEvents
	}
	if c.LockTTLMinutes > 0 {
		sc.LockTTL = c.LockTTL()
	}
	return sc
}

// CycleResult describes one provider's poll cycle.
type CycleResult struct {
	Provider string        `json:"provider"`
	Begin    time.Time     `json:"begin"`
	End      time.Time     `json:"end"`
	Events   int           `json:"events"`
	Applied  int           `json:"applied"`
	Cursor   time.Time     `json:"cursor"`
	Skipped  string        `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Scheduler polls every adapter on a fixed interval. Providers are polled
// concurrently; each provider's cursor is independent and only advances
// after a cycle completes without error.
type Scheduler struct {
	adapters []esp.Adapter
	sink     EventSink
	cursors  CursorStore
	locks    distlock.Factory
	cfg      SchedulerConfig
	now      func() time.Time
	archiver Archiver
	recorder CycleRecorder

	totalCycles  int64
	totalEvents  int64
	totalApplied int64
	totalErrors  int64

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. A nil lock factory uses in-process locks.
func NewScheduler(adapters []esp.Adapter, sink EventSink, cursors CursorStore, locks distlock.Factory, cfg SchedulerConfig, opts ...Option) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.InitialLookback <= 0 {
		cfg.InitialLookback = def.InitialLookback
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if locks == nil {
		locks = distlock.NewLocalLocks().Lock
	}
	s := &Scheduler{
		adapters: adapters,
		sink:     sink,
		cursors:  cursors,
		locks:    locks,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins polling in a background goroutine. The first cycle runs
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	logger.Info("analytics scheduler starting",
		"providers", len(s.adapters),
		"interval", s.cfg.Interval.String(),
		"trust_threshold", s.cfg.TrustThreshold.String())

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the loop and waits for in-flight cycles.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("analytics scheduler stopped",
		"cycles", atomic.LoadInt64(&s.totalCycles),
		"events", atomic.LoadInt64(&s.totalEvents),
		"applied", atomic.LoadInt64(&s.totalApplied),
		"errors", atomic.LoadInt64(&s.totalErrors))
}

// IsRunning returns whether the poll loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns cumulative counters.
func (s *Scheduler) Stats() map[string]int64 {
	return map[string]int64{
		"total_cycles":  atomic.LoadInt64(&s.totalCycles),
		"total_events":  atomic.LoadInt64(&s.totalEvents),
		"total_applied": atomic.LoadInt64(&s.totalApplied),
		"total_errors":  atomic.LoadInt64(&s.totalErrors),
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce polls every adapter once, concurrently, and returns the results in
// adapter order.
func (s *Scheduler) RunOnce(ctx context.Context) []CycleResult {
	results := make([]CycleResult, len(s.adapters))
	var wg sync.WaitGroup
	for i, a := range s.adapters {
		wg.Add(1)
		go func(i int, a esp.Adapter) {
			defer wg.Done()
			results[i] = s.poll(ctx, a)
		}(i, a)
	}
	wg.Wait()
	atomic.AddInt64(&s.totalCycles, 1)
	return results
}

func (s *Scheduler) poll(ctx context.Context, a esp.Adapter) (res CycleResult) {
	start := s.now()
	res = CycleResult{Provider: a.Name()}
	defer func() { res.Duration = s.now().Sub(start) }()

	if !a.IsConfigured(ctx) {
		res.Skipped = "not configured"
		logger.Debug("analytics skipped", "provider", res.Provider, "reason", res.Skipped)
		return res
	}

	lock := s.locks("analytics:" + res.Provider)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		res.Err = err
		s.fail(res)
		return res
	}
	if !ok {
		res.Skipped = "cycle already running"
		logger.Debug("analytics skipped", "provider", res.Provider, "reason", res.Skipped)
		return res
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
			logger.Warn("analytics lock release failed", "provider", res.Provider, "error", err)
		}
	}()

	if s.recorder != nil {
		defer func() {
			res.Duration = s.now().Sub(start)
			if err := s.recorder.RecordCycle(context.WithoutCancel(ctx), res); err != nil {
				logger.Warn("cycle record failed", "provider", res.Provider, "error", err)
			}
		}()
	}

	cursor, found, err := s.cursors.Load(ctx, res.Provider)
	if err != nil {
		res.Err = err
		s.fail(res)
		return res
	}

	res.End = s.now().UTC()
	if found {
		res.Begin = cursor.Add(-s.cfg.TrustThreshold)
	} else {
		res.Begin = res.End.Add(-s.cfg.InitialLookback)
	}
	newest := cursor

	handler := func(ctx context.Context, raws []esp.RawEvent) error {
		if s.archiver != nil {
			if err := s.archiver.Archive(ctx, res.Provider, s.now().UTC(), raws); err != nil {
				logger.Warn("event archive failed", "provider", res.Provider, "events", len(raws), "error", err)
			}
		}
		events := make([]*domain.EmailEvent, 0, len(raws))
		latest := newest
		for _, raw := range raws {
			res.Events++
			ev, err := a.NormalizeEvent(raw)
			if err != nil {
				logger.Debug("dropping unparseable event", "provider", res.Provider, "error", err)
				continue
			}
			if ev == nil {
				continue
			}
			events = append(events, ev)
			if ev.Timestamp.After(latest) && !ev.Timestamp.After(res.End) {
				latest = ev.Timestamp
			}
		}
		n, err := s.sink.ApplyBatch(ctx, events)
		res.Applied += n
		if err != nil {
			return err
		}
		newest = latest
		return nil
	}

	opts := esp.FetchOptions{
		Begin:     res.Begin,
		End:       res.End,
		MaxEvents: s.cfg.MaxEvents,
	}
	if found {
		opts.After = cursor
	}
	err = a.AnalyticsProvider().FetchLatest(ctx, handler, opts)
	atomic.AddInt64(&s.totalEvents, int64(res.Events))
	atomic.AddInt64(&s.totalApplied, int64(res.Applied))
	if err != nil {
		res.Err = err
		res.Cursor = cursor
		s.fail(res)
		return res
	}

	res.Cursor = cursor
	if newest.After(cursor) {
		if err := s.cursors.Save(ctx, res.Provider, newest); err != nil {
			res.Err = err
			s.fail(res)
			return res
		}
		res.Cursor = newest
	}

	logger.Info("analytics cycle complete",
		"provider", res.Provider,
		"events", res.Events,
		"applied", res.Applied,
		"cursor", res.Cursor.Format(time.RFC3339))
	return res
}

func (s *Scheduler) fail(res CycleResult) {
	atomic.AddInt64(&s.totalErrors, 1)
	logger.Error("analytics cycle failed", "provider", res.Provider, "error", res.Err)
}
