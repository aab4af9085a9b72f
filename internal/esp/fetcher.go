package esp

import (
	"context"
	"strings"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// FetchOptions bounds one FetchLatest call. Zero Begin/End mean unbounded;
// MaxEvents <= 0 disables the soft cap.
//
// After is the progress bound for the soft cap, normally the caller's
// persisted cursor. Zero means Begin.
type FetchOptions struct {
	Begin     time.Time
	End       time.Time
	After     time.Time
	MaxEvents int
}

// AnalyticsFetcher pulls the latest analytics events for one provider in
// ascending time order with a bounded page size.
type AnalyticsFetcher struct {
	source    EventSource
	pageLimit int
	filter    string
}

// NewAnalyticsFetcher returns a fetcher for source using the provider's page
// limit and event filter expression.
func NewAnalyticsFetcher(source EventSource, pageLimit int, filter string) *AnalyticsFetcher {
	return &AnalyticsFetcher{source: source, pageLimit: pageLimit, filter: filter}
}

// JoinKinds joins canonical event kinds with a provider's OR operator.
func JoinKinds(sep string, kinds ...domain.EventKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, sep)
}

// PageLimit returns the page size used for every request.
func (f *AnalyticsFetcher) PageLimit() int { return f.pageLimit }

// Filter returns the provider event filter expression.
func (f *AnalyticsFetcher) Filter() string { return f.filter }

// Query builds the page query for opts.
func (f *AnalyticsFetcher) Query(opts FetchOptions) PageQuery {
	q := PageQuery{
		Limit:     f.pageLimit,
		Event:     f.filter,
		Ascending: true,
	}
	if !opts.Begin.IsZero() {
		q.Begin = opts.Begin.Unix()
	}
	if !opts.End.IsZero() {
		q.End = opts.End.Unix()
	}
	return q
}

// FetchLatest fetches events in [Begin, End] and hands each page to handler.
//
// MaxEvents is a soft cap: the walk stops only once at least MaxEvents
// events were delivered and at least one of them is strictly after After
// (or Begin when After is zero) and not after End. Re-read events at or
// before the bound keep the walk paging so the caller's cursor can advance.
// Providers that page newest first ignore the cap.
func (f *AnalyticsFetcher) FetchLatest(ctx context.Context, handler BatchHandler, opts FetchOptions) error {
	q := f.Query(opts)
	capped := opts.MaxEvents > 0 && f.source.Ordering() == OldestFirst

	bound := opts.After
	if bound.IsZero() && !opts.Begin.IsZero() {
		bound = time.Unix(q.Begin, 0).UTC()
	}

	var (
		seen       int
		pages      int
		progressed = bound.IsZero()
	)

	wrapped := func(ctx context.Context, events []RawEvent) error {
		if err := handler(ctx, events); err != nil {
			return err
		}
		pages++
		seen += len(events)

		if !progressed {
			progressed = f.anyAfter(events, bound, opts.End)
		}
		if capped && seen >= opts.MaxEvents && progressed {
			return ErrStopPaging
		}
		return nil
	}

	err := f.source.FetchEvents(ctx, q, wrapped)
	logger.Debug("analytics fetch finished",
		"provider", f.source.Name(),
		"pages", pages,
		"events", seen,
		"begin", q.Begin,
		"end", q.End)
	return err
}

// anyAfter reports whether an event falls in (bound, end]. A zero end is
// unbounded.
func (f *AnalyticsFetcher) anyAfter(events []RawEvent, bound, end time.Time) bool {
	for _, raw := range events {
		ev, err := f.source.NormalizeEvent(raw)
		if err != nil || ev == nil {
			continue
		}
		if !ev.Timestamp.After(bound) {
			continue
		}
		if end.IsZero() || !ev.Timestamp.After(end) {
			return true
		}
	}
	return false
}
