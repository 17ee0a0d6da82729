// Package catalog defines the store boundary between the harvesting
// engine and the relational catalog. Implementations must return rows
// in a stable order and support strict-greater lower bounds on the
// sort key, including the (time, id) tuple used to break timestamp
// ties.
package catalog

import (
	"context"
	"time"
)

// Row is one raw catalog row. Raw is nil for deleted records, which
// still occupy a pagination slot. Excluded marks rows the engine must
// skip without delivering, e.g. records mid-indexing or structurally
// unusable ones.
type Row struct {
	ID       string
	Time     time.Time
	Raw      []byte
	Excluded bool
}

// Query is the filter and lower bound for one page fetch.
//
// With TimeOrdered set, rows sort by (time, id) and the lower bound is
// the exclusive tuple (AfterTime, AfterID); otherwise rows sort by id
// and the bound is id > AfterID. An empty AfterID means no bound.
type Query struct {
	TimeOrdered bool
	AfterID     string
	AfterTime   time.Time

	// From and Until bound the update timestamp, inclusive. Zero
	// values mean unbounded.
	From  time.Time
	Until time.Time

	// HeadingKeys restrict rows to those indexed under any of the
	// resolved heading keys. Empty means no set filter.
	HeadingKeys []string
}

// Store yields ordered pages of raw records and resolves heading index
// lookups. All methods honor context cancellation; an abandoned call
// must release its connection before returning.
type Store interface {
	// FetchPage returns up to limit rows past the query's lower
	// bound, in sort order.
	FetchPage(ctx context.Context, q Query, limit int) ([]Row, error)
	// FetchOne returns a single row by catalog id, or nil if absent.
	FetchOne(ctx context.Context, id string) (*Row, error)
	// ResolveHeadingKey resolves a heading value to its concrete
	// index key. Resolution is idempotent.
	ResolveHeadingKey(ctx context.Context, value string) (string, error)
	// EarliestTimestamp reports the oldest update timestamp in the
	// catalog.
	EarliestTimestamp(ctx context.Context) (time.Time, error)
}
