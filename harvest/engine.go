package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/catalog"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/marc"
)

// overflowSlack bounds the number of raw rows scanned beyond the page
// size in one call, so a filter matching few valid rows among many raw
// rows cannot turn one page into a full table scan.
const overflowSlack = 100

// Options describe one page of a harvest. Cursor and TimeCursor come
// from a decoded resumption token when resuming; LastCount is the
// cumulative number of records delivered before this page.
type Options struct {
	From       time.Time
	Until      time.Time
	Set        string
	Cursor     string
	TimeCursor time.Time
	LastCount  int64
	// NeedContent is true for ListRecords: rows must parse, and a
	// structural failure aborts the request rather than skipping.
	NeedContent bool
	// Mode is the record parse leniency, threaded explicitly.
	Mode marc.DecodeMode
}

// Envelope is one delivered row: either a parsed record or a deleted
// marker. Record is nil for deleted rows and for identifier-only
// harvests.
type Envelope struct {
	ID      string
	Time    time.Time
	Deleted bool
	Record  *marc.Record
}

// Page is the result of one engine invocation. HasNext signals that a
// continuation token should be issued; it is a heuristic, so a client
// may see one trailing page with no records and no token.
type Page struct {
	Records        []Envelope
	HasNext        bool
	NextCursor     string
	NextTimeCursor time.Time
	// LastCount includes this page.
	LastCount int64
	// Scanned is the number of raw rows consumed, valid or not.
	Scanned int
}

// Engine walks the catalog one bounded page per call. It holds no
// state between calls: everything needed to resume is in the page's
// next cursors, which travel to the client inside the token.
type Engine struct {
	Store    catalog.Store
	Sets     *SetResolver
	PageSize int
}

// Harvest produces one page. The catalog is visited in (time, id)
// order when a date filter is active, else in id order, and every row
// is visited exactly once across the full resumption sequence.
func (e *Engine) Harvest(ctx context.Context, opts Options) (*Page, error) {
	var keys []string
	if opts.Set != "" {
		var err error
		if keys, err = e.Sets.Keys(ctx, opts.Set); err != nil {
			return nil, fmt.Errorf("harvest: resolve set %s: %w", opts.Set, err)
		}
	}
	timeOrdered := !opts.From.IsZero() || !opts.Until.IsZero() || !opts.TimeCursor.IsZero()
	q := catalog.Query{
		TimeOrdered: timeOrdered,
		AfterID:     opts.Cursor,
		AfterTime:   opts.TimeCursor,
		From:        opts.From,
		Until:       opts.Until,
		HeadingKeys: keys,
	}
	var (
		page      Page
		budget    = e.PageSize + overflowSlack
		exhausted bool
		lastRaw   catalog.Row
	)
	for page.Scanned < budget && len(page.Records) < e.PageSize {
		limit := budget - page.Scanned
		rows, err := e.Store.FetchPage(ctx, q, limit)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			exhausted = true
			break
		}
		for _, row := range rows {
			if page.Scanned == budget || len(page.Records) == e.PageSize {
				break
			}
			page.Scanned++
			lastRaw = row
			if row.Excluded {
				continue
			}
			env := Envelope{ID: row.ID, Time: row.Time, Deleted: row.Raw == nil}
			if opts.NeedContent && !env.Deleted {
				rec, err := marc.Decode(row.Raw, opts.Mode)
				if err != nil {
					// Skipping would silently break the exactly-once
					// walk, so a malformed record is fatal for the
					// whole request.
					return nil, fmt.Errorf("harvest: record %s: %w", row.ID, err)
				}
				env.Record = rec
			}
			page.Records = append(page.Records, env)
		}
		if len(rows) < limit {
			exhausted = true
			break
		}
		// Next batch resumes past the last scanned raw row.
		q.AfterID = lastRaw.ID
		q.AfterTime = lastRaw.Time
	}
	page.LastCount = opts.LastCount + int64(len(page.Records))
	switch {
	case len(page.Records) == e.PageSize:
		// A full page: assume more may follow. Cursors point at the
		// last delivered row.
		last := page.Records[len(page.Records)-1]
		page.HasNext = true
		page.NextCursor = last.ID
		if timeOrdered {
			page.NextTimeCursor = last.Time
		}
	case !exhausted:
		// Overflow guard hit mid-stream. Advancing only to the last
		// delivered row could stall forever on a long run of excluded
		// rows, so the cursor moves past the last scanned raw row.
		page.HasNext = true
		page.NextCursor = lastRaw.ID
		if timeOrdered {
			page.NextTimeCursor = lastRaw.Time
		}
	}
	return &page, nil
}
