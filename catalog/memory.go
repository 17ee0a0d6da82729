package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

// MemRow is a fixture row plus its heading index keys.
type MemRow struct {
	Row
	Keys []string
}

// MemStore is an in-memory Store used in tests and demos. It applies
// the same ordering and lower bound semantics as the Postgres store
// and counts fetched rows so scan cost assertions are possible.
type MemStore struct {
	Rows     []MemRow
	Headings map[string]string

	// Resolutions counts ResolveHeadingKey calls, Fetched counts raw
	// rows handed out by FetchPage.
	Resolutions int64
	Fetched     int64
}

// FetchPage implements Store.
func (s *MemStore) FetchPage(ctx context.Context, q Query, limit int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := append([]MemRow(nil), s.Rows...)
	if q.TimeOrdered {
		sort.SliceStable(rows, func(i, j int) bool {
			if !rows[i].Time.Equal(rows[j].Time) {
				return rows[i].Time.Before(rows[j].Time)
			}
			return rows[i].ID < rows[j].ID
		})
	} else {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	}
	var out []Row
	for _, r := range rows {
		if len(out) == limit {
			break
		}
		if q.AfterID != "" {
			if q.TimeOrdered {
				if r.Time.Before(q.AfterTime) {
					continue
				}
				if r.Time.Equal(q.AfterTime) && r.ID <= q.AfterID {
					continue
				}
			} else if r.ID <= q.AfterID {
				continue
			}
		}
		if !q.From.IsZero() && r.Time.Before(q.From) {
			continue
		}
		if !q.Until.IsZero() && r.Time.After(q.Until) {
			continue
		}
		if len(q.HeadingKeys) > 0 && !hasAny(r.Keys, q.HeadingKeys) {
			continue
		}
		out = append(out, r.Row)
	}
	atomic.AddInt64(&s.Fetched, int64(len(out)))
	return out, nil
}

// FetchOne implements Store.
func (s *MemStore) FetchOne(ctx context.Context, id string) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range s.Rows {
		if r.ID == id {
			row := r.Row
			return &row, nil
		}
	}
	return nil, nil
}

// ResolveHeadingKey implements Store.
func (s *MemStore) ResolveHeadingKey(ctx context.Context, value string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	atomic.AddInt64(&s.Resolutions, 1)
	key, ok := s.Headings[value]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownHeading, value)
	}
	return key, nil
}

// EarliestTimestamp implements Store.
func (s *MemStore) EarliestTimestamp(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	var earliest time.Time
	for _, r := range s.Rows {
		if earliest.IsZero() || r.Time.Before(earliest) {
			earliest = r.Time
		}
	}
	if earliest.IsZero() {
		earliest = time.Now().UTC()
	}
	return earliest, nil
}

func hasAny(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
