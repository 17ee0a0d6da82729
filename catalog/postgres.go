package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownHeading is returned when a heading value has no index key.
var ErrUnknownHeading = errors.New("unknown heading")

// PgStore is the Postgres backed catalog store.
//
// Expected schema:
//
//	records(id text primary key, updated timestamptz not null,
//	        content bytea, deleted bool not null default false,
//	        excluded bool not null default false)
//	headings(value text primary key, key text not null)
//	heading_index(key text not null, record_id text not null)
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore connects a store to a pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// FetchPage implements Store. The lower bound uses tuple comparison so
// a resumed time-ordered harvest never re-delivers rows at the
// boundary timestamp and never skips its ties.
func (s *PgStore) FetchPage(ctx context.Context, q Query, limit int) ([]Row, error) {
	var (
		sb   strings.Builder
		args []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	sb.WriteString("SELECT r.id, r.updated, r.content, r.deleted, r.excluded FROM records r")
	var conds []string
	if q.AfterID != "" {
		if q.TimeOrdered {
			conds = append(conds, fmt.Sprintf("(r.updated, r.id) > (%s, %s)",
				arg(q.AfterTime), arg(q.AfterID)))
		} else {
			conds = append(conds, fmt.Sprintf("r.id > %s", arg(q.AfterID)))
		}
	}
	if !q.From.IsZero() {
		conds = append(conds, fmt.Sprintf("r.updated >= %s", arg(q.From)))
	}
	if !q.Until.IsZero() {
		conds = append(conds, fmt.Sprintf("r.updated <= %s", arg(q.Until)))
	}
	if len(q.HeadingKeys) > 0 {
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM heading_index h WHERE h.record_id = r.id AND h.key = ANY(%s))",
			arg(q.HeadingKeys)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	if q.TimeOrdered {
		sb.WriteString(" ORDER BY r.updated, r.id")
	} else {
		sb.WriteString(" ORDER BY r.id")
	}
	sb.WriteString(fmt.Sprintf(" LIMIT %s", arg(limit)))
	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch page: %w", err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var (
			row     Row
			deleted bool
		)
		if err := rows.Scan(&row.ID, &row.Time, &row.Raw, &deleted, &row.Excluded); err != nil {
			return nil, fmt.Errorf("catalog: scan row: %w", err)
		}
		if deleted {
			row.Raw = nil
		}
		row.Time = row.Time.UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: fetch page: %w", err)
	}
	return out, nil
}

// FetchOne implements Store.
func (s *PgStore) FetchOne(ctx context.Context, id string) (*Row, error) {
	var (
		row     Row
		deleted bool
	)
	err := s.pool.QueryRow(ctx,
		"SELECT id, updated, content, deleted, excluded FROM records WHERE id = $1", id).
		Scan(&row.ID, &row.Time, &row.Raw, &deleted, &row.Excluded)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch %s: %w", id, err)
	}
	if deleted {
		row.Raw = nil
	}
	row.Time = row.Time.UTC()
	return &row, nil
}

// ResolveHeadingKey implements Store.
func (s *PgStore) ResolveHeadingKey(ctx context.Context, value string) (string, error) {
	var key string
	err := s.pool.QueryRow(ctx, "SELECT key FROM headings WHERE value = $1", value).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnknownHeading, value)
	}
	if err != nil {
		return "", fmt.Errorf("catalog: resolve heading %s: %w", value, err)
	}
	return key, nil
}

// EarliestTimestamp implements Store.
func (s *PgStore) EarliestTimestamp(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, "SELECT COALESCE(MIN(updated), NOW()) FROM records").Scan(&t)
	if err != nil {
		return time.Time{}, fmt.Errorf("catalog: earliest timestamp: %w", err)
	}
	return t.UTC(), nil
}
