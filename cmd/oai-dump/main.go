// oai-dump exports the whole catalog as JSON lines, for offline
// processing and for diffing replicas.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	gzip "github.com/klauspost/pgzip"
	"github.com/segmentio/encoding/json"

	provider "github.com/NatLibFi/melinda-oai-pmh-provider-sub000"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/catalog"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/marc"
)

var docs = strings.TrimLeft(`
# oai-dump - export the catalog as JSON lines

One object per row: identifier, update timestamp, deleted marker and
the parsed record.

$ oai-dump -dsn postgres://oai@localhost/melinda | head -1 | jq .
$ oai-dump -dsn postgres://oai@localhost/melinda -z -o catalog.jsonl.gz

## flags

`, "\n")

var (
	dsn         = flag.String("dsn", "", "postgres connection string")
	output      = flag.String("o", "", "output file, default stdout")
	compress    = flag.Bool("z", false, "gzip the output")
	batchSize   = flag.Int("b", 10000, "rows per batch")
	lenient     = flag.Bool("lenient", false, "tolerate framing defects in stored records")
	skipDeleted = flag.Bool("skip-deleted", false, "omit deleted rows")
	showVersion = flag.Bool("version", false, "show version")
)

// line is one exported row.
type line struct {
	ID      string       `json:"id"`
	Updated time.Time    `json:"updated"`
	Deleted bool         `json:"deleted,omitempty"`
	Record  *marc.Record `json:"record,omitempty"`
}

func main() {
	flag.Usage = func() {
		io.WriteString(os.Stderr, docs)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(provider.Version)
		os.Exit(0)
	}
	if *dsn == "" {
		log.Fatal("missing -dsn")
	}
	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		w = f
	}
	if *compress {
		gw := gzip.NewWriter(w)
		defer gw.Close()
		w = gw
	}
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	mode := marc.DecodeStrict
	if *lenient {
		mode = marc.DecodeLenient
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	store := catalog.NewPgStore(pool)
	enc := json.NewEncoder(bw)
	var (
		cursor string
		total  int64
		start  = time.Now()
	)
	for {
		rows, err := store.FetchPage(ctx, catalog.Query{AfterID: cursor}, *batchSize)
		if err != nil {
			log.Fatal(err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			if row.Excluded {
				continue
			}
			if row.Raw == nil && *skipDeleted {
				continue
			}
			l := line{ID: row.ID, Updated: row.Time, Deleted: row.Raw == nil}
			if row.Raw != nil {
				rec, err := marc.Decode(row.Raw, mode)
				if err != nil {
					log.Fatalf("record %s: %v", row.ID, err)
				}
				l.Record = rec
			}
			if err := enc.Encode(l); err != nil {
				log.Fatal(err)
			}
			total++
		}
		cursor = rows[len(rows)-1].ID
	}
	log.Printf("exported %d rows in %v", total, time.Since(start))
}
