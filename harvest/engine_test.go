package harvest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/catalog"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/marc"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/pmh"
)

var fixtureEpoch = time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)

func fixtureRaw(id string) []byte {
	return marc.Encode(&marc.Record{
		Leader: "00000cam a22000004i 4500",
		Controls: []marc.ControlField{
			{Tag: "001", Value: id},
		},
		Fields: []marc.DataField{
			{Tag: "245", Ind1: "1", Ind2: "0", Subfields: []marc.Subfield{{Code: "a", Value: "Record " + id}}},
		},
	})
}

// fixtureStore builds n sequential rows, one minute apart.
func fixtureStore(n int) *catalog.MemStore {
	s := &catalog.MemStore{Headings: map[string]string{}}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%09d", i+1)
		s.Rows = append(s.Rows, catalog.MemRow{Row: catalog.Row{
			ID:   id,
			Time: fixtureEpoch.Add(time.Duration(i) * time.Minute),
			Raw:  fixtureRaw(id),
		}})
	}
	return s
}

func testEngine(s *catalog.MemStore, pageSize int) *Engine {
	return &Engine{
		Store:    s,
		Sets:     NewSetResolver(s, nil),
		PageSize: pageSize,
	}
}

// walk follows a harvest to completion, feeding each page's cursors
// into the next call, and returns all pages.
func walk(t *testing.T, e *Engine, opts Options) []*Page {
	t.Helper()
	var pages []*Page
	for {
		page, err := e.Harvest(context.Background(), opts)
		if err != nil {
			t.Fatal(err)
		}
		pages = append(pages, page)
		if !page.HasNext {
			return pages
		}
		if len(pages) > 100 {
			t.Fatal("harvest does not terminate")
		}
		opts.Cursor = page.NextCursor
		opts.TimeCursor = page.NextTimeCursor
		opts.LastCount = page.LastCount
	}
}

func TestPaginationShape(t *testing.T) {
	// 25 rows, page size 10: pages of 10, 10, 5 with cumulative
	// counts 10, 20, 25 and no cursor after the third call.
	e := testEngine(fixtureStore(25), 10)
	pages := walk(t, e, Options{NeedContent: true})
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	wantSizes := []int{10, 10, 5}
	wantCounts := []int64{10, 20, 25}
	for i, page := range pages {
		if len(page.Records) != wantSizes[i] {
			t.Errorf("page %d: %d records, want %d", i, len(page.Records), wantSizes[i])
		}
		if page.LastCount != wantCounts[i] {
			t.Errorf("page %d: lastCount %d, want %d", i, page.LastCount, wantCounts[i])
		}
	}
	if last := pages[2]; last.HasNext || last.NextCursor != "" {
		t.Errorf("final page still has a cursor: %+v", last)
	}
}

func TestPaginationCoverage(t *testing.T) {
	// Every row visited exactly once, in sort key order, for page
	// sizes that do and do not divide the row count.
	for _, pageSize := range []int{1, 3, 7, 25, 40} {
		for _, timeOrdered := range []bool{false, true} {
			e := testEngine(fixtureStore(25), pageSize)
			opts := Options{}
			if timeOrdered {
				opts.From = fixtureEpoch
			}
			var seen []string
			for _, page := range walk(t, e, opts) {
				for _, env := range page.Records {
					seen = append(seen, env.ID)
				}
			}
			if len(seen) != 25 {
				t.Fatalf("pageSize=%d timeOrdered=%v: visited %d rows", pageSize, timeOrdered, len(seen))
			}
			for i, id := range seen {
				if want := fmt.Sprintf("%09d", i+1); id != want {
					t.Errorf("pageSize=%d: position %d: got %s, want %s", pageSize, i, id, want)
				}
			}
		}
	}
}

func TestTimestampTiesAcrossPageBreak(t *testing.T) {
	// All rows share one timestamp; a page break inside the tie group
	// must not re-deliver or skip rows.
	s := &catalog.MemStore{}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("%09d", i+1)
		s.Rows = append(s.Rows, catalog.MemRow{Row: catalog.Row{
			ID: id, Time: fixtureEpoch, Raw: fixtureRaw(id),
		}})
	}
	e := testEngine(s, 3)
	var seen []string
	for _, page := range walk(t, e, Options{From: fixtureEpoch.Add(-time.Hour)}) {
		for _, env := range page.Records {
			seen = append(seen, env.ID)
		}
	}
	if len(seen) != 10 {
		t.Fatalf("visited %d rows, want 10: %v", len(seen), seen)
	}
	unique := map[string]bool{}
	for _, id := range seen {
		if unique[id] {
			t.Errorf("row %s delivered twice", id)
		}
		unique[id] = true
	}
}

func TestOverflowGuard(t *testing.T) {
	// 90% excluded rows: one call never consumes more than
	// pageSize+100 raw rows.
	s := &catalog.MemStore{}
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("%09d", i+1)
		s.Rows = append(s.Rows, catalog.MemRow{Row: catalog.Row{
			ID:       id,
			Time:     fixtureEpoch.Add(time.Duration(i) * time.Second),
			Raw:      fixtureRaw(id),
			Excluded: i%10 != 0,
		}})
	}
	e := testEngine(s, 10)
	page, err := e.Harvest(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Scanned > 110 {
		t.Errorf("scanned %d raw rows, budget is 110", page.Scanned)
	}
	// Excluded rows do not occupy delivery slots.
	if len(page.Records) != 10 {
		t.Errorf("got %d records, want 10", len(page.Records))
	}
	// The full harvest still reaches every valid row.
	var total int
	for _, p := range walk(t, e, Options{}) {
		total += len(p.Records)
	}
	if total != 100 {
		t.Errorf("harvest delivered %d valid rows, want 100", total)
	}
}

func TestGuardAdvancesPastExcludedRun(t *testing.T) {
	// A run of excluded rows longer than the guard budget must not
	// stall the cursor: the next page picks up past the run.
	s := &catalog.MemStore{}
	for i := 0; i < 300; i++ {
		id := fmt.Sprintf("%09d", i+1)
		s.Rows = append(s.Rows, catalog.MemRow{Row: catalog.Row{
			ID:       id,
			Time:     fixtureEpoch,
			Raw:      fixtureRaw(id),
			Excluded: i >= 5 && i < 250,
		}})
	}
	e := testEngine(s, 10)
	var total int
	for _, p := range walk(t, e, Options{}) {
		total += len(p.Records)
	}
	if total != 55 {
		t.Errorf("delivered %d rows, want 55", total)
	}
}

func TestDeletedRowsConsumeSlots(t *testing.T) {
	s := fixtureStore(6)
	s.Rows[1].Raw = nil
	s.Rows[4].Raw = nil
	e := testEngine(s, 4)
	page, err := e.Harvest(context.Background(), Options{NeedContent: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 4 {
		t.Fatalf("got %d records, want 4", len(page.Records))
	}
	if !page.Records[1].Deleted || page.Records[1].Record != nil {
		t.Errorf("row 2 should be a bare deleted marker: %+v", page.Records[1])
	}
	if page.Records[0].Record == nil {
		t.Error("row 1 should carry content")
	}
}

func TestMalformedRecordAbortsWhenContentNeeded(t *testing.T) {
	s := fixtureStore(3)
	s.Rows[1].Raw = []byte("garbage")
	e := testEngine(s, 10)
	if _, err := e.Harvest(context.Background(), Options{NeedContent: true, Mode: marc.DecodeStrict}); err == nil {
		t.Fatal("expected a fatal error for a malformed record")
	}
	// Identifier harvests never touch record content.
	page, err := e.Harvest(context.Background(), Options{NeedContent: false})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 3 {
		t.Errorf("got %d records, want 3", len(page.Records))
	}
}

func TestSetFilter(t *testing.T) {
	s := &catalog.MemStore{Headings: map[string]string{"genre:fennica": "K0017"}}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("%09d", i+1)
		var keys []string
		if i%2 == 0 {
			keys = []string{"K0017"}
		}
		s.Rows = append(s.Rows, catalog.MemRow{
			Row:  catalog.Row{ID: id, Time: fixtureEpoch, Raw: fixtureRaw(id)},
			Keys: keys,
		})
	}
	sets := []pmh.Set{{Spec: "fennica", Name: "Fennica", Filters: []string{"genre:fennica"}}}
	e := &Engine{Store: s, Sets: NewSetResolver(s, sets), PageSize: 10}
	page, err := e.Harvest(context.Background(), Options{Set: "fennica"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 3 {
		t.Errorf("got %d records, want 3", len(page.Records))
	}
}
