package market

import (
	"errors"
	"testing"
	"time"

	"tidemark/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func bar(sym string, d int, close float64) domain.Bar {
	return domain.Bar{Symbol: sym, TradeDate: day(d), Close: close}
}

func TestTimelineUnion(t *testing.T) {
	hub := NewHub([]domain.Bar{
		bar("A", 2, 10), bar("A", 3, 11),
		bar("B", 3, 20), bar("B", 4, 21),
	}, nil, nil)

	got := hub.Timeline()
	want := []time.Time{day(2), day(3), day(4)}
	if len(got) != len(want) {
		t.Fatalf("Timeline() has %d dates, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("Timeline()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTimelineBenchmarkIntersection(t *testing.T) {
	daily := []domain.Bar{bar("A", 2, 10), bar("A", 3, 11), bar("A", 4, 12)}
	// Benchmark has no row on day 3: that day must drop off the main timeline.
	bench := []domain.Bar{bar("IDX", 2, 100), bar("IDX", 4, 101), bar("IDX", 5, 102)}

	hub := NewHub(daily, bench, nil)
	got := hub.Timeline()
	want := []time.Time{day(2), day(4)}
	if len(got) != len(want) {
		t.Fatalf("Timeline() = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("Timeline()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSnapshotAbsentDateIsEmpty(t *testing.T) {
	hub := NewHub([]domain.Bar{bar("A", 2, 10)}, nil, nil)
	if got := hub.Snapshot(day(9)); len(got) != 0 {
		t.Errorf("Snapshot(absent) returned %d rows, want 0", len(got))
	}
}

func TestSnapshotSortedBySymbol(t *testing.T) {
	hub := NewHub([]domain.Bar{bar("B", 2, 20), bar("A", 2, 10)}, nil, nil)
	got := hub.Snapshot(day(2))
	if len(got) != 2 || got[0].Symbol != "A" || got[1].Symbol != "B" {
		t.Errorf("Snapshot rows = %v, want symbol order [A B]", got)
	}
}

func TestSliceRangeAndSymbol(t *testing.T) {
	hub := NewHub([]domain.Bar{
		bar("A", 1, 10), bar("A", 2, 11), bar("A", 3, 12),
		bar("B", 2, 20),
	}, nil, nil)

	got, err := hub.Slice(SliceQuery{Start: day(2), End: day(3), Symbol: "A"})
	if err != nil {
		t.Fatalf("Slice returned error: %v", err)
	}
	if len(got) != 2 || got[0].Close != 11 || got[1].Close != 12 {
		t.Errorf("Slice = %v, want A bars for days 2-3", got)
	}

	// No bounds: the full table.
	all, err := hub.Slice(SliceQuery{})
	if err != nil {
		t.Fatalf("Slice returned error: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("unbounded Slice returned %d rows, want 4", len(all))
	}
}

func TestSliceInvalidRange(t *testing.T) {
	hub := NewHub([]domain.Bar{bar("A", 1, 10)}, nil, nil)
	_, err := hub.Slice(SliceQuery{Start: day(5), End: day(2)})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Slice error = %v, want ErrInvalidRange", err)
	}
}

func TestDuplicateRowsLastWins(t *testing.T) {
	hub := NewHub([]domain.Bar{bar("A", 2, 10), bar("A", 2, 99)}, nil, nil)
	got := hub.Snapshot(day(2))
	if len(got) != 1 {
		t.Fatalf("Snapshot returned %d rows, want 1 after dedupe", len(got))
	}
	if got[0].Close != 99 {
		t.Errorf("deduped close = %f, want the later row (99)", got[0].Close)
	}
}

func TestAuditMissingDates(t *testing.T) {
	hub := NewHub([]domain.Bar{
		bar("A", 1, 10), bar("A", 2, 11), bar("A", 3, 12),
		bar("B", 1, 20), bar("B", 3, 22),
	}, nil, nil)

	missing := hub.AuditMissingDates()
	if _, ok := missing["daily/A"]; ok {
		t.Error("symbol A reported missing dates, want none")
	}
	gaps, ok := missing["daily/B"]
	if !ok || len(gaps) != 1 || !gaps[0].Equal(day(2)) {
		t.Errorf("missing[daily/B] = %v, want [day 2]", gaps)
	}
}

func TestAuditMissingDatesKeepsBothDatasets(t *testing.T) {
	// "A" trades daily and doubles as a benchmark, with a different gap in
	// each dataset. Neither report may clobber the other.
	daily := []domain.Bar{
		bar("A", 1, 10), bar("A", 3, 12),
		bar("B", 1, 20), bar("B", 2, 21), bar("B", 3, 22),
	}
	bench := []domain.Bar{
		bar("A", 1, 100), bar("A", 2, 101),
		bar("IDX", 1, 300), bar("IDX", 2, 301), bar("IDX", 3, 302),
	}

	hub := NewHub(daily, bench, nil)
	missing := hub.AuditMissingDates()

	gaps, ok := missing["daily/A"]
	if !ok || len(gaps) != 1 || !gaps[0].Equal(day(2)) {
		t.Errorf("missing[daily/A] = %v, want [day 2]", gaps)
	}
	gaps, ok = missing["benchmark/A"]
	if !ok || len(gaps) != 1 || !gaps[0].Equal(day(3)) {
		t.Errorf("missing[benchmark/A] = %v, want [day 3]", gaps)
	}
}

func TestClosePriceLookup(t *testing.T) {
	hub := NewHub([]domain.Bar{bar("A", 2, 10.5)}, nil, nil)
	if p, ok := hub.ClosePrice(day(2), "A"); !ok || p != 10.5 {
		t.Errorf("ClosePrice = (%f, %v), want (10.5, true)", p, ok)
	}
	if _, ok := hub.ClosePrice(day(2), "Z"); ok {
		t.Error("ClosePrice for unknown symbol should report not found")
	}
}
