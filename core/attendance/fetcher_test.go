package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// seedRange seeds n records on consecutive days counting back from end.
func seedRange(store *fakeStore, centerID string, end time.Time, n int) {
	for i := 0; i < n; i++ {
		store.seed(testRecord(centerID, "S1", end.AddDate(0, 0, -i), StatusPresent))
	}
}

func TestFetcherMultiPage(t *testing.T) {
	ctx := context.Background()
	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedRange(store, "C1", end, 5)
	f := historicalFetcher{store: store, pageSize: 2, cap: 100, retries: 1}

	recs, err := f.Fetch(ctx, "C1", end.AddDate(0, 0, -30), end)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("Fetch() returned %d records, want 5", len(recs))
	}
	if store.rangeCalls != 3 {
		t.Errorf("rangeCalls = %d, want 3 (pages of 2, 2, 1)", store.rangeCalls)
	}

	seen := make(map[string]bool)
	for i, rec := range recs {
		if seen[rec.ID] {
			t.Errorf("record %s appears twice", rec.ID)
		}
		seen[rec.ID] = true
		if i > 0 && recs[i-1].Date.Before(rec.Date) {
			t.Errorf("records out of order at %d: %v before %v", i, recs[i-1].Date, rec.Date)
		}
	}
}

func TestFetcherFullLastPage(t *testing.T) {
	// a final page exactly pageSize long needs one more empty page to stop
	ctx := context.Background()
	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedRange(store, "C1", end, 4)
	f := historicalFetcher{store: store, pageSize: 2, cap: 100, retries: 1}

	recs, err := f.Fetch(ctx, "C1", end.AddDate(0, 0, -30), end)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 4 {
		t.Errorf("Fetch() returned %d records, want 4", len(recs))
	}
	if store.rangeCalls != 3 {
		t.Errorf("rangeCalls = %d, want 3", store.rangeCalls)
	}
}

func TestFetcherCap(t *testing.T) {
	ctx := context.Background()
	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedRange(store, "C1", end, 5)
	f := historicalFetcher{store: store, pageSize: 2, cap: 3, retries: 1}

	recs, err := f.Fetch(ctx, "C1", end.AddDate(0, 0, -30), end)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("Fetch() returned %d records, want the cap of 3", len(recs))
	}
	if store.rangeCalls != 2 {
		t.Errorf("rangeCalls = %d, want 2 (scan stops once the cap is covered)", store.rangeCalls)
	}
}

func TestFetcherPageFailureAborts(t *testing.T) {
	ctx := context.Background()
	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedRange(store, "C1", end, 5)
	store.failRange = errors.New("connection reset")
	store.failRangeCount = 3
	f := historicalFetcher{store: store, pageSize: 2, cap: 100, retries: 3}

	recs, err := f.Fetch(ctx, "C1", end.AddDate(0, 0, -30), end)
	if !IsNetworkError(err) {
		t.Fatalf("Fetch() error = %v, want NetworkError", err)
	}
	if recs != nil {
		t.Errorf("Fetch() = %+v, want no partial result", recs)
	}
	if store.rangeCalls != 3 {
		t.Errorf("rangeCalls = %d, want 3 (retries exhausted)", store.rangeCalls)
	}
}

func TestFetcherRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedRange(store, "C1", end, 5)
	store.failRange = errors.New("connection reset")
	store.failRangeCount = 2
	f := historicalFetcher{store: store, pageSize: 2, cap: 100, retries: 3}

	recs, err := f.Fetch(ctx, "C1", end.AddDate(0, 0, -30), end)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 5 {
		t.Errorf("Fetch() returned %d records, want 5", len(recs))
	}
	// 2 failed attempts on the first page, then 3 clean pages
	if store.rangeCalls != 5 {
		t.Errorf("rangeCalls = %d, want 5", store.rangeCalls)
	}
}

func TestFetcherContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newFakeStore()
	store.failRange = errors.New("connection reset")
	store.failRangeCount = 1
	f := historicalFetcher{store: store, pageSize: 2, cap: 100, retries: 3}

	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := f.Fetch(ctx, "C1", end.AddDate(0, 0, -30), end)
	if errors.Cause(err) != context.Canceled {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestHistoricalThroughService(t *testing.T) {
	// Historical normalizes its bounds to calendar days and bypasses the cache
	ctx := context.Background()
	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedRange(store, "C1", end, 10)

	conf := newTestConfig()
	conf.Attendance.PageSize = 4
	conf.Attendance.HistoricalCap = 100
	conf.Attendance.ReadRetries = 1
	svc := NewService(conf, store, nil, nil)

	start := end.AddDate(0, 0, -4).Add(15 * time.Hour) // mid-day timestamp
	recs, err := svc.Historical(ctx, "C1", start, end.Add(23*time.Hour))
	if err != nil {
		t.Fatalf("Historical() error = %v", err)
	}
	if len(recs) != 5 {
		t.Errorf("Historical() returned %d records, want 5", len(recs))
	}
	if store.queryCalls != 0 {
		t.Errorf("queryCalls = %d, want 0 (historical reads bypass the cache path)", store.queryCalls)
	}
}
