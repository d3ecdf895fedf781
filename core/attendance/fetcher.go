package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// historicalFetcher walks a date range page by page until the store runs out
// of rows or the hard cap is reached. Pages are requested and appended in the
// store's order (date desc, created_at desc); nothing is re-sorted here.
//
// Pagination is offset-based: concurrent writes during a long scan can skip
// or double-count a row across page boundaries. That weak guarantee is
// inherited from the store's query shape.
type historicalFetcher struct {
	store    Store
	pageSize int
	cap      int
	retries  int
}

// Fetch aborts on any page failure and returns no partial result: a
// truncated report is worse than none.
func (f historicalFetcher) Fetch(ctx context.Context, centerID string, start, end time.Time) ([]Record, error) {
	out := make([]Record, 0, f.pageSize)
	for offset := 0; len(out) < f.cap; offset += f.pageSize {
		page, err := f.fetchPage(ctx, centerID, start, end, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < f.pageSize { // no more data
			break
		}
	}
	if len(out) > f.cap {
		out = out[:f.cap]
	}
	return out, nil
}

// fetchPage retries an idempotent page read a bounded number of times,
// waiting 100ms longer before each new attempt. Writes are never retried;
// page reads are safe to.
func (f historicalFetcher) fetchPage(ctx context.Context, centerID string, start, end time.Time, offset int) ([]Record, error) {
	var page []Record
	var err error
	for attempt := 1; attempt <= f.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * 100 * time.Millisecond):
			}
		}
		page, err = f.store.QueryRange(ctx, centerID, start, end, f.pageSize, offset)
		if err == nil {
			return page, nil
		}
	}
	return nil, &NetworkError{Op: "fetching historical page", Err: errors.Wrapf(err, "offset %d", offset)}
}
