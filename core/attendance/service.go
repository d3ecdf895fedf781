package attendance

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

var (
	// errors
	ErrNotFound      = errors.New("attendance record not found")
	ErrConflict      = errors.New("attendance record was rejected by a uniqueness conflict")
	ErrRangeRequired = errors.New("a fully-bound date range is required")
)

// NetworkError reports a transport or backend failure during a store call.
// The cache has already been rolled back to its pre-call state when a write
// surfaces one of these.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return e.Op + ": network error"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func IsNetworkError(err error) bool {
	_, ok := errors.Cause(err).(*NetworkError)
	return ok
}

type (
	// Store is the persistence contract the sync engine requires. The store
	// is the single source of truth; it is shared across centers but only
	// ever accessed with an explicit center id, never ambient state.
	Store interface {
		// FindByKey resolves the composite identity with null-vs-value filter
		// semantics; returns ErrNotFound when no row matches.
		FindByKey(ctx context.Context, centerID string, key Key) (Record, error)
		Insert(ctx context.Context, centerID string, rec Record) (Record, error)
		// Update mutates status, notes and updated_at of the row with rec.ID.
		Update(ctx context.Context, centerID string, rec Record) (Record, error)
		// BulkUpsert writes all records in one call with the composite tuple
		// as the explicit conflict target, updating (not skipping) on
		// conflict. It is not guaranteed atomic across rows.
		BulkUpsert(ctx context.Context, centerID string, recs []Record) error
		// QueryFiltered applies AND operation on available QueryFilter fields,
		// ordered by date desc, created_at desc.
		QueryFiltered(ctx context.Context, centerID string, filter QueryFilter) ([]Record, error)
		// QueryRange returns one page of the date range, ordered by
		// date desc, created_at desc.
		QueryRange(ctx context.Context, centerID string, start, end time.Time, limit, offset int) ([]Record, error)
	}

	// Service is the attendance sync engine: the public write API with
	// optimistic semantics over a per-center cache, backed by Store.
	Service struct {
		store   Store
		logger  core.Logger
		mailSvc core.EmailService
		conf    *core.Config
		fetcher historicalFetcher

		mu     sync.Mutex
		scopes map[string]*scope // by center id
	}

	// scope is the cached working set for one center's active query window,
	// with its staleness flag and latest-request marker.
	scope struct {
		mu        sync.Mutex
		cache     *Cache
		filter    QueryFilter
		primed    bool // a fetch has populated the cache for filter
		stale     bool
		latestReq uint64
	}
)

func NewService(conf *core.Config, store Store, logger core.Logger, mailSvc core.EmailService) *Service {
	return &Service{
		store:   store,
		logger:  logger,
		mailSvc: mailSvc,
		conf:    conf,
		fetcher: historicalFetcher{
			store:    store,
			pageSize: conf.Attendance.PageSize,
			cap:      conf.Attendance.HistoricalCap,
			retries:  conf.Attendance.ReadRetries,
		},
		scopes: make(map[string]*scope),
	}
}

func (svc *Service) scopeFor(centerID string) *scope {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	sc, ok := svc.scopes[centerID]
	if !ok {
		sc = &scope{cache: NewCache()}
		svc.scopes[centerID] = sc
	}
	return sc
}

// Mark applies the record to the cache immediately, then reconciles with the
// store: an existing row for the same identity is updated, otherwise a new
// row is inserted. Any store failure rolls the cache back to its exact
// pre-call state before the error is surfaced; a failed mark is never
// retried. On success the scope is flagged stale without refetching.
func (svc *Service) Mark(ctx context.Context, centerID string, in MarkInput) (Record, error) {
	// validation failures never reach the cache
	if err := in.Validate(); err != nil {
		return Record{}, err
	}

	now := time.Now().UTC()
	rec := Record{
		ID:        uuid.New().String(), // placeholder until the store round-trip completes
		CenterID:  centerID,
		StudentID: in.StudentID,
		Date:      in.Date,
		Status:    in.Status,
		Notes:     in.Notes,
		SubjectID: in.SubjectID,
		FacultyID: in.FacultyID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	sc := svc.scopeFor(centerID)
	sc.mu.Lock()
	snap := sc.cache.Snapshot()
	sc.cache.UpsertLocal(rec)
	sc.mu.Unlock()

	fail := func(op string, err error) (Record, error) {
		sc.mu.Lock()
		sc.cache.Restore(snap)
		sc.mu.Unlock()
		svc.warn("attendance mark rolled back", err)
		if errors.Cause(err) == ErrConflict {
			return Record{}, err
		}
		return Record{}, &NetworkError{Op: op, Err: err}
	}

	existing, err := svc.store.FindByKey(ctx, centerID, rec.Key())
	switch {
	case err == nil:
		existing.Status = in.Status
		existing.Notes = in.Notes
		existing.UpdatedAt = now
		if _, err = svc.store.Update(ctx, centerID, existing); err != nil {
			return fail("updating attendance record", err)
		}
		rec = existing
	case errors.Cause(err) == ErrNotFound:
		if rec, err = svc.store.Insert(ctx, centerID, rec); err != nil {
			return fail("inserting attendance record", err)
		}
	default:
		return fail("finding attendance record", err)
	}

	sc.mu.Lock()
	sc.cache.Release(snap)
	sc.stale = true // lazy invalidation: reconcile on the next fresh read
	sc.mu.Unlock()

	svc.notifyAbsence(rec)
	return rec, nil
}

// BulkMark marks all records in one store round-trip. The cache is
// snapshotted once for the whole batch and rolled back all-or-nothing on
// failure. The store's bulk upsert may not be atomic across rows: a partially
// applied server write can transiently disagree with the fully rolled-back
// cache until the next refetch.
func (svc *Service) BulkMark(ctx context.Context, centerID string, ins []MarkInput) error {
	for i := range ins {
		if err := ins[i].Validate(); err != nil {
			return errors.Wrapf(err, "record %d", i)
		}
	}

	now := time.Now().UTC()
	recs := make([]Record, 0, len(ins))
	for _, in := range ins {
		recs = append(recs, Record{
			ID:        uuid.New().String(),
			CenterID:  centerID,
			StudentID: in.StudentID,
			Date:      in.Date,
			Status:    in.Status,
			Notes:     in.Notes,
			SubjectID: in.SubjectID,
			FacultyID: in.FacultyID,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	sc := svc.scopeFor(centerID)
	sc.mu.Lock()
	snap := sc.cache.Snapshot()
	for _, rec := range recs {
		sc.cache.UpsertLocal(rec)
	}
	sc.mu.Unlock()

	if err := svc.store.BulkUpsert(ctx, centerID, recs); err != nil {
		sc.mu.Lock()
		sc.cache.Restore(snap)
		sc.mu.Unlock()
		svc.warn("attendance batch rolled back", err)
		if errors.Cause(err) == ErrConflict {
			return err
		}
		return &NetworkError{Op: "bulk upserting attendance records", Err: err}
	}

	sc.mu.Lock()
	sc.cache.Release(snap)
	sc.stale = true
	sc.mu.Unlock()

	for _, rec := range recs {
		svc.notifyAbsence(rec)
	}
	return nil
}

// Query serves the center's cached working set when it is fresh for filter;
// otherwise it fetches from the store. A response that is no longer the
// latest request for the scope is returned to its caller but never installed
// over newer cache contents.
func (svc *Service) Query(ctx context.Context, centerID string, filter QueryFilter) ([]Record, error) {
	sc := svc.scopeFor(centerID)

	sc.mu.Lock()
	if sc.primed && !sc.stale && sc.filter.Equal(filter) {
		recs := sc.cache.All()
		sc.mu.Unlock()
		return recs, nil
	}
	sc.latestReq++
	reqID := sc.latestReq
	sc.mu.Unlock()

	recs, err := svc.store.QueryFiltered(ctx, centerID, filter)
	if err != nil {
		return nil, &NetworkError{Op: "querying attendance records", Err: err}
	}

	sc.mu.Lock()
	if reqID == sc.latestReq {
		sc.cache.ReplaceAll(recs)
		sc.filter = filter
		sc.primed = true
		sc.stale = false
	}
	sc.mu.Unlock()
	return recs, nil
}

// Refresh forces the next Query for the center's current filter to hit the
// store. It does not fetch anything itself.
func (svc *Service) Refresh(centerID string) {
	sc := svc.scopeFor(centerID)
	sc.mu.Lock()
	sc.stale = true
	sc.mu.Unlock()
}

// Historical retrieves the complete result set for a bounded date range,
// talking directly to the store (the cache is bypassed entirely). The result
// never exceeds the configured cap.
func (svc *Service) Historical(ctx context.Context, centerID string, start, end time.Time) ([]Record, error) {
	start, end = DateOf(start), DateOf(end)
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, core.NewValidationError(ErrRangeRequired,
			core.FieldError{Field: "start_date", Error: ErrRangeRequired.Error()},
			core.FieldError{Field: "end_date", Error: ErrRangeRequired.Error()},
		)
	}
	return svc.fetcher.Fetch(ctx, centerID, start, end)
}

// absenceNoticeData feeds the absence_notice email templates.
type absenceNoticeData struct {
	StudentID string
	Date      string
	Notes     string
}

func (svc *Service) notifyAbsence(rec Record) {
	if svc.mailSvc == nil || rec.Status != StatusAbsent || svc.conf.Attendance.NoticeEmail == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: svc.conf.Attendance.NoticeEmail}},
		Subject:      fmt.Sprintf("[%s] Absence notice", svc.conf.AppName),
		TemplateName: "absence_notice",
		TemplateData: absenceNoticeData{
			StudentID: rec.StudentID,
			Date:      rec.Date.Format(core.DateLayout),
			Notes:     rec.Notes,
		},
	})
}

func (svc *Service) warn(msg string, err error) {
	if svc.logger != nil {
		svc.logger.Warn(msg, err)
	}
}
