package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
)

// fakeStore is an in-memory Store with injectable failures and call counts,
// used by the engine tests. The real store implementations live in
// storage/database.
type fakeStore struct {
	mu   sync.Mutex
	rows []Record

	findCalls   int
	insertCalls int
	updateCalls int
	bulkCalls   int
	queryCalls  int
	rangeCalls  int

	failFind   error
	failInsert error
	failUpdate error
	failBulk   error
	failQuery  error
	// failRange returns an error for the first n QueryRange calls when n > 0.
	failRange      error
	failRangeCount int

	// hooks, run outside the store lock
	onFind  func()
	onQuery func()
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore { return &fakeStore{} }

func (s *fakeStore) seed(recs ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, recs...)
}

func (s *fakeStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeStore) sorted(centerID string) []Record {
	recs := make([]Record, 0, len(s.rows))
	for _, rec := range s.rows {
		if rec.CenterID == centerID {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.After(recs[j].Date)
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	return recs
}

func (s *fakeStore) FindByKey(ctx context.Context, centerID string, key Key) (Record, error) {
	if s.onFind != nil {
		s.onFind()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.failFind != nil {
		return Record{}, s.failFind
	}
	for _, rec := range s.rows {
		if rec.CenterID == centerID && rec.Key().Matches(key) {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *fakeStore) Insert(ctx context.Context, centerID string, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if s.failInsert != nil {
		return Record{}, s.failInsert
	}
	rec.CenterID = centerID
	s.rows = append(s.rows, rec)
	return rec, nil
}

func (s *fakeStore) Update(ctx context.Context, centerID string, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.failUpdate != nil {
		return Record{}, s.failUpdate
	}
	for i := range s.rows {
		if s.rows[i].CenterID == centerID && s.rows[i].ID == rec.ID {
			s.rows[i].Status = rec.Status
			s.rows[i].Notes = rec.Notes
			s.rows[i].UpdatedAt = rec.UpdatedAt
			return s.rows[i], nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *fakeStore) BulkUpsert(ctx context.Context, centerID string, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkCalls++
	if s.failBulk != nil {
		return s.failBulk
	}
	for _, rec := range recs {
		rec.CenterID = centerID
		replaced := false
		for i := range s.rows {
			if s.rows[i].CenterID == centerID && s.rows[i].Key().Matches(rec.Key()) {
				s.rows[i].Status = rec.Status
				s.rows[i].Notes = rec.Notes
				s.rows[i].UpdatedAt = rec.UpdatedAt
				replaced = true
				break
			}
		}
		if !replaced {
			s.rows = append(s.rows, rec)
		}
	}
	return nil
}

func (s *fakeStore) QueryFiltered(ctx context.Context, centerID string, filter QueryFilter) ([]Record, error) {
	if s.onQuery != nil {
		s.onQuery()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	if s.failQuery != nil {
		return nil, s.failQuery
	}
	out := make([]Record, 0)
	for _, rec := range s.sorted(centerID) {
		if !filter.Date.IsZero() && !rec.Date.Equal(DateOf(filter.Date)) {
			continue
		}
		if filter.StudentID != "" && rec.StudentID != filter.StudentID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) QueryRange(ctx context.Context, centerID string, start, end time.Time, limit, offset int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangeCalls++
	if s.failRangeCount > 0 {
		s.failRangeCount--
		return nil, s.failRange
	}
	matched := make([]Record, 0)
	for _, rec := range s.sorted(centerID) {
		if rec.Date.Before(start) || rec.Date.After(end) {
			continue
		}
		matched = append(matched, rec)
	}
	if offset >= len(matched) {
		return []Record{}, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// mailRecorder captures messages synchronously.
type mailRecorder struct {
	mu       sync.Mutex
	messages []core.EmailMessage
}

var _ core.EmailService = (*mailRecorder)(nil)

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		m.messages = append(m.messages, *msg)
	}
}

func newTestConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Debug = false
	return conf
}

func newTestService(store Store) *Service {
	return NewService(newTestConfig(), store, nil, nil)
}

func testRecord(centerID, studentID string, date time.Time, status Status) Record {
	now := time.Now().UTC()
	return Record{
		ID:        uuid.New().String(),
		CenterID:  centerID,
		StudentID: studentID,
		Date:      DateOf(date),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
