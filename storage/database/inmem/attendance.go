package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/darasahq/darasa/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Store = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// query returns the center's records ordered by date desc, created_at desc,
// matching the real store's range-query shape.
func (repo *attendanceRepository) query(centerID string) []attendance.Record {
	recs := make([]attendance.Record, 0, len(repo.db.attendance.rows))
	for _, rec := range repo.db.attendance.rows {
		if rec.CenterID == centerID {
			recs = append(recs, *rec)
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

func (repo *attendanceRepository) find(centerID string, key attendance.Key) *attendance.Record {
	for _, rec := range repo.db.attendance.rows {
		if rec.CenterID == centerID && rec.Key().Matches(key) {
			return rec
		}
	}
	return nil
}

func (repo *attendanceRepository) FindByKey(ctx context.Context, centerID string, key attendance.Key) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.takeFailure(); err != nil {
		return attendance.Record{}, err
	}
	if rec := repo.find(centerID, key); rec != nil {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) Insert(ctx context.Context, centerID string, rec attendance.Record) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.takeFailure(); err != nil {
		return attendance.Record{}, err
	}
	rec.CenterID = centerID
	rec.Date = attendance.DateOf(rec.Date)
	if repo.find(centerID, rec.Key()) != nil {
		return attendance.Record{}, attendance.ErrConflict
	}
	repo.db.attendance.rows = append(repo.db.attendance.rows, &rec)
	return rec, nil
}

func (repo *attendanceRepository) Update(ctx context.Context, centerID string, rec attendance.Record) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.takeFailure(); err != nil {
		return attendance.Record{}, err
	}
	for _, row := range repo.db.attendance.rows {
		if row.CenterID == centerID && row.ID == rec.ID {
			row.Status = rec.Status
			row.Notes = rec.Notes
			row.UpdatedAt = rec.UpdatedAt
			return *row, nil
		}
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) BulkUpsert(ctx context.Context, centerID string, recs []attendance.Record) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.takeFailure(); err != nil {
		return err
	}
	for _, rec := range recs {
		rec := rec
		rec.CenterID = centerID
		rec.Date = attendance.DateOf(rec.Date)
		if row := repo.find(centerID, rec.Key()); row != nil {
			// update on conflict, not skip
			row.Status = rec.Status
			row.Notes = rec.Notes
			row.UpdatedAt = rec.UpdatedAt
		} else {
			repo.db.attendance.rows = append(repo.db.attendance.rows, &rec)
		}
	}
	return nil
}

func (repo *attendanceRepository) QueryFiltered(ctx context.Context, centerID string, filter attendance.QueryFilter) ([]attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.takeFailure(); err != nil {
		return nil, err
	}
	out := make([]attendance.Record, 0)
	for _, rec := range repo.query(centerID) {
		if !filter.Date.IsZero() && !rec.Date.Equal(attendance.DateOf(filter.Date)) {
			continue
		}
		if filter.Date.IsZero() {
			if !filter.StartDate.IsZero() && rec.Date.Before(attendance.DateOf(filter.StartDate)) {
				continue
			}
			if !filter.EndDate.IsZero() && rec.Date.After(attendance.DateOf(filter.EndDate)) {
				continue
			}
		}
		if filter.StudentID != "" && rec.StudentID != filter.StudentID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (repo *attendanceRepository) QueryRange(ctx context.Context, centerID string, start, end time.Time, limit, offset int) ([]attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.takeFailure(); err != nil {
		return nil, err
	}
	matched := make([]attendance.Record, 0)
	for _, rec := range repo.query(centerID) {
		if rec.Date.Before(attendance.DateOf(start)) || rec.Date.After(attendance.DateOf(end)) {
			continue
		}
		matched = append(matched, rec)
	}
	if offset >= len(matched) {
		return []attendance.Record{}, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}
