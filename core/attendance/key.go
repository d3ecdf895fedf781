package attendance

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Key is the composite identity of a ledger entry:
// (student, date, subject?, faculty?).
//
// A missing subject or faculty is its own distinct bucket, not a wildcard: a
// student may have one unscoped record per day AND one record per
// (day, subject, faculty) combination, all coexisting independently.
type Key struct {
	StudentID string
	Date      time.Time
	SubjectID null.String
	FacultyID null.String
}

// Matches reports whether k and other denote the same ledger entry.
// This is the single definition of "absent" vs "present-but-different"
// semantics; all key comparisons must go through it.
func (k Key) Matches(other Key) bool {
	return k.StudentID == other.StudentID &&
		DateOf(k.Date).Equal(DateOf(other.Date)) &&
		nullStrEqual(k.SubjectID, other.SubjectID) &&
		nullStrEqual(k.FacultyID, other.FacultyID)
}

// nullStrEqual: both absent, or both present and equal.
func nullStrEqual(a, b null.String) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.String == b.String
}

// DateOf strips the time component, yielding the record's calendar day at
// midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
