package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core"
)

// Statuses
const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

type Status string

func (s Status) IsValid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

const statusMinSim = 0.65

// closestStatus finds the known status most similar to s, for "did you mean"
// hints on misspelled input.
func closestStatus(s string) (Status, bool) {
	var match Status
	var best float64
	ls := strings.Split(strings.ToLower(s), "")
	for _, known := range Statuses {
		ratio := difflib.NewMatcher(ls, strings.Split(string(known), "")).QuickRatio()
		if ratio > best {
			best, match = ratio, known
		}
	}
	return match, best >= statusMinSim
}

// Record is one entry of a student's status for a calendar day, optionally
// scoped to a subject and/or faculty session. The backing store is the single
// source of truth; cached copies may be stale.
type Record struct {
	ID        string      `json:"id"`
	CenterID  string      `json:"center_id"`
	StudentID string      `json:"student_id"`
	Date      time.Time   `json:"date"` // midnight UTC
	Status    Status      `json:"status"`
	Notes     string      `json:"notes,omitempty"`
	SubjectID null.String `json:"subject_id,omitempty"`
	FacultyID null.String `json:"faculty_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at"` // UTC
}

func (r Record) Key() Key {
	return Key{
		StudentID: r.StudentID,
		Date:      DateOf(r.Date),
		SubjectID: r.SubjectID,
		FacultyID: r.FacultyID,
	}
}

// MarkInput contains information needed to mark a student's attendance.
type MarkInput struct {
	StudentID string      `json:"student_id" validate:"required"`
	Date      time.Time   `json:"date" validate:"required"`
	Status    Status      `json:"status" validate:"required,oneof=present absent late excused"`
	Notes     string      `json:"notes"`
	SubjectID null.String `json:"subject_id" validate:"-"`
	FacultyID null.String `json:"faculty_id" validate:"-"`
}

func (in *MarkInput) Validate() error {
	in.StudentID = core.CleanString(in.StudentID)
	in.Notes = core.CleanString(in.Notes)
	in.Date = DateOf(in.Date)

	if in.Status != "" && !in.Status.IsValid() {
		msg := "must be one of present, absent, late, excused"
		if match, ok := closestStatus(string(in.Status)); ok {
			msg = fmt.Sprintf("unknown status; did you mean %q?", match)
		}
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: msg})
	}
	if in.SubjectID.Valid && core.CleanString(in.SubjectID.String) == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "subject_id", Error: "must not be blank when set"})
	}
	if in.FacultyID.Valid && core.CleanString(in.FacultyID.String) == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "faculty_id", Error: "must not be blank when set"})
	}
	return core.Validate.Struct(in)
}

func (in MarkInput) Key() Key {
	return Key{
		StudentID: in.StudentID,
		Date:      DateOf(in.Date),
		SubjectID: in.SubjectID,
		FacultyID: in.FacultyID,
	}
}

// QueryFilter applies AND operation on available fields.
// Date and the StartDate/EndDate pair are mutually exclusive.
type QueryFilter struct {
	Date      time.Time `query:"date"`
	StartDate time.Time `query:"start_date"`
	EndDate   time.Time `query:"end_date"`
	StudentID string    `query:"student_id"`
}

func (f QueryFilter) Equal(other QueryFilter) bool {
	return f.Date.Equal(other.Date) &&
		f.StartDate.Equal(other.StartDate) &&
		f.EndDate.Equal(other.EndDate) &&
		f.StudentID == other.StudentID
}
