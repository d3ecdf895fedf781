package echoapi

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/attendance"
)

type SuccessResponse struct {
	Success string `json:"success"`
}

// MarkRequest carries one attendance mark. Dates are YYYY-MM-DD; a missing
// subject_id/faculty_id means "not scoped", which is an identity of its own.
type MarkRequest struct {
	StudentID string  `json:"student_id" validate:"required,alphanum_"`
	Date      string  `json:"date" validate:"required,dateonly"`
	Status    string  `json:"status" validate:"required,oneof=present absent late excused"`
	Notes     string  `json:"notes"`
	SubjectID *string `json:"subject_id"`
	FacultyID *string `json:"faculty_id"`
}

func (r *MarkRequest) Validate() (attendance.MarkInput, error) {
	if err := core.Validate.Struct(r); err != nil {
		return attendance.MarkInput{}, err
	}
	return r.input(), nil
}

func (r *MarkRequest) input() attendance.MarkInput {
	date, _ := time.Parse(core.DateLayout, r.Date)
	return attendance.MarkInput{
		StudentID: r.StudentID,
		Date:      date,
		Status:    attendance.Status(r.Status),
		Notes:     r.Notes,
		SubjectID: null.StringFromPtr(r.SubjectID),
		FacultyID: null.StringFromPtr(r.FacultyID),
	}
}

type BulkMarkRequest struct {
	Records []MarkRequest `json:"records" validate:"required,min=1,dive"`
}

func (r *BulkMarkRequest) Validate() ([]attendance.MarkInput, error) {
	if err := core.Validate.Struct(r); err != nil {
		return nil, err
	}
	ins := make([]attendance.MarkInput, 0, len(r.Records))
	for i := range r.Records {
		ins = append(ins, r.Records[i].input())
	}
	return ins, nil
}

type QueryRequest struct {
	Date      string `query:"date" validate:"omitempty,dateonly"`
	StartDate string `query:"start_date" validate:"omitempty,dateonly"`
	EndDate   string `query:"end_date" validate:"omitempty,dateonly"`
	StudentID string `query:"student_id" validate:"omitempty,alphanum_"`
}

func (r *QueryRequest) Validate() (attendance.QueryFilter, error) {
	if err := core.Validate.Struct(r); err != nil {
		return attendance.QueryFilter{}, err
	}
	parse := func(s string) time.Time {
		if s == "" {
			return time.Time{}
		}
		t, _ := time.Parse(core.DateLayout, s)
		return t
	}
	return attendance.QueryFilter{
		Date:      parse(r.Date),
		StartDate: parse(r.StartDate),
		EndDate:   parse(r.EndDate),
		StudentID: core.CleanString(r.StudentID),
	}, nil
}

// HistoricalRequest requires a fully-bound range; open-ended "all time"
// scans are not served.
type HistoricalRequest struct {
	StartDate string `query:"start_date" validate:"required,dateonly"`
	EndDate   string `query:"end_date" validate:"required,dateonly"`
}

func (r *HistoricalRequest) Validate() (start, end time.Time, err error) {
	if err = core.Validate.Struct(r); err != nil {
		return start, end, err
	}
	start, _ = time.Parse(core.DateLayout, r.StartDate)
	end, _ = time.Parse(core.DateLayout, r.EndDate)
	return start, end, nil
}
