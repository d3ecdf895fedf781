package attendance

import (
	"strings"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core"
)

func TestMarkInputValidate(t *testing.T) {
	day := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

	t.Run("normalizes input", func(t *testing.T) {
		in := MarkInput{
			StudentID: "  S1  ",
			Date:      day,
			Status:    StatusPresent,
			Notes:     " came in late ",
		}
		if err := in.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if in.StudentID != "S1" {
			t.Errorf("student id = %q, want trimmed", in.StudentID)
		}
		if in.Notes != "came in late" {
			t.Errorf("notes = %q, want trimmed", in.Notes)
		}
		if !in.Date.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("date = %v, want midnight UTC", in.Date)
		}
	})

	t.Run("blank scoped fields rejected", func(t *testing.T) {
		for _, field := range []string{"subject_id", "faculty_id"} {
			in := MarkInput{StudentID: "S1", Date: day, Status: StatusPresent}
			if field == "subject_id" {
				in.SubjectID = null.StringFrom("   ")
			} else {
				in.FacultyID = null.StringFrom("")
			}
			err := in.Validate()
			vErr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if vErr.Fields[0].Field != field {
				t.Errorf("field = %q, want %q", vErr.Fields[0].Field, field)
			}
		}
	})

	t.Run("absent scoped fields accepted", func(t *testing.T) {
		in := MarkInput{StudentID: "S1", Date: day, Status: StatusPresent}
		if err := in.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}

func TestMarkInputValidateStatusSuggestion(t *testing.T) {
	tests := []struct {
		status   string
		wantHint string
	}{
		{"presnt", "present"},
		{"absnet", "absent"},
		{"latee", "late"},
		{"zzzz", ""}, // nothing close enough
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			in := MarkInput{StudentID: "S1", Date: time.Now(), Status: Status(tt.status)}
			err := in.Validate()
			vErr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			msg := vErr.Fields[0].Error
			if tt.wantHint == "" {
				if strings.Contains(msg, "did you mean") {
					t.Errorf("error = %q, want no suggestion", msg)
				}
				return
			}
			if !strings.Contains(msg, tt.wantHint) {
				t.Errorf("error = %q, want a %q suggestion", msg, tt.wantHint)
			}
		})
	}
}
