package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pkg/errors"

	. "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core/attendance"
)

func strPtr(s string) *string { return &s }

func markBody(t *testing.T, studentID, date, status string) []byte {
	return marchallObj(t, MarkRequest{StudentID: studentID, Date: date, Status: status})
}

func getRecords(t *testing.T, app Server, token, path string) []attendance.Record {
	req, rec := newAuthRequest(http.MethodGet, path, token)
	app.ServeHTTP(rec, req)
	checkCode(t, http.StatusOK, rec)

	var recs []attendance.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
		t.Fatalf("getRecords(): %v; body %v", err, rec.Body.String())
	}
	return recs
}

func Test_attendanceApi_auth(t *testing.T) {
	app, _ := setup(t)

	noCenterToken := getToken(t, "")
	body := markBody(t, "S1", "2024-03-04", "present")

	tests := []httpTest{
		{name: "query: token required", method: http.MethodGet, path: "/v1/attendance",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "mark: token required", method: http.MethodPost, path: "/v1/attendance", body: body,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "bulk: token required", method: http.MethodPost, path: "/v1/attendance/bulk",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "historical: token required", method: http.MethodGet, path: "/v1/attendance/historical",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("center claim required", func(t *testing.T) {
		tt := httpTest{method: http.MethodPost, path: "/v1/attendance", body: body, token: noCenterToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
		req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("invalid token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/attendance", "not-a-jwt")
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusUnauthorized, rec)
	})
}

func Test_attendanceApi_mark(t *testing.T) {
	app, _ := setup(t)
	token := getToken(t, "C1")

	req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", token, markBody(t, "S1", "2024-03-04", "present"))
	app.ServeHTTP(rec, req)
	checkCode(t, http.StatusOK, rec)

	var created attendance.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v; body %v", err, rec.Body.String())
	}
	if created.ID == "" || created.CenterID != "C1" || created.StudentID != "S1" || created.Status != attendance.StatusPresent {
		t.Errorf("mark response = %+v, want a C1/S1/present record with an id", created)
	}
	if got := created.Date.Format("2006-01-02"); got != "2024-03-04" {
		t.Errorf("mark date = %v, want 2024-03-04", got)
	}

	// re-marking the same identity updates the existing row
	req, rec = newAuthRequest(http.MethodPost, "/v1/attendance", token, markBody(t, "S1", "2024-03-04", "late"))
	app.ServeHTTP(rec, req)
	checkCode(t, http.StatusOK, rec)

	var updated attendance.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v; body %v", err, rec.Body.String())
	}
	if updated.ID != created.ID {
		t.Errorf("re-mark id = %v, want %v (update, not insert)", updated.ID, created.ID)
	}
	if updated.Status != attendance.StatusLate {
		t.Errorf("re-mark status = %v, want late", updated.Status)
	}

	if recs := getRecords(t, app, token, "/v1/attendance"); len(recs) != 1 {
		t.Errorf("record count = %d, want 1", len(recs))
	}
}

func Test_attendanceApi_markScoped(t *testing.T) {
	app, _ := setup(t)
	token := getToken(t, "C1")

	unscoped := marchallObj(t, MarkRequest{StudentID: "S1", Date: "2024-03-04", Status: "present"})
	scoped := marchallObj(t, MarkRequest{StudentID: "S1", Date: "2024-03-04", Status: "late", SubjectID: strPtr("MATH101")})

	for _, body := range [][]byte{unscoped, scoped} {
		req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", token, body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)
	}

	// same student and day, but distinct identities
	if recs := getRecords(t, app, token, "/v1/attendance"); len(recs) != 2 {
		t.Errorf("record count = %d, want 2", len(recs))
	}
}

func Test_attendanceApi_markValidation(t *testing.T) {
	app, _ := setup(t)
	token := getToken(t, "C1")

	tests := []struct {
		name      string
		body      MarkRequest
		wantField string
	}{
		{"missing student", MarkRequest{Date: "2024-03-04", Status: "present"}, "student_id"},
		{"missing date", MarkRequest{StudentID: "S1", Status: "present"}, "date"},
		{"bad date", MarkRequest{StudentID: "S1", Date: "04/03/2024", Status: "present"}, "date"},
		{"bad status", MarkRequest{StudentID: "S1", Date: "2024-03-04", Status: "sleeping"}, "status"},
		{"bad student id", MarkRequest{StudentID: "S-1!", Date: "2024-03-04", Status: "present"}, "student_id"},
		{"blank subject", MarkRequest{StudentID: "S1", Date: "2024-03-04", Status: "present", SubjectID: strPtr("  ")}, "subject_id"},
		{"blank faculty", MarkRequest{StudentID: "S1", Date: "2024-03-04", Status: "present", FacultyID: strPtr("")}, "faculty_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", token, marchallObj(t, tt.body))
			app.ServeHTTP(rec, req)
			checkCode(t, http.StatusBadRequest, rec)
			if fldErrs := decodeFieldErrors(t, rec); fldErrs[tt.wantField] == "" {
				t.Errorf("field errors = %v, want an error on %q", fldErrs, tt.wantField)
			}
		})
	}

	// nothing persisted
	if recs := getRecords(t, app, token, "/v1/attendance"); len(recs) != 0 {
		t.Errorf("record count = %d, want 0", len(recs))
	}
}

func Test_attendanceApi_bulkMark(t *testing.T) {
	app, _ := setup(t)
	token := getToken(t, "C1")

	body := marchallObj(t, BulkMarkRequest{Records: []MarkRequest{
		{StudentID: "S1", Date: "2024-03-04", Status: "present"},
		{StudentID: "S2", Date: "2024-03-04", Status: "absent"},
		{StudentID: "S3", Date: "2024-03-04", Status: "excused"},
	}})
	req, rec := newAuthRequest(http.MethodPost, "/v1/attendance/bulk", token, body)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, SuccessResponse{Success: "attendance records saved"}),
	}, rec)

	if recs := getRecords(t, app, token, "/v1/attendance"); len(recs) != 3 {
		t.Errorf("record count = %d, want 3", len(recs))
	}

	t.Run("empty batch", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/attendance/bulk", token, marchallObj(t, BulkMarkRequest{}))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
		if fldErrs := decodeFieldErrors(t, rec); fldErrs["records"] == "" {
			t.Errorf("field errors = %v, want an error on records", fldErrs)
		}
	})
}

func Test_attendanceApi_query(t *testing.T) {
	app, _ := setup(t)
	token := getToken(t, "C1")

	for _, body := range [][]byte{
		markBody(t, "S1", "2024-03-04", "present"),
		markBody(t, "S2", "2024-03-04", "absent"),
		markBody(t, "S1", "2024-03-05", "late"),
	} {
		req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", token, body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)
	}

	if recs := getRecords(t, app, token, "/v1/attendance"); len(recs) != 3 {
		t.Errorf("record count = %d, want 3", len(recs))
	}

	recs := getRecords(t, app, token, "/v1/attendance?student_id=S1")
	if len(recs) != 2 {
		t.Fatalf("filtered count = %d, want 2", len(recs))
	}
	for _, r := range recs {
		if r.StudentID != "S1" {
			t.Errorf("filtered record student = %v, want S1", r.StudentID)
		}
	}

	recs = getRecords(t, app, token, "/v1/attendance?date=2024-03-04")
	if len(recs) != 2 {
		t.Errorf("date-filtered count = %d, want 2", len(recs))
	}

	t.Run("bad date", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/attendance?date=yesterday", token)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})
}

func Test_attendanceApi_centerIsolation(t *testing.T) {
	app, _ := setup(t)
	c1Token := getToken(t, "C1")
	c2Token := getToken(t, "C2")

	req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", c1Token, markBody(t, "S1", "2024-03-04", "present"))
	app.ServeHTTP(rec, req)
	checkCode(t, http.StatusOK, rec)

	if recs := getRecords(t, app, c2Token, "/v1/attendance"); len(recs) != 0 {
		t.Errorf("C2 sees %d of C1's records, want 0", len(recs))
	}
	if recs := getRecords(t, app, c1Token, "/v1/attendance"); len(recs) != 1 {
		t.Errorf("C1 record count = %d, want 1", len(recs))
	}
}

func Test_attendanceApi_refresh(t *testing.T) {
	app, _ := setup(t)
	token := getToken(t, "C1")

	req, rec := newAuthRequest(http.MethodPost, "/v1/attendance/refresh", token)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, SuccessResponse{Success: "refresh scheduled"}),
	}, rec)
}

func Test_attendanceApi_historical(t *testing.T) {
	app, _ := setup(t)
	token := getToken(t, "C1")

	for _, date := range []string{"2024-03-01", "2024-03-04", "2024-03-08"} {
		req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", token, markBody(t, "S1", date, "present"))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)
	}

	recs := getRecords(t, app, token, "/v1/attendance/historical?start_date=2024-03-01&end_date=2024-03-05")
	if len(recs) != 2 {
		t.Errorf("historical count = %d, want 2", len(recs))
	}

	t.Run("range required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/attendance/historical?end_date=2024-03-05", token)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
		if fldErrs := decodeFieldErrors(t, rec); fldErrs["start_date"] == "" {
			t.Errorf("field errors = %v, want an error on start_date", fldErrs)
		}
	})

	t.Run("inverted range", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/attendance/historical?start_date=2024-03-05&end_date=2024-03-01", token)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})
}

func Test_attendanceApi_storeFailure(t *testing.T) {
	app, db := setup(t)
	token := getToken(t, "C1")

	db.FailNext(errors.New("connection reset"))
	req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", token, markBody(t, "S1", "2024-03-04", "present"))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadGateway,
		wantData: marchallObj(t, httpErr{Error: "the record could not be saved; please retry"}),
	}, rec)

	// the failed write was rolled back; a retry succeeds
	req, rec = newAuthRequest(http.MethodPost, "/v1/attendance", token, markBody(t, "S1", "2024-03-04", "present"))
	app.ServeHTTP(rec, req)
	checkCode(t, http.StatusOK, rec)

	if recs := getRecords(t, app, token, "/v1/attendance"); len(recs) != 1 {
		t.Errorf("record count = %d, want 1", len(recs))
	}
}
