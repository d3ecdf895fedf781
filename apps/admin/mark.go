package main

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/attendance"
)

// mark back-fills a single attendance record through the sync engine so the
// same update-vs-insert identity rule applies as for API writes.
func (cli *commandLine) mark(center, student, date, status, subject, faculty, notes string) error {
	day, err := time.Parse(core.DateLayout, date)
	if err != nil {
		return err
	}

	svc := attendance.NewService(core.Conf, cli.attRepo, nil, nil)
	rec, err := svc.Mark(context.Background(), center, attendance.MarkInput{
		StudentID: student,
		Date:      day,
		Status:    attendance.Status(status),
		Notes:     notes,
		SubjectID: null.NewString(subject, subject != ""),
		FacultyID: null.NewString(faculty, faculty != ""),
	})
	if err != nil {
		return err
	}

	logger.Printf("marked student %s %s on %s (record %s)", rec.StudentID, rec.Status, date, rec.ID)
	return nil
}
