package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/darasahq/darasa/core/attendance"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db      *sql.DB
	attRepo attendance.Store
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createdb - create the database if it does not exist")
	fmt.Println("  migrate [COMMAND] - run database migrations (up by default)")
	fmt.Println("  mark -center CENTER -student STUDENT -date YYYY-MM-DD -status STATUS [-subject SUBJECT] [-faculty FACULTY] [-notes NOTES] - back-fill one attendance mark")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	markCmd := flag.NewFlagSet("mark", flag.ExitOnError)
	markCenter := markCmd.String("center", "", "The tuition center id.")
	markStudent := markCmd.String("student", "", "The student id.")
	markDate := markCmd.String("date", "", "The calendar day, YYYY-MM-DD.")
	markStatus := markCmd.String("status", "", "One of: present, absent, late, excused.")
	markSubject := markCmd.String("subject", "", "Optional subject id scoping the mark.")
	markFaculty := markCmd.String("faculty", "", "Optional faculty id scoping the mark.")
	markNotes := markCmd.String("notes", "", "Optional free-text notes.")

	switch args[1] {
	case "createdb":
		return cli.createdb()
	case "migrate":
		return cli.migrate(migrateArgs(args[2:]))
	case "mark":
		if err := markCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *markCenter == "" || *markStudent == "" || *markDate == "" || *markStatus == "" {
			markCmd.Usage()
			return errHelp
		}
		return cli.mark(*markCenter, *markStudent, *markDate, *markStatus, *markSubject, *markFaculty, *markNotes)
	default:
		cli.printUsage()
		return errHelp
	}
}

func migrateArgs(args []string) []string {
	if len(args) == 0 {
		return []string{"up"}
	}
	return args
}
