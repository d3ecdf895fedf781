package inmemdb

import (
	"sync"

	"github.com/darasahq/darasa/core/attendance"
)

// DB is an in-memory stand-in for the real store; used in DEV and tests.
type DB struct {
	mutex      sync.RWMutex
	attendance *attendanceTable

	failNext error
}

type attendanceTable struct {
	rows []*attendance.Record // insertion order
}

func NewDB() *DB {
	return &DB{attendance: &attendanceTable{}}
}

// FailNext makes the next store operation return err, simulating a transport
// or backend failure. One-shot.
func (db *DB) FailNext(err error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.failNext = err
}

func (db *DB) takeFailure() error {
	err := db.failNext
	db.failNext = nil
	return err
}
