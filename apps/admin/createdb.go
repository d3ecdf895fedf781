package main

import (
	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/storage/database"
)

var createDBFunc = database.CreateIfNotExist // mockable

// createdb creates the configured database if it does not exist yet.
func (cli *commandLine) createdb() error {
	return createDBFunc(core.Conf)
}
