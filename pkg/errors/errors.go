// Package errors holds the storage errors shared by every repository backend.
package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
	ErrCreate       = errors.New("create error")
	ErrUpdate       = errors.New("update error")
)
