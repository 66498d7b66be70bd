package repository

import (
	"errors"
)

var (
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDatabaseUnavailable = errors.New("database is unavailable")
	ErrDatabaseGeneric     = errors.New("database error occurred while processing request")
	ErrBatchTooLarge       = errors.New("batch exceeds the maximum atomic write size")
)
