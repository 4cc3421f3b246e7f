package db

import "errors"

// Sentinel errors for store operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrRowNotFound = errors.New("db: row not found")
	ErrIndexExists = errors.New("db: index already exists")
)

// Op constants name the failing operation for error context.
const (
	OpEnsure = "ENSURE"
	OpUpsert = "UPSERT"
	OpGetRow = "GETROW"
	OpDelete = "DELETE"
	OpList   = "LIST"
	OpQuery  = "QUERY"
	OpGet    = "GET"
	OpSet    = "SET"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
