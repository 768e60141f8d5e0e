package types

import "errors"

// Open errors.
var (
	ErrUnsupported    = errors.New("storage engine unavailable in this environment")
	ErrVersion        = errors.New("requested version is lower than the stored version")
	ErrVersionInvalid = errors.New("version must be positive")
)

// Operation errors. They mirror the failure kinds a platform object store
// reports for a single request.
var (
	ErrStoreNotFound = errors.New("store not found")
	ErrIndexNotFound = errors.New("index not found")
	ErrNotFound      = errors.New("record not found")
	ErrConstraint    = errors.New("constraint violated")
	ErrDataError     = errors.New("invalid key or record")
	ErrReadOnly      = errors.New("transaction is read-only")
	ErrClosed        = errors.New("database is closed")
	ErrTxnDone       = errors.New("transaction already finished")
	ErrInvalidData   = errors.New("invalid data")
)
