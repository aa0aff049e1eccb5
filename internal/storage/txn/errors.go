package txn

import "errors"

var (
	// ErrUnknownTransaction is returned when an operation names a txn id
	// the manager never issued or has already forgotten.
	ErrUnknownTransaction = errors.New("txn: unknown transaction")
	// ErrStatusLogCorrupt marks a malformed record in the status log file.
	ErrStatusLogCorrupt = errors.New("txn: status log corrupt")
)
