package syncer

import "fmt"

// MissingParameterError reports a required sync input that was not supplied.
type MissingParameterError struct {
	Field string
}

func (e *MissingParameterError) Error() string {
	return "missing required parameter: " + e.Field
}

// StorageError reports a failed reconciliation write. The replace is
// transactional, so the previously synced events are still in place.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
