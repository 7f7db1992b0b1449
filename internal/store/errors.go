package store

import "errors"

// ErrNotFound indicates a missing, expired or already consumed record.
var ErrNotFound = errors.New("record not found")

// ErrLocalSource is returned when reconciliation is asked to replace user-authored events.
var ErrLocalSource = errors.New("local events are not managed by reconciliation")
