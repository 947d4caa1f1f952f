package record

import "fmt"

// InvalidTransitionError reports a rejected status change.
type InvalidTransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// ValidationError is returned by a validating persist when the record is not
// complete or its technical metadata is malformed. Nothing was written.
type ValidationError struct {
	Key string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %s failed validation: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistError wraps a storage failure while writing a record.
type PersistError struct {
	Key string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist record %s: %v", e.Key, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
