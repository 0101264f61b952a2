package engine

import "fmt"

// PersistenceError reports a completed scan whose record could not be
// stored. The record is returned alongside it and can be retried with Persist.
type PersistenceError struct {
	ProductID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.ProductID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
