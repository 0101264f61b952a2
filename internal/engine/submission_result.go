package engine

import "complyscan/internal/domain"

// SubmissionResult represents the outcome of submitting a single URL.
//
// It is emitted by the scheduler and consumed by the engine during a
// multi-URL run. Record is nil when the submission aborted; Record and Err
// are both set when the record was computed but not stored.
type SubmissionResult struct {
	Index  int
	URL    string
	Record *domain.ScanRecord
	Err    error
}

// Aborted reports whether no record was produced.
func (r SubmissionResult) Aborted() bool {
	return r.Record == nil
}
