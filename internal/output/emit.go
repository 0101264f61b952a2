package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"complyscan/internal/domain"
)

const (
	formatJSON   = "json"
	formatNDJSON = "ndjson"
)

// structured encodes sink values in one of the machine-readable formats.
//
// In json mode only scan records are kept and the whole batch is written as
// an indented array by finish. In ndjson mode events and rule results are
// streamed one object per line as they arrive; records are dropped because
// their content is already carried by the events.
type structured struct {
	mu      sync.Mutex
	w       io.Writer
	format  string
	records []*domain.ScanRecord
}

func validFormat(format string) bool {
	return format == formatJSON || format == formatNDJSON
}

func (s *structured) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == formatJSON {
		if rec, ok := v.(*domain.ScanRecord); ok {
			s.records = append(s.records, rec)
		}
		return nil
	}

	var ev Event
	switch t := v.(type) {
	case Event:
		ev = t
	case RuleResult:
		ev = eventFromResult(t)
	default:
		return nil
	}
	if err := json.NewEncoder(s.w).Encode(ev); err != nil {
		return err
	}
	return flushIfPossible(s.w)
}

func (s *structured) finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format != formatJSON {
		return nil
	}
	records := s.records
	if records == nil {
		records = []*domain.ScanRecord{}
	}
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return err
	}
	return flushIfPossible(s.w)
}

// EmitSink writes the structured stream selected by --emit to an arbitrary
// writer, usually stdout.
type EmitSink struct {
	enc structured
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	if !validFormat(format) {
		return nil, fmt.Errorf("unsupported emit format: %s", format)
	}
	return &EmitSink{enc: structured{w: w, format: format}}, nil
}

func (s *EmitSink) Write(v any) error { return s.enc.write(v) }

// Close writes the buffered json array. The writer itself is left open.
func (s *EmitSink) Close() error { return s.enc.finish() }
