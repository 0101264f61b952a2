package output

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Sink defines a destination for scan events, rule results and records.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager fans values out to every sink. Writes are serialized, so sinks
// observe the events of concurrent submissions in one shared order.
type Manager struct {
	mu     sync.Mutex
	sinks  []Sink
	closed bool
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("output manager is closed")
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Write delivers v to every sink, even when some of them fail. Nil values
// are dropped.
func (m *Manager) Write(v any) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if v == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("output manager is closed")
	}

	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(v); err != nil {
			errs = append(errs, fmt.Errorf("write %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors writing to sinks: %w", errors.Join(errs...))
	}
	return nil
}

// Close closes every sink once. Later calls are no-ops.
func (m *Manager) Close() error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sinks: %w", errors.Join(errs...))
	}
	return nil
}

type flusher interface {
	Flush() error
}

// flushIfPossible flushes buffered writers (bufio.Writer and friends) so
// streamed lines reach the reader without waiting for Close.
func flushIfPossible(w io.Writer) error {
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
