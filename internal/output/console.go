package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"complyscan/internal/domain"
	"complyscan/internal/rules"
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	records         []*domain.ScanRecord // For JSON array output
	allowedStatuses map[string]bool
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[string]bool)
		for _, st := range filterStatuses {
			// Rule statuses are "PASS" and "FAIL".
			s.allowedStatuses[strings.ToUpper(st)] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) filtered(r RuleResult) bool {
	return len(s.allowedStatuses) > 0 && !s.allowedStatuses[string(r.Status)]
}

func (s *ConsoleSink) writeLocked(v any) error {
	printf := func(format string, args ...any) error {
		_, err := fmt.Fprintf(s.writer, format, args...)
		return err
	}

	if r, ok := v.(RuleResult); ok && s.filtered(r) {
		return nil
	}

	switch s.format {
	case "json":
		rec, ok := v.(*domain.ScanRecord)
		if !ok {
			// Ignore events in JSON console mode.
			return nil
		}
		s.records = append(s.records, rec)
		return nil
	case "ndjson":
		encoder := json.NewEncoder(s.writer)
		switch t := v.(type) {
		case Event:
			if err := encoder.Encode(t); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		case RuleResult:
			if err := encoder.Encode(eventFromResult(t)); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		default:
			return nil
		}
	case "text":
		switch t := v.(type) {
		case RuleResult:
			if err := printf("[%s] %s: %s %s", statusLabel(t.Status), t.ProductID, t.RuleID, t.RuleName); err != nil {
				return err
			}
			if t.Critical {
				if err := printf(" (critical)"); err != nil {
					return err
				}
			}
			if t.Evidence != "" {
				if err := printf(" - %s", t.Evidence); err != nil {
					return err
				}
			}
			if err := printf("\n"); err != nil {
				return err
			}
		case *domain.ScanRecord:
			if t.Compliance == nil {
				return nil
			}
			if t.Compliance.RulesUnavailable {
				if err := printf("%s rules unavailable; result is not meaningful\n", color.YellowString("warning:")); err != nil {
					return err
				}
			}
			if err := printf("%s %s: score %d/100 (%s), %d/%d rules passed\n",
				color.New(color.Bold).Sprint("Result"), t.ProductID, t.Compliance.Score,
				classificationLabel(t.Compliance.Status), t.Compliance.Passed(), len(t.Compliance.Outcomes)); err != nil {
				return err
			}
		default:
			// Ignore lifecycle events in text mode.
			return nil
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func statusLabel(st rules.Status) string {
	if st == rules.StatusPass {
		return color.GreenString(string(st))
	}
	return color.RedString(string(st))
}

func classificationLabel(c rules.Classification) string {
	switch c {
	case rules.Compliant:
		return color.GreenString(string(c))
	case rules.NeedsReview:
		return color.YellowString(string(c))
	default:
		return color.RedString(string(c))
	}
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		records := s.records
		if records == nil {
			records = []*domain.ScanRecord{}
		}
		if err := encoder.Encode(records); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	}
	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}
