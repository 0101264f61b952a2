package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"complyscan/internal/domain"
	"complyscan/internal/rules"
)

func TestEmitSink_JSON(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "json")
	if err != nil {
		t.Fatalf("NewEmitSink returned error: %v", err)
	}

	_ = s.Write(ruleResult("a", "LM001", rules.StatusPass, false))
	_ = s.Write(scanRecord("a", 90))
	_ = s.Write(scanRecord("b", -1))
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	var got []domain.ScanRecord
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal json output: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[1].Compliance != nil {
		t.Fatalf("expected unevaluated record to have no compliance, got %+v", got[1].Compliance)
	}
}

func TestEmitSink_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "ndjson")
	if err != nil {
		t.Fatalf("NewEmitSink returned error: %v", err)
	}

	_ = s.Write(ruleResult("p", "LM001", rules.StatusPass, false))
	_ = s.Write(ruleResult("p", "LM002", rules.StatusFail, true))
	_ = s.Write(scanRecord("p", 50))
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d", len(lines))
	}
	for _, line := range lines {
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		if e.Type != "rule.result" {
			t.Fatalf("expected event type rule.result, got %q", e.Type)
		}
		if e.Outcome == nil {
			t.Fatalf("expected event to include outcome, got nil")
		}
		if e.ProductID != "p" {
			t.Fatalf("expected product 'p', got %q", e.ProductID)
		}
	}
}

func TestEmitSink_InvalidFormat(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewEmitSink(&buf, "text"); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestEmitSink_NilWriter(t *testing.T) {
	if _, err := NewEmitSink(nil, "json"); err == nil {
		t.Fatalf("expected error, got nil")
	}
}
