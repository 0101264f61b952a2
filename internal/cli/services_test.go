package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"complyscan/internal/config"
	"complyscan/internal/domain"
	"complyscan/internal/rules"
	"complyscan/internal/store/memory"
	"complyscan/internal/store/sqlite"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := openStore(ctx, config.Store{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := st.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", st)
	}

	path := filepath.Join(t.TempDir(), "nested", "scans.db")
	st, err = openStore(ctx, config.Store{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*sqlite.Store); !ok {
		t.Fatalf("expected *sqlite.Store, got %T", st)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file at %s: %v", path, err)
	}

	if _, err := openStore(ctx, config.Store{Driver: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestNewRecognizer(t *testing.T) {
	rec, err := newRecognizer(config.OCR{Disabled: true, Command: []string{"tesseract"}})
	if err != nil || rec != nil {
		t.Fatalf("disabled recognizer: got %v, %v", rec, err)
	}

	rec, err = newRecognizer(config.OCR{Command: []string{"tesseract", "{path}", "stdout"}, Format: "text", Timeout: time.Second})
	if err != nil || rec == nil {
		t.Fatalf("expected recognizer, got %v, %v", rec, err)
	}

	if _, err := newRecognizer(config.OCR{Format: "text"}); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestLoadRegistry_FailsOpen(t *testing.T) {
	reg := loadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	if reg == nil {
		t.Fatalf("expected degraded registry, got nil")
	}
	if reg.Available() {
		t.Fatalf("expected registry to be unavailable")
	}
}

func TestNewServices_WiresEngine(t *testing.T) {
	c := config.New()
	c.Store.Driver = "memory"
	c.OCR.Disabled = true
	c.Rules.Path = filepath.Join(t.TempDir(), "missing.json")
	c.Media.DataDir = t.TempDir()

	s, err := newServices(context.Background(), c)
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	defer s.Close()

	if s.engine == nil || s.extractor == nil || s.store == nil {
		t.Fatalf("expected every service to be wired: %+v", s)
	}
	if s.engine.Store != s.store {
		t.Fatalf("engine must persist into the opened store")
	}
	if s.engine.Rules != s.registry {
		t.Fatalf("engine must evaluate with the loaded registry")
	}
}

func TestPrintRule(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	tests := []struct {
		name           string
		rule           rules.Rule
		expectedOutput []string
		notExpected    []string
	}{
		{
			name: "critical pattern rule",
			rule: rules.Rule{ID: "LM001", Name: "MRP Declaration", Description: "MRP must be shown", Type: rules.TypePattern, Pattern: `MRP\s*Rs`, Critical: true},
			expectedOutput: []string{
				"RULE: LM001 [critical]",
				"MRP Declaration",
				"MRP must be shown",
				"Type:     regex_presence",
				`Pattern:  MRP\s*Rs`,
			},
			notExpected: []string{"Keywords:"},
		},
		{
			name: "keyword rule",
			rule: rules.Rule{ID: "LM002", Name: "Tax Inclusive", Type: rules.TypeKeywordSet, Keywords: []string{"inclusive of all taxes", "incl. of all taxes"}},
			expectedOutput: []string{
				"RULE: LM002\n",
				"Keywords: inclusive of all taxes, incl. of all taxes",
			},
			notExpected: []string{"[critical]", "Pattern:"},
		},
		{
			name:           "unknown type",
			rule:           rules.Rule{ID: "X1", Name: "Image Check", Type: "image_presence"},
			expectedOutput: []string{"unknown validation type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printRule(&buf, tt.rule)
			output := buf.String()

			for _, expected := range tt.expectedOutput {
				if !strings.Contains(output, expected) {
					t.Errorf("expected output to contain %q, but it didn't.\nOutput:\n%s", expected, output)
				}
			}
			for _, unexpected := range tt.notExpected {
				if strings.Contains(output, unexpected) {
					t.Errorf("expected output NOT to contain %q, but it did.\nOutput:\n%s", unexpected, output)
				}
			}
		})
	}
}

func TestPrintProducts(t *testing.T) {
	var buf bytes.Buffer
	if err := printProducts(&buf, nil); err != nil {
		t.Fatalf("printProducts: %v", err)
	}
	if buf.String() != "No products stored.\n" {
		t.Fatalf("unexpected empty output: %q", buf.String())
	}

	scanned := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	buf.Reset()
	err := printProducts(&buf, []*domain.ScanRecord{
		{ProductID: "prod_a", Title: "Kettle", ScannedAt: scanned, Compliance: &rules.ComplianceResult{Score: 65, Status: rules.NeedsReview}},
		{ProductID: "prod_b", Title: "Mug", ScannedAt: scanned},
	})
	if err != nil {
		t.Fatalf("printProducts: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "PRODUCT") {
		t.Fatalf("expected header first, got %q", lines[0])
	}
	for _, want := range []string{"prod_a", "65", "Needs Review", "2026-03-04 10:30", "Kettle"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}
	if !strings.Contains(lines[2], "Not evaluated") || !strings.Contains(lines[2], "-") {
		t.Errorf("expected unevaluated row, got %q", lines[2])
	}
}

func TestExitError(t *testing.T) {
	err := fatal(errors.New("boom"))
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 3 {
		t.Fatalf("expected exit code 3, got %#v", err)
	}
	if err.Error() != "boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	silent := withExitCode(1, nil)
	if !errors.As(silent, &ee) || ee.code != 1 || ee.err != nil {
		t.Fatalf("expected silent exit code 1, got %#v", silent)
	}
}
