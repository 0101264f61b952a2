package output

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"complyscan/internal/domain"
	"complyscan/internal/rules"
)

// ReportSink collects scan records and writes a Markdown compliance report on Close.
type ReportSink struct {
	path    string
	file    *os.File
	mu      sync.Mutex
	records []*domain.ScanRecord
	failed  []Event
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{path: path, file: f}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case *domain.ScanRecord:
		s.records = append(s.records, t)
	case Event:
		if t.Type == "scan.finished" && t.Error != "" {
			s.failed = append(s.failed, t)
		}
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Submissions that produced a record are reported with it.
	seen := make(map[string]bool, len(s.records))
	for _, rec := range s.records {
		seen[rec.ProductID] = true
	}
	var failed []Event
	for _, ev := range s.failed {
		if ev.ProductID == "" || !seen[ev.ProductID] {
			failed = append(failed, ev)
		}
	}

	_, err := s.file.WriteString(RenderReport(s.records, failed...))
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// RenderReport renders records as a Markdown compliance report. failed lists
// submissions that aborted before producing a record.
func RenderReport(records []*domain.ScanRecord, failed ...Event) string {
	var b strings.Builder
	sum := domain.Summarize(records)

	b.WriteString("# complyscan Compliance Report\n\n")

	// --- Summary ---
	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | ---: |\n")
	fmt.Fprintf(&b, "| Products scanned | %d |\n", sum.Total)
	fmt.Fprintf(&b, "| Compliant | %d |\n", sum.Compliant)
	fmt.Fprintf(&b, "| Needs Review | %d |\n", sum.NeedsReview)
	fmt.Fprintf(&b, "| Non-Compliant | %d |\n", sum.NonCompliant)
	if sum.Unevaluated > 0 {
		fmt.Fprintf(&b, "| Not evaluated | %d |\n", sum.Unevaluated)
	}
	fmt.Fprintf(&b, "| Average score | %.1f |\n\n", sum.AverageScore)

	// --- Attention list ---
	b.WriteString("## Products Needing Attention\n\n")
	riskiest := topRiskiestProducts(records, 5)
	if len(riskiest) == 0 {
		b.WriteString("No products below the compliance threshold.\n\n")
	} else {
		b.WriteString("| Product | Score | Status | Critical Violations |\n")
		b.WriteString("| --- | ---: | --- | --- |\n")
		for _, rec := range riskiest {
			fmt.Fprintf(&b, "| %s | %d | %s | %s |\n",
				cell(productLabel(rec)), rec.Compliance.Score, rec.Compliance.Status,
				cell(strings.Join(criticalViolations(rec), ", ")))
		}
		b.WriteString("\n")
	}

	// --- Rule breakdown ---
	b.WriteString("## Most Violated Rules\n\n")
	stats := computeRuleStats(records)
	violated := 0
	for _, rs := range stats {
		if rs.Fail > 0 {
			violated++
		}
	}
	if violated == 0 {
		b.WriteString("No rule violations.\n\n")
	} else {
		b.WriteString("| Rule | Critical | Failing | Products |\n")
		b.WriteString("| --- | :---: | ---: | --- |\n")
		for _, rs := range stats {
			if rs.Fail == 0 {
				continue
			}
			crit := ""
			if rs.Critical {
				crit = "yes"
			}
			fmt.Fprintf(&b, "| %s %s | %s | %d | %s |\n",
				rs.RuleID, cell(rs.RuleName), cell(crit), rs.Fail, formatProductList(rs.Products, 3))
		}
		b.WriteString("\n")
	}

	// --- Coverage ---
	b.WriteString("## Evidence Coverage\n\n")
	b.WriteString("A FAIL means the disclosure was not found in the page text or recognized image text. ")
	b.WriteString("Products with little evidence are listed here so missing text is not mistaken for a missing disclosure.\n\n")
	var noImages, noText, degraded []string
	for _, rec := range records {
		if len(rec.Images) == 0 {
			noImages = append(noImages, rec.ProductID)
		} else if recognizedImages(rec) == 0 {
			noText = append(noText, rec.ProductID)
		}
		if rec.Evaluated() && rec.Compliance.RulesUnavailable {
			degraded = append(degraded, rec.ProductID)
		}
	}
	if len(noImages) == 0 && len(noText) == 0 && len(degraded) == 0 && len(failed) == 0 {
		b.WriteString("No coverage gaps found.\n\n")
	} else {
		if len(degraded) > 0 {
			fmt.Fprintf(&b, "- **Rules unavailable during evaluation**: %s\n", formatProductList(degraded, 3))
		}
		if len(noImages) > 0 {
			fmt.Fprintf(&b, "- **No product images downloaded**: %s\n", formatProductList(noImages, 3))
		}
		if len(noText) > 0 {
			fmt.Fprintf(&b, "- **No text recognized in images**: %s\n", formatProductList(noText, 3))
		}
		for _, ev := range failed {
			fmt.Fprintf(&b, "- **Scan failed** for %s: %s\n", ev.URL, cell(ev.Error))
		}
		b.WriteString("\n")
	}

	// --- Per-product detail ---
	b.WriteString("## Per-product Results\n\n")
	if len(records) == 0 {
		b.WriteString("No products scanned.\n")
		return b.String()
	}
	for _, rec := range records {
		fmt.Fprintf(&b, "### %s\n\n", productLabel(rec))
		fmt.Fprintf(&b, "- URL: %s\n", rec.SourceURL)
		fmt.Fprintf(&b, "- Product ID: `%s`\n", rec.ProductID)
		fmt.Fprintf(&b, "- Images: %d downloaded, %d with recognized text\n", len(rec.Images), recognizedImages(rec))
		if !rec.Evaluated() {
			b.WriteString("- Not evaluated\n\n")
			continue
		}
		fmt.Fprintf(&b, "- Score: **%d/100** (%s)\n\n", rec.Compliance.Score, rec.Compliance.Status)
		if len(rec.Compliance.Outcomes) == 0 {
			b.WriteString("No rules evaluated.\n\n")
			continue
		}
		b.WriteString("| Rule | Critical | Status | Evidence |\n")
		b.WriteString("| --- | :---: | --- | --- |\n")
		for _, o := range rec.Compliance.Outcomes {
			crit := ""
			if o.Critical {
				crit = "yes"
			}
			status := string(o.Status)
			if o.Status == rules.StatusFail {
				status = "**FAIL**"
			}
			fmt.Fprintf(&b, "| %s %s | %s | %s | %s |\n", o.RuleID, cell(o.RuleName), cell(crit), status, cell(o.Evidence))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func productLabel(rec *domain.ScanRecord) string {
	if t := strings.TrimSpace(rec.Title); t != "" {
		return t
	}
	return rec.ProductID
}
