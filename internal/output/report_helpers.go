package output

import (
	"fmt"
	"sort"
	"strings"

	"complyscan/internal/domain"
	"complyscan/internal/rules"
)

// ruleStats aggregates one rule across all evaluated products.
type ruleStats struct {
	RuleID   string
	RuleName string
	Critical bool
	Pass     int
	Fail     int
	// Products lists the product IDs failing the rule, in report order.
	Products []string
}

func computeRuleStats(records []*domain.ScanRecord) []*ruleStats {
	byID := make(map[string]*ruleStats)
	var order []string
	for _, rec := range records {
		if !rec.Evaluated() {
			continue
		}
		for _, o := range rec.Compliance.Outcomes {
			rs, ok := byID[o.RuleID]
			if !ok {
				rs = &ruleStats{RuleID: o.RuleID, RuleName: o.RuleName, Critical: o.Critical}
				byID[o.RuleID] = rs
				order = append(order, o.RuleID)
			}
			if o.Status == rules.StatusPass {
				rs.Pass++
				continue
			}
			rs.Fail++
			rs.Products = append(rs.Products, rec.ProductID)
		}
	}

	out := make([]*ruleStats, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	// Most failed first; critical before non-critical on ties.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Fail != out[j].Fail {
			return out[i].Fail > out[j].Fail
		}
		return out[i].Critical && !out[j].Critical
	})
	return out
}

// riskScore orders products for the attention list: lower compliance score
// and more critical failures rank first.
func riskScore(rec *domain.ScanRecord) int {
	if !rec.Evaluated() {
		return 0
	}
	critical := 0
	for _, o := range rec.Compliance.Outcomes {
		if o.Critical && o.Status == rules.StatusFail {
			critical++
		}
	}
	return (100 - rec.Compliance.Score) + critical*10
}

func topRiskiestProducts(records []*domain.ScanRecord, n int) []*domain.ScanRecord {
	var all []*domain.ScanRecord
	for _, rec := range records {
		if rec.Evaluated() && rec.Compliance.Status != rules.Compliant {
			all = append(all, rec)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		s1, s2 := riskScore(all[i]), riskScore(all[j])
		if s1 != s2 {
			return s1 > s2
		}
		return all[i].ProductID < all[j].ProductID
	})

	if len(all) > n {
		return all[:n]
	}
	return all
}

func criticalViolations(rec *domain.ScanRecord) []string {
	var out []string
	for _, o := range rec.Compliance.Outcomes {
		if o.Critical && o.Status == rules.StatusFail {
			out = append(out, o.RuleName)
		}
	}
	return out
}

func formatProductList(ids []string, max int) string {
	if len(ids) == 0 {
		return ""
	}
	noun := "products"
	if len(ids) == 1 {
		noun = "product"
	}
	if len(ids) <= max {
		return fmt.Sprintf("%d %s (%s)", len(ids), noun, strings.Join(ids, ", "))
	}
	return fmt.Sprintf("%d %s (%s, +%d more)", len(ids), noun, strings.Join(ids[:max], ", "), len(ids)-max)
}

// cell makes s safe inside a Markdown table cell.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	if len([]rune(s)) > 120 {
		s = string([]rune(s)[:117]) + "..."
	}
	if s == "" {
		return "-"
	}
	return s
}

func recognizedImages(rec *domain.ScanRecord) int {
	n := 0
	for _, img := range rec.Images {
		if img.TextExtracted {
			n++
		}
	}
	return n
}
