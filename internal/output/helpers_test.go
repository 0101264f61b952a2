package output

import (
	"time"

	"complyscan/internal/domain"
	"complyscan/internal/rules"
)

func ruleResult(product, id string, st rules.Status, critical bool) RuleResult {
	return RuleResult{
		ProductID: product,
		Outcome:   rules.Outcome{RuleID: id, RuleName: "Rule " + id, Status: st, Critical: critical},
	}
}

// scanRecord builds an evaluated record. A negative score leaves it unevaluated.
func scanRecord(id string, score int, outcomes ...rules.Outcome) *domain.ScanRecord {
	rec := &domain.ScanRecord{
		ProductID: id,
		SourceURL: "https://shop.example/p/" + id,
		Title:     "Product " + id,
		ScannedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if score < 0 {
		return rec
	}
	rec.Compliance = &rules.ComplianceResult{
		Score:    score,
		Status:   rules.Classify(score),
		Outcomes: outcomes,
	}
	return rec
}

func imageWith(text bool) domain.EvidenceImage {
	img := domain.EvidenceImage{SourceURL: "https://cdn.example/product.jpg", StoredPath: "data/images/x/image_0.jpg"}
	if text {
		img.RecognizedText = "MRP Rs 10"
		img.TextExtracted = true
	}
	return img
}
