// Package domain holds the records produced by a scan and handed to storage.
package domain

import (
	"time"

	"complyscan/internal/rules"
)

// EvidenceImage is a downloaded product image and the text recognized in it.
type EvidenceImage struct {
	SourceURL      string `json:"source_url"`
	StoredPath     string `json:"stored_path"`
	RecognizedText string `json:"recognized_text"`
	TextExtracted  bool   `json:"text_extracted"`
}

// ExtractedEvidence is the text gathered for evaluation.
type ExtractedEvidence struct {
	RawMarkupText   string   `json:"raw_markup_text"`
	DescriptionText string   `json:"description_text"`
	FeatureList     []string `json:"feature_list"`
	RecognizedText  string   `json:"recognized_text"`
	// CombinedText is the normalized concatenation of every field above and
	// the only input to evaluation.
	CombinedText string `json:"combined_text"`
}

// ScanRecord is the persisted result of one submission.
type ScanRecord struct {
	ProductID   string                  `json:"product_id"`
	SourceURL   string                  `json:"source_url"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	FeatureList []string                `json:"feature_list"`
	Images      []EvidenceImage         `json:"images"`
	Evidence    ExtractedEvidence       `json:"evidence"`
	Compliance  *rules.ComplianceResult `json:"compliance,omitempty"`
	ScannedAt   time.Time               `json:"scanned_at"`
	EvaluatedAt time.Time               `json:"evaluated_at,omitzero"`
}

// Evaluated reports whether the record carries a compliance result.
func (r *ScanRecord) Evaluated() bool {
	return r != nil && r.Compliance != nil
}

// Summary aggregates stored records for reporting.
type Summary struct {
	Total        int `json:"total_products"`
	Compliant    int `json:"compliant"`
	NonCompliant int `json:"non_compliant"`
	NeedsReview  int `json:"needs_review"`
	// Unevaluated counts records without a compliance result.
	Unevaluated int `json:"unevaluated"`
	// AverageScore is taken over evaluated records only; 0 when there are none.
	AverageScore float64 `json:"average_score"`
}

// Summarize computes a Summary over records.
func Summarize(records []*ScanRecord) Summary {
	var s Summary
	var total int
	for _, r := range records {
		if r == nil {
			continue
		}
		s.Total++
		if !r.Evaluated() {
			s.Unevaluated++
			continue
		}
		total += r.Compliance.Score
		switch r.Compliance.Status {
		case rules.Compliant:
			s.Compliant++
		case rules.NeedsReview:
			s.NeedsReview++
		case rules.NonCompliant:
			s.NonCompliant++
		}
	}
	if evaluated := s.Total - s.Unevaluated; evaluated > 0 {
		s.AverageScore = float64(total) / float64(evaluated)
	}
	return s
}
