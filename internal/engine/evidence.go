package engine

import (
	"strings"

	"complyscan/internal/domain"
	"complyscan/internal/extract"
	"complyscan/internal/media"
	"complyscan/internal/ocr"
)

// MaxEvidenceRunes caps the combined evidence text handed to evaluation.
const MaxEvidenceRunes = 10000

// Sanitize collapses whitespace runs to single spaces, trims the ends and
// truncates to MaxEvidenceRunes.
func Sanitize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > MaxEvidenceRunes {
		s = strings.TrimSpace(string(r[:MaxEvidenceRunes]))
	}
	return s
}

// BuildEvidence gathers the text of page and the recognized image text.
// CombinedText joins markup text, description, features and recognized text
// in that order.
func BuildEvidence(page *extract.Page, recognized string) domain.ExtractedEvidence {
	ev := domain.ExtractedEvidence{
		RawMarkupText:   page.RawMarkupText,
		DescriptionText: page.Description,
		FeatureList:     append([]string{}, page.Features...),
		RecognizedText:  strings.TrimSpace(recognized),
	}
	ev.CombinedText = Sanitize(strings.Join([]string{
		ev.RawMarkupText,
		ev.DescriptionText,
		strings.Join(ev.FeatureList, " "),
		ev.RecognizedText,
	}, " "))
	return ev
}

// evidenceImages pairs stored images with their recognition results, which
// share the same order.
func evidenceImages(imgs []media.Image, results []ocr.Result) []domain.EvidenceImage {
	out := make([]domain.EvidenceImage, len(imgs))
	for i, img := range imgs {
		out[i] = domain.EvidenceImage{SourceURL: img.SourceURL, StoredPath: img.StoredPath}
		if i < len(results) && results[i].Extracted {
			out[i].RecognizedText = results[i].Text
			out[i].TextExtracted = true
		}
	}
	return out
}
