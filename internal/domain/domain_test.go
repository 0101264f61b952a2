package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"complyscan/internal/rules"
)

func evaluated(score int) *ScanRecord {
	return &ScanRecord{Compliance: &rules.ComplianceResult{Score: score, Status: rules.Classify(score)}}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]*ScanRecord{
		evaluated(90),
		evaluated(70),
		evaluated(20),
		evaluated(100),
		{ProductID: "pending"},
		nil,
	})

	assert.Equal(t, Summary{
		Total:        5,
		Compliant:    2,
		NonCompliant: 1,
		NeedsReview:  1,
		Unevaluated:  1,
		AverageScore: 70,
	}, s)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
	assert.Equal(t, Summary{Total: 1, Unevaluated: 1}, Summarize([]*ScanRecord{{}}))
}
