package rules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegistry(t *testing.T, defs ...Rule) *Registry {
	t.Helper()
	reg, err := NewRegistry(defs...)
	require.NoError(t, err)
	return reg
}

func keywordRule(id string, critical bool, kws ...string) Rule {
	return Rule{ID: id, Name: "Rule " + id, Type: TypeKeywordSet, Keywords: kws, Critical: critical}
}

func patternRule(id string, critical bool, pattern string) Rule {
	return Rule{ID: id, Name: "Rule " + id, Type: TypePattern, Pattern: pattern, Critical: critical}
}

func TestEvaluate_TaxInclusiveScenario(t *testing.T) {
	reg := mustRegistry(t, keywordRule("tax", true, "inclusive of all taxes"))

	res := Evaluate(reg, "MRP ₹199 inclusive of all taxes")

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusPass, res.Outcomes[0].Status)
	assert.Equal(t, "Found keywords: inclusive of all taxes", res.Outcomes[0].Evidence)
	assert.Equal(t, 70, res.Score)
	assert.Equal(t, NeedsReview, res.Status)
	assert.Empty(t, res.Violations)
	assert.False(t, res.RulesUnavailable)
}

func TestEvaluate_PatternRule(t *testing.T) {
	reg := mustRegistry(t,
		patternRule("mrp", true, `mrp\s*[:.]?\s*₹\s*\d+`),
		patternRule("qty", true, `net\s+(qty|quantity|wt)`),
	)

	res := Evaluate(reg, "Buy now! MRP: ₹ 249 for this pack")

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, StatusPass, res.Outcomes[0].Status)
	assert.Equal(t, "MRP: ₹ 249", res.Outcomes[0].Evidence, "evidence keeps the original casing")
	assert.Equal(t, StatusFail, res.Outcomes[1].Status)
	assert.Empty(t, res.Outcomes[1].Evidence)
	assert.Equal(t, []string{"Rule qty"}, res.Violations)
	assert.Equal(t, 35, res.Score)
	assert.Equal(t, NonCompliant, res.Status)
}

func TestEvaluate_KeywordEvidenceListsAllMatches(t *testing.T) {
	reg := mustRegistry(t, keywordRule("care", false, "Customer Care", "email", "toll free"))

	res := Evaluate(reg, "CUSTOMER CARE: call our toll free number")

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusPass, res.Outcomes[0].Status)
	assert.Equal(t, "Found keywords: Customer Care, toll free", res.Outcomes[0].Evidence)
	assert.Equal(t, 30, res.Score)
}

func TestEvaluate_UnknownTypeFails(t *testing.T) {
	reg := mustRegistry(t, Rule{ID: "img", Name: "Image Check", Type: "image_presence", Critical: true})

	res := Evaluate(reg, "anything at all")

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusFail, res.Outcomes[0].Status)
	assert.Empty(t, res.Outcomes[0].Evidence)
	assert.Equal(t, []string{"Image Check"}, res.Violations)
	assert.Equal(t, 0, res.Score)
}

func TestEvaluate_EmptyRegistry(t *testing.T) {
	t.Run("load failure", func(t *testing.T) {
		reg := Unavailable("rules.json", errors.New("boom"))
		res := Evaluate(reg, "MRP ₹199")
		assert.Empty(t, res.Outcomes)
		assert.Empty(t, res.Violations)
		assert.NotNil(t, res.Violations)
		assert.Equal(t, 0, res.Score)
		assert.Equal(t, NonCompliant, res.Status)
		assert.True(t, res.RulesUnavailable)
	})

	t.Run("no rules configured", func(t *testing.T) {
		res := Evaluate(mustRegistry(t), "MRP ₹199")
		assert.Empty(t, res.Outcomes)
		assert.Equal(t, 0, res.Score)
		assert.Equal(t, NonCompliant, res.Status)
		assert.False(t, res.RulesUnavailable)
	})
}

func TestEvaluate_CriticalOnlyCapsAt70(t *testing.T) {
	reg := mustRegistry(t,
		keywordRule("a", true, "alpha"),
		keywordRule("b", true, "beta"),
	)
	res := Evaluate(reg, "alpha beta")
	assert.Equal(t, 70, res.Score)
	assert.Equal(t, NeedsReview, res.Status)
}

func TestEvaluate_NonCriticalOnlyCapsAt30(t *testing.T) {
	reg := mustRegistry(t, keywordRule("a", false, "alpha"))
	res := Evaluate(reg, "alpha")
	assert.Equal(t, 30, res.Score)
	assert.Equal(t, NonCompliant, res.Status)
}

func TestEvaluate_Idempotent(t *testing.T) {
	reg := mustRegistry(t,
		patternRule("p", true, `made in \w+`),
		keywordRule("k", false, "net qty", "net quantity"),
	)
	text := "Made in India. Net Quantity 500 g"
	assert.Equal(t, Evaluate(reg, text), Evaluate(reg, text))
}

func TestEvaluate_InvariantsAcrossRuleSets(t *testing.T) {
	words := []string{"mrp", "net", "origin", "care", "batch", "expiry", "address"}
	text := "MRP 10 net weight 1kg customer care address: Pune"

	for n := 0; n <= len(words); n++ {
		for mask := 0; mask < 1<<n; mask++ {
			var defs []Rule
			for i := 0; i < n; i++ {
				defs = append(defs, keywordRule(fmt.Sprintf("r%d", i), mask&(1<<i) != 0, words[i]))
			}
			reg := mustRegistry(t, defs...)
			res := Evaluate(reg, text)

			require.GreaterOrEqual(t, res.Score, 0)
			require.LessOrEqual(t, res.Score, 100)
			require.Len(t, res.Outcomes, reg.Len())

			var want []string
			for _, o := range res.Outcomes {
				if o.Status == StatusFail {
					want = append(want, o.RuleName)
				}
			}
			if want == nil {
				want = []string{}
			}
			require.Equal(t, want, res.Violations)
			require.Equal(t, Classify(res.Score), res.Status)
		}
	}
}

func TestScore_Weighting(t *testing.T) {
	outcomes := []Outcome{
		{Critical: true, Status: StatusPass},
		{Critical: true, Status: StatusPass},
		{Critical: true, Status: StatusFail},
		{Critical: false, Status: StatusPass},
		{Critical: false, Status: StatusFail},
	}
	// 2/3*70 + 1/2*30 = 46.67 + 15 = 61.67
	assert.Equal(t, 62, Score(outcomes))
	assert.Equal(t, 0, Score(nil))
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		score int
		want  Classification
	}{
		{100, Compliant},
		{80, Compliant},
		{79, NeedsReview},
		{60, NeedsReview},
		{59, NonCompliant},
		{0, NonCompliant},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.score))
		})
	}
}

func TestEvaluateRule_LiteralRuleCompilesLazily(t *testing.T) {
	r := Rule{ID: "x", Name: "X", Type: TypePattern, Pattern: `best before`}
	o := EvaluateRule(r, "BEST BEFORE 12 months", "best before 12 months")
	assert.Equal(t, StatusPass, o.Status)
	assert.Equal(t, "BEST BEFORE", o.Evidence)

	bad := Rule{ID: "y", Name: "Y", Type: TypePattern, Pattern: `(`}
	assert.Equal(t, StatusFail, EvaluateRule(bad, "(", "(").Status)
}

func TestComplianceResult_Passed(t *testing.T) {
	res := ComplianceResult{Outcomes: []Outcome{{Status: StatusPass}, {Status: StatusFail}, {Status: StatusPass}}}
	assert.Equal(t, 2, res.Passed())
}
