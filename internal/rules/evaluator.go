package rules

import (
	"math"
	"strings"
)

const (
	criticalWeight    = 70.0
	nonCriticalWeight = 30.0

	compliantThreshold   = 80
	needsReviewThreshold = 60
)

// Evaluate runs every rule of reg against text. It is pure: evaluating the
// same text against the same registry always yields an identical result.
func Evaluate(reg *Registry, text string) ComplianceResult {
	rs := reg.Rules()
	lower := strings.ToLower(text)

	outcomes := make([]Outcome, 0, len(rs))
	violations := make([]string, 0)
	for _, rule := range rs {
		o := EvaluateRule(rule, text, lower)
		outcomes = append(outcomes, o)
		if o.Status == StatusFail {
			violations = append(violations, o.RuleName)
		}
	}

	score := Score(outcomes)
	return ComplianceResult{
		Score:            score,
		Status:           Classify(score),
		Outcomes:         outcomes,
		Violations:       violations,
		RulesUnavailable: !reg.Available(),
	}
}

// EvaluateRule evaluates a single rule. lower must be strings.ToLower(text).
// Unknown validation types fail without evidence.
func EvaluateRule(rule Rule, text, lower string) Outcome {
	o := Outcome{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Status:      StatusFail,
		Description: rule.Description,
		Critical:    rule.Critical,
	}

	switch rule.Type {
	case TypePattern:
		re := rule.re
		if re == nil {
			var err error
			if re, err = compilePattern(rule.Pattern); err != nil {
				return o
			}
		}
		if loc := re.FindStringIndex(text); loc != nil {
			o.Status = StatusPass
			o.Evidence = text[loc[0]:loc[1]]
		}
	case TypeKeywordSet:
		var found []string
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				found = append(found, kw)
			}
		}
		if len(found) > 0 {
			o.Status = StatusPass
			o.Evidence = "Found keywords: " + strings.Join(found, ", ")
		}
	}
	return o
}

// Score weights critical rules at 70 points and the rest at 30. A bucket with
// no rules contributes nothing, so a critical-only rule set tops out at 70.
func Score(outcomes []Outcome) int {
	var critical, passedCritical, nonCritical, passedNonCritical int
	for _, o := range outcomes {
		pass := o.Status == StatusPass
		if o.Critical {
			critical++
			if pass {
				passedCritical++
			}
			continue
		}
		nonCritical++
		if pass {
			passedNonCritical++
		}
	}

	var total float64
	if critical > 0 {
		total += float64(passedCritical) / float64(critical) * criticalWeight
	}
	if nonCritical > 0 {
		total += float64(passedNonCritical) / float64(nonCritical) * nonCriticalWeight
	}

	score := int(math.Round(total))
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// Classify maps a score to its classification.
func Classify(score int) Classification {
	switch {
	case score >= compliantThreshold:
		return Compliant
	case score >= needsReviewThreshold:
		return NeedsReview
	default:
		return NonCompliant
	}
}
