package rules

type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Classification is the compliance verdict derived from a score.
type Classification string

const (
	Compliant    Classification = "Compliant"
	NeedsReview  Classification = "Needs Review"
	NonCompliant Classification = "Non-Compliant"
)

// Outcome is the result of evaluating one rule against evidence text.
type Outcome struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Status   Status `json:"status"`
	// Evidence is the matched text supporting a PASS. Empty when nothing matched.
	Evidence    string `json:"evidence,omitempty"`
	Description string `json:"description,omitempty"`
	Critical    bool   `json:"is_critical"`
}

// ComplianceResult aggregates all outcomes of one evaluation.
type ComplianceResult struct {
	Score      int            `json:"score"`
	Status     Classification `json:"status"`
	Outcomes   []Outcome      `json:"rules"`
	Violations []string       `json:"violations"`
	// RulesUnavailable marks an evaluation run against a registry that failed to load.
	RulesUnavailable bool `json:"rules_unavailable,omitempty"`
}

// Passed counts PASS outcomes.
func (c ComplianceResult) Passed() int {
	n := 0
	for _, o := range c.Outcomes {
		if o.Status == StatusPass {
			n++
		}
	}
	return n
}
