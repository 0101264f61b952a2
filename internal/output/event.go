package output

import "complyscan/internal/rules"

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line), including:
// - run.started / run.finished
// - scan.started
// - stage.changed
// - rule.result
// - scan.finished
//
// JSON mode remains an aggregate of scan records.
type Event struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Stage     string `json:"stage,omitempty"`
	*rules.Outcome
	Products       int    `json:"products,omitempty"`
	Title          string `json:"title,omitempty"`
	Images         int    `json:"images,omitempty"`
	Rules          int    `json:"rules,omitempty"`
	Score          *int   `json:"score,omitempty"`
	Classification string `json:"classification,omitempty"`
	Error          string `json:"error,omitempty"`
	ExitCode       int    `json:"exit_code,omitempty"`
}

// RuleResult is one rule outcome produced while scanning a product.
type RuleResult struct {
	ProductID string
	rules.Outcome
}

func eventFromResult(r RuleResult) Event {
	o := r.Outcome
	return Event{Type: "rule.result", ProductID: r.ProductID, Outcome: &o}
}
