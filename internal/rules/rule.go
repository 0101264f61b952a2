package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationType selects how a rule inspects evidence text.
type ValidationType string

const (
	// TypePattern rules pass when a case-insensitive regular expression matches.
	TypePattern ValidationType = "regex_presence"
	// TypeKeywordSet rules pass when at least one keyword occurs in the text.
	TypeKeywordSet ValidationType = "keyword_presence"
)

// Rule is a single declarative disclosure requirement.
type Rule struct {
	ID          string         `json:"rule_id" yaml:"rule_id"`
	Name        string         `json:"rule_name" yaml:"rule_name"`
	Description string         `json:"rule_description" yaml:"rule_description"`
	Type        ValidationType `json:"validation_type" yaml:"validation_type"`
	Pattern     string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Keywords    []string       `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Critical    bool           `json:"is_critical" yaml:"is_critical"`

	re *regexp.Regexp
}

// compilePattern builds the case-insensitive matcher for a pattern rule.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// prepare validates the rule and caches derived state (compiled pattern,
// trimmed keywords). Unknown validation types are accepted; they evaluate
// to FAIL.
func (r *Rule) prepare() error {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	if r.ID == "" {
		return fmt.Errorf("rule_id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule %s: rule_name is required", r.ID)
	}

	switch r.Type {
	case TypePattern:
		if strings.TrimSpace(r.Pattern) == "" {
			return fmt.Errorf("rule %s: pattern is required for %s", r.ID, TypePattern)
		}
		re, err := compilePattern(r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		r.re = re
	case TypeKeywordSet:
		var kept []string
		for _, kw := range r.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				kept = append(kept, kw)
			}
		}
		if len(kept) == 0 {
			return fmt.Errorf("rule %s: at least one keyword is required for %s", r.ID, TypeKeywordSet)
		}
		r.Keywords = kept
	}
	return nil
}

// Known reports whether the rule's validation type is one the evaluator understands.
func (r Rule) Known() bool {
	return r.Type == TypePattern || r.Type == TypeKeywordSet
}
