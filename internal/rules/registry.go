package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleLoadError reports a rule definition source that could not be loaded.
type RuleLoadError struct {
	Source string
	Err    error
}

func (e *RuleLoadError) Error() string {
	return fmt.Sprintf("load rules from %s: %v", e.Source, e.Err)
}

func (e *RuleLoadError) Unwrap() error { return e.Err }

// Registry is the immutable, ordered rule set used for evaluation.
// A Registry is safe for concurrent use; it is never modified after construction.
type Registry struct {
	rules   []Rule
	source  string
	loadErr error
}

// definitionFile is the on-disk document shape: {"rules": [...]}.
type definitionFile struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// NewRegistry validates defs and returns a registry holding them in order.
func NewRegistry(defs ...Rule) (*Registry, error) {
	seen := make(map[string]struct{}, len(defs))
	out := make([]Rule, 0, len(defs))
	for i := range defs {
		r := defs[i]
		r.Keywords = append([]string(nil), defs[i].Keywords...)
		if err := r.prepare(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("rule %s defined more than once", r.ID)
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return &Registry{rules: out}, nil
}

// Unavailable returns the empty, degraded registry used when loading failed.
func Unavailable(source string, err error) *Registry {
	if err == nil {
		err = errors.New("rules unavailable")
	}
	return &Registry{source: source, loadErr: err}
}

// Load reads a rule definition file. YAML is used for .yaml/.yml files,
// JSON otherwise. Both the {"rules": [...]} document and a bare array are
// accepted.
//
// Load fails open: on any error it returns an empty registry that records the
// failure together with a *RuleLoadError. Callers are expected to log the
// error and continue in degraded mode.
func Load(path string) (*Registry, error) {
	reg, err := load(path)
	if err != nil {
		lerr := &RuleLoadError{Source: path, Err: err}
		return Unavailable(path, lerr), lerr
	}
	reg.source = path
	for _, r := range reg.rules {
		if !r.Known() {
			slog.Warn("rule has unknown validation type and will always fail",
				"rule_id", r.ID, "validation_type", string(r.Type))
		}
	}
	return reg, nil
}

func load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("no rule definition path configured")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var defs []Rule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defs, err = decodeYAML(raw)
	default:
		defs, err = decodeJSON(raw)
	}
	if err != nil {
		return nil, err
	}
	return NewRegistry(defs...)
}

func decodeJSON(raw []byte) ([]Rule, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var defs []Rule
		if err := json.Unmarshal(raw, &defs); err != nil {
			return nil, fmt.Errorf("parse rules: %w", err)
		}
		return defs, nil
	}
	var doc definitionFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if doc.Rules == nil {
		return nil, errors.New(`parse rules: missing "rules" collection`)
	}
	return doc.Rules, nil
}

func decodeYAML(raw []byte) ([]Rule, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var defs []Rule
		if err := node.Decode(&defs); err != nil {
			return nil, fmt.Errorf("parse rules: %w", err)
		}
		return defs, nil
	}
	var doc definitionFile
	if err := node.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if doc.Rules == nil {
		return nil, errors.New(`parse rules: missing "rules" collection`)
	}
	return doc.Rules, nil
}

// Rules returns the rules in definition order. The slice is a copy.
func (r *Registry) Rules() []Rule {
	if r == nil {
		return nil
	}
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Len returns the number of loaded rules.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Lookup returns the rule with the given ID.
func (r *Registry) Lookup(id string) (Rule, bool) {
	if r == nil {
		return Rule{}, false
	}
	id = strings.TrimSpace(id)
	for _, rule := range r.rules {
		if rule.ID == id {
			return rule, true
		}
	}
	return Rule{}, false
}

// Source is the path the registry was loaded from, if any.
func (r *Registry) Source() string {
	if r == nil {
		return ""
	}
	return r.source
}

// Available is false when the registry is the degraded result of a failed load.
// An intentionally empty rule set is still available.
func (r *Registry) Available() bool {
	return r != nil && r.loadErr == nil
}

// LoadErr returns the error that put the registry in degraded mode.
func (r *Registry) LoadErr() error {
	if r == nil {
		return errors.New("rules registry is nil")
	}
	return r.loadErr
}
