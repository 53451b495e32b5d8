package policy

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// allKeyword selects every rule.
const allKeyword = "all"

// RuleSet is either a finite set of rule IDs or "all".
// The zero value is the empty set.
type RuleSet struct {
	all   bool
	rules map[string]struct{}
}

// AllRules returns the set that contains every rule.
func AllRules() RuleSet {
	return RuleSet{all: true}
}

// NewRuleSet returns a finite set of the given rules.
func NewRuleSet(rules ...string) RuleSet {
	rs := RuleSet{rules: make(map[string]struct{}, len(rules))}
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			rs.rules[r] = struct{}{}
		}
	}
	return rs
}

// ParseRuleSet parses "all" or a comma-separated rule list.
func ParseRuleSet(s string) RuleSet {
	if strings.TrimSpace(s) == allKeyword {
		return AllRules()
	}
	return NewRuleSet(strings.Split(s, ",")...)
}

// All reports whether the set covers every rule.
func (r RuleSet) All() bool {
	return r.all
}

// Has reports whether rule is in the set.
func (r RuleSet) Has(rule string) bool {
	if r.all {
		return true
	}
	_, ok := r.rules[rule]
	return ok
}

// Empty reports whether the set contains no rules.
func (r RuleSet) Empty() bool {
	return !r.all && len(r.rules) == 0
}

// Rules returns the explicit rules in sorted order. Nil for "all".
func (r RuleSet) Rules() []string {
	if r.all {
		return nil
	}
	out := make([]string, 0, len(r.rules))
	for rule := range r.rules {
		out = append(out, rule)
	}
	slices.Sort(out)
	return out
}

func (r RuleSet) String() string {
	if r.all {
		return allKeyword
	}
	return strings.Join(r.Rules(), ",")
}

// UnmarshalYAML accepts the scalar "all" or a sequence of rule IDs.
func (r *RuleSet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value != allKeyword {
			return fmt.Errorf("line %d: rule set must be %q or a list, got %q", node.Line, allKeyword, node.Value)
		}
		*r = AllRules()
		return nil
	case yaml.SequenceNode:
		var rules []string
		if err := node.Decode(&rules); err != nil {
			return err
		}
		*r = NewRuleSet(rules...)
		return nil
	default:
		return fmt.Errorf("line %d: rule set must be %q or a list", node.Line, allKeyword)
	}
}

// MarshalYAML writes "all" or the sorted list.
func (r RuleSet) MarshalYAML() (any, error) {
	if r.all {
		return allKeyword, nil
	}
	return r.Rules(), nil
}

// MarshalJSON writes "all" or the sorted list.
func (r RuleSet) MarshalJSON() ([]byte, error) {
	if r.all {
		return json.Marshal(allKeyword)
	}
	rules := r.Rules()
	if rules == nil {
		rules = []string{}
	}
	return json.Marshal(rules)
}
