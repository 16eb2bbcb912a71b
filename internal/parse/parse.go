package parse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Metric is one rule's typed value for one process invocation. Value holds a
// float64, int64 or string depending on the rule kind.
type Metric struct {
	Name  string
	Value any
	Units string
}

// Numeric returns the metric as a float64 when it holds a number.
func (m Metric) Numeric() (float64, bool) {
	switch v := m.Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Passes reports whether the metric satisfies a pass rule: a boolean true or
// the string "PASS" in any case.
func (m Metric) Passes() bool {
	switch v := m.Value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "PASS")
	default:
		return false
	}
}

// Error is returned when a process's output does not satisfy a rule.
type Error struct {
	Metric  string
	Value   string
	Allowed []string
	msg     string
	err     error
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.err }

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// RuleSet is a validated, compiled set of rules for one target.
type RuleSet struct {
	rules []compiledRule
}

// Compile validates rules and compiles their patterns. Patterns run in
// multi-line mode so ^ and $ match at line boundaries.
func Compile(rules []Rule) (*RuleSet, error) {
	seen := make(map[string]bool, len(rules))
	set := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, fmt.Errorf("rule %q: pattern is required", r.Name)
		}
		if r.Kind == KindEnum && len(r.Enum) == 0 {
			return nil, fmt.Errorf("rule %q: enum rules need at least one value", r.Name)
		}
		re, err := regexp.Compile("(?m)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: compiling pattern: %w", r.Name, err)
		}
		set.rules = append(set.rules, compiledRule{Rule: r, re: re})
	}
	return set, nil
}

// Rules returns the rules in declaration order.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Rule
	}
	return out
}

// Parse applies every rule to text. A missing required metric or a value
// that fails conversion aborts the whole call; no partial result is returned.
func (s *RuleSet) Parse(text string) (map[string]Metric, error) {
	out := make(map[string]Metric, len(s.rules))
	for _, r := range s.rules {
		raw, ok := r.capture(text)
		if !ok {
			if r.Required {
				return nil, &Error{
					Metric: r.Name,
					msg:    fmt.Sprintf("missing required metric %q (pattern did not match)", r.Name),
				}
			}
			continue
		}
		val, err := convert(r.Rule, raw)
		if err != nil {
			return nil, err
		}
		out[r.Name] = Metric{Name: r.Name, Value: val, Units: r.Units}
	}
	return out, nil
}

// Parse compiles rules and applies them to text in one step.
func Parse(rules []Rule, text string) (map[string]Metric, error) {
	set, err := Compile(rules)
	if err != nil {
		return nil, err
	}
	return set.Parse(text)
}

func (r compiledRule) capture(text string) (string, bool) {
	loc := r.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", false
	}
	// group 1 when the pattern has one and it took part in the match
	if r.re.NumSubexp() >= 1 && loc[2] >= 0 {
		return strings.TrimSpace(text[loc[2]:loc[3]]), true
	}
	return strings.TrimSpace(text[loc[0]:loc[1]]), true
}

func convert(r Rule, raw string) (any, error) {
	switch r.Kind {
	case KindFloat:
		return convertFloat(r, raw)
	case KindInt:
		return convertInt(r, raw)
	case KindEnum:
		return convertEnum(r, raw)
	case KindString:
		return raw, nil
	default:
		panic(fmt.Sprintf("parse: unhandled rule kind %v", r.Kind))
	}
}

func convertFloat(r Rule, raw string) (any, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &Error{
			Metric: r.Name,
			Value:  raw,
			msg:    fmt.Sprintf("metric %q expected float, got %q", r.Name, raw),
			err:    err,
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &Error{
			Metric: r.Name,
			Value:  raw,
			msg:    fmt.Sprintf("metric %q expected a finite float, got %q", r.Name, raw),
		}
	}
	return v, nil
}

func convertInt(r Rule, raw string) (any, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &Error{
			Metric: r.Name,
			Value:  raw,
			msg:    fmt.Sprintf("metric %q expected int, got %q", r.Name, raw),
			err:    err,
		}
	}
	return v, nil
}

func convertEnum(r Rule, raw string) (any, error) {
	for _, allowed := range r.Enum {
		if raw == allowed {
			return raw, nil
		}
	}
	return nil, &Error{
		Metric:  r.Name,
		Value:   raw,
		Allowed: append([]string(nil), r.Enum...),
		msg:     fmt.Sprintf("metric %q got %q, expected one of [%s]", r.Name, raw, strings.Join(r.Enum, ", ")),
	}
}
