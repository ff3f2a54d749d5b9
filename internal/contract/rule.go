package contract

import (
	"regexp"
	"strings"
)

// RuleKind identifies the predicate a matching rule applies to an
// expected/actual value pair. Kinds map directly onto the Pact V4
// matching-rule vocabulary this server consumes.
type RuleKind uint8

const (
	RuleEquality RuleKind = iota
	RuleType
	RuleRegex
	RuleMinLength
	RuleMinArrayLength
	RuleInclude
	RuleNull
	RuleEachLike
)

// Rule is a single compiled matching rule. Regex rules carry a lazily
// compiled pattern; everything else is a plain value comparison.
type Rule struct {
	Kind    RuleKind
	Pattern string
	Min     int
	re      *regexp.Regexp
}

// Compile lazily compiles the rule's regex pattern, if any. Safe to call
// more than once; a failed compile leaves the rule matching nothing.
func (r *Rule) Compile() {
	if r.Kind == RuleRegex && r.Pattern != "" && r.re == nil {
		if re, err := regexp.Compile(r.Pattern); err == nil {
			r.re = re
		}
	}
}

// MatchString applies the rule to a string actual value. Equality and
// Type rules are evaluated by the caller (they need the expected value);
// MatchString only covers the self-contained predicates.
func (r *Rule) MatchString(actual string) bool {
	switch r.Kind {
	case RuleRegex:
		r.Compile()
		return r.re != nil && r.re.MatchString(actual)
	case RuleMinLength:
		return len(actual) >= r.Min
	case RuleNull:
		return actual == ""
	default:
		return true
	}
}

// RuleSet is a path-keyed collection of matching rules, resolved by
// longest-prefix match the way route-parameter constraints are resolved
// against their owning segment.
type RuleSet map[string]Rule

// Lookup finds the rule governing path, preferring the most specific
// (longest) matching prefix registered in the set. path and candidate
// keys are compared as "." separated JSON-pointer-like strings, e.g.
// "$.headers.X-Foo" or "$.body.items".
func (rs RuleSet) Lookup(path string) (Rule, bool) {
	var (
		best     Rule
		bestLen  = -1
		bestSeen bool
	)
	for key, rule := range rs {
		if !isPrefix(key, path) {
			continue
		}
		if len(key) > bestLen {
			best, bestLen, bestSeen = rule, len(key), true
		}
	}
	return best, bestSeen
}

// isPrefix reports whether key is a path-segment-aligned prefix of path,
// e.g. "$.headers" is a prefix of "$.headers.X-Foo" but "$.head" is not.
func isPrefix(key, path string) bool {
	if key == path {
		return true
	}
	if !strings.HasPrefix(path, key) {
		return false
	}
	rest := path[len(key):]
	return strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "[")
}
