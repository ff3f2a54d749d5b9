package pathmatch

import (
	"fmt"
	"strings"

	"github.com/rannes/pact-stub-server/internal/contract"
)

// Bindings maps a template variable name to the decoded segment value it
// captured.
type Bindings map[string]string

// MatchTemplated matches actualSegments against expectedSegments, the
// pre-split pattern of a templated Interaction path. A match requires an
// equal segment count unless the final expected segment is "*" (greedy
// tail, matching one or more remaining segments). "{name}" segments
// match any single non-empty segment and bind name to its decoded value;
// any other segment must match literally unless rules supplies an
// override for that position (consulted first, via "$.path[i]" then the
// coarser "$.path").
//
// Bindings is a map keyed by variable name; it does not record the
// segment order of the variables. The second result is false if no match
// was found, in which case bindings is nil.
func MatchTemplated(expectedSegments, actualSegments []string, rules contract.RuleSet) (Bindings, bool) {
	greedy := len(expectedSegments) > 0 && expectedSegments[len(expectedSegments)-1] == "*"

	if greedy {
		if len(actualSegments) < len(expectedSegments) {
			return nil, false
		}
	} else if len(actualSegments) != len(expectedSegments) {
		return nil, false
	}

	var bindings Bindings
	fixed := len(expectedSegments)
	if greedy {
		fixed--
	}

	for i := 0; i < fixed; i++ {
		exp := expectedSegments[i]
		act := actualSegments[i]

		if name, isVar := templateName(exp); isVar {
			if act == "" {
				return nil, false
			}
			if rule, ok := lookupSegmentRule(rules, i); ok {
				if !rule.MatchString(act) {
					return nil, false
				}
			}
			if bindings == nil {
				bindings = make(Bindings, fixed)
			}
			bindings[name] = act
			continue
		}

		if rule, ok := lookupSegmentRule(rules, i); ok {
			if !rule.MatchString(act) {
				return nil, false
			}
			continue
		}

		if exp != act {
			return nil, false
		}
	}

	return bindings, true
}

// templateName reports whether seg is a "{name}" template segment and,
// if so, its captured name.
func templateName(seg string) (string, bool) {
	if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && len(seg) > 2 {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

// lookupSegmentRule resolves the rule governing path segment i,
// preferring a rule scoped to that exact segment over the coarser
// "$.path" rule.
func lookupSegmentRule(rules contract.RuleSet, i int) (contract.Rule, bool) {
	if rules == nil {
		return contract.Rule{}, false
	}
	if rule, ok := rules.Lookup(fmt.Sprintf("$.path[%d]", i)); ok {
		return rule, true
	}
	return rules.Lookup("$.path")
}
