package matcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rannes/pact-stub-server/internal/contract"
)

// maxJSONRecursionDepth bounds the recursive body comparison so a
// maliciously deep actual body can't exhaust the stack; beyond it the
// remaining subtree is scored as one mismatch rather than explored.
const maxJSONRecursionDepth = 64

func scoreJSONBody(expected contract.ExpectedRequest, actualBody []byte, res *Result) {
	var wantVal any
	if len(expected.Body) > 0 {
		if err := json.Unmarshal(expected.Body, &wantVal); err != nil {
			// A malformed *expected* body is a load-time defect, not
			// scored here; treat as "no expectation" rather than panic.
			return
		}
	}

	var gotVal any
	if err := json.Unmarshal(actualBody, &gotVal); err != nil {
		res.Score++
		res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: "$.body",
			Expected: "<valid json>", Actual: "<malformed json>"})
		return
	}

	compareJSON("$.body", wantVal, gotVal, expected.Rules, res, 0)
}

// compareJSON walks want and got together, emitting one Mismatch per
// leaf divergence. It never returns an error: any structural mismatch
// (type, missing key, array length) is itself recorded as a Mismatch.
func compareJSON(path string, want, got any, rules contract.RuleSet, res *Result, depth int) {
	if depth > maxJSONRecursionDepth {
		res.Score++
		res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: path,
			Expected: "<bounded>", Actual: "<too deep>"})
		return
	}

	if rule, ok := rules.Lookup(path); ok {
		if !matchJSONRule(rule, want, got) {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: path,
				Expected: jsonPreview(want), Actual: jsonPreview(got)})
		}
		return
	}

	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: path,
				Expected: "object", Actual: jsonPreview(got)})
			return
		}
		for key, wv := range w {
			gv, present := g[key]
			if !present {
				res.Score++
				res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: path + "." + key,
					Expected: jsonPreview(wv), Actual: "<missing>"})
				continue
			}
			compareJSON(path+"."+key, wv, gv, rules, res, depth+1)
		}
	case []any:
		g, ok := got.([]any)
		if !ok {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: path,
				Expected: "array", Actual: jsonPreview(got)})
			return
		}
		if len(g) < len(w) {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: path,
				Expected: fmt.Sprintf("len>=%d", len(w)), Actual: fmt.Sprintf("len=%d", len(g))})
			return
		}
		for i, wv := range w {
			compareJSON(fmt.Sprintf("%s[%d]", path, i), wv, g[i], rules, res, depth+1)
		}
	default:
		if !jsonScalarEqual(want, got) {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: path,
				Expected: jsonPreview(want), Actual: jsonPreview(got)})
		}
	}
}

func matchJSONRule(rule contract.Rule, want, got any) bool {
	switch rule.Kind {
	case contract.RuleType:
		return sameJSONType(want, got)
	case contract.RuleNull:
		return got == nil
	case contract.RuleMinLength:
		s, ok := got.(string)
		return ok && len(s) >= rule.Min
	case contract.RuleMinArrayLength:
		arr, ok := got.([]any)
		return ok && len(arr) >= rule.Min
	case contract.RuleRegex:
		s, ok := got.(string)
		return ok && rule.MatchString(s)
	case contract.RuleInclude:
		s, ok := got.(string)
		sub, okw := want.(string)
		return ok && okw && strings.Contains(s, sub)
	default:
		return jsonScalarEqual(want, got)
	}
}

func sameJSONType(want, got any) bool {
	switch want.(type) {
	case map[string]any:
		_, ok := got.(map[string]any)
		return ok
	case []any:
		_, ok := got.([]any)
		return ok
	case string:
		_, ok := got.(string)
		return ok
	case float64:
		_, ok := got.(float64)
		return ok
	case bool:
		_, ok := got.(bool)
		return ok
	case nil:
		return got == nil
	default:
		return false
	}
}

func jsonScalarEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func jsonPreview(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	if len(b) > 64 {
		return string(b[:64]) + "..."
	}
	return string(b)
}
