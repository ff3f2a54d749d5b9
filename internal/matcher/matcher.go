// Package matcher implements C4: scoring an actual HTTP request against
// a candidate interaction's expected request, producing a mismatch count
// and a diagnostic trace.
package matcher

import (
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rannes/pact-stub-server/internal/contract"
)

// Category identifies which sub-element of the request a Mismatch
// belongs to, for diagnostics and trace logging.
type Category string

const (
	CategoryHeader Category = "header"
	CategoryQuery  Category = "query"
	CategoryBody   Category = "body"
	CategoryPath   Category = "path"
)

// Mismatch records one failed comparison between an expected and actual
// value. Scoring never fails; every divergence becomes one of these.
type Mismatch struct {
	Category Category
	Path     string
	Expected string
	Actual   string
}

// Actual is the subset of the live HTTP request the matcher needs. It
// carries no path or template bindings: path matching, including $.path
// rules, is done by C3 before scoring.
type Actual struct {
	Headers http.Header
	Query   url.Values
	Body    []byte
}

// Result is the outcome of scoring one candidate: a nonnegative mismatch
// count (0 = perfect match) and the trace explaining every point added
// to it.
type Result struct {
	Score int
	Trace []Mismatch
}

// Score compares actual against expected's headers, query, and body, per
// §4.4. Path is not re-checked here for templated candidates: C3 already
// ran MatchTemplated and would have excluded a non-match before this is
// ever called.
func Score(expected contract.ExpectedRequest, actual Actual) Result {
	var res Result

	scoreHeaders(expected, actual, &res)
	scoreQuery(expected, actual, &res)
	scoreBody(expected, actual, &res)

	return res
}

func scoreHeaders(expected contract.ExpectedRequest, actual Actual, res *Result) {
	for key, wantVals := range expected.Headers {
		gotVals := actual.Headers.Values(key)
		if !headerMatches(expected.Rules, key, wantVals, gotVals) {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{
				Category: CategoryHeader,
				Path:     "$.headers." + key,
				Expected: strings.Join(wantVals, ", "),
				Actual:   strings.Join(gotVals, ", "),
			})
		}
	}
}

func headerMatches(rules contract.RuleSet, key string, want, got []string) bool {
	path := "$.headers." + key
	if rule, ok := rules.Lookup(path); ok {
		if len(got) == 0 {
			return false
		}
		for _, g := range got {
			if !rule.MatchString(g) {
				return false
			}
		}
		return true
	}
	return equalValues(want, got)
}

func scoreQuery(expected contract.ExpectedRequest, actual Actual, res *Result) {
	for key, wantVals := range expected.Query {
		gotVals := actual.Query[key]
		path := "$.query." + key
		if rule, ok := expected.Rules.Lookup(path); ok {
			if len(gotVals) == 0 || !allMatch(rule, gotVals) {
				res.Score++
				res.Trace = append(res.Trace, Mismatch{Category: CategoryQuery, Path: path,
					Expected: strings.Join(wantVals, ", "), Actual: strings.Join(gotVals, ", ")})
			}
			continue
		}
		if !equalValues(wantVals, gotVals) {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{Category: CategoryQuery, Path: path,
				Expected: strings.Join(wantVals, ", "), Actual: strings.Join(gotVals, ", ")})
		}
	}
}

func allMatch(rule contract.Rule, vals []string) bool {
	for _, v := range vals {
		if !rule.MatchString(v) {
			return false
		}
	}
	return true
}

// equalValues compares two ordered value lists, used when no rule
// overrides the default equality comparison.
func equalValues(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func scoreBody(expected contract.ExpectedRequest, actual Actual, res *Result) {
	if len(expected.Body) == 0 && expected.ContentType == "" {
		return // no body expectation declared
	}

	actualType := mediaType(actual.Headers.Get("Content-Type"))
	expectedType := mediaType(expected.ContentType)
	if expectedType != "" && actualType != expectedType {
		res.Score++
		res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: "$.body",
			Expected: expectedType, Actual: actualType})
		return
	}

	switch expectedType {
	case "application/json":
		scoreJSONBody(expected, actual.Body, res)
	case "application/x-www-form-urlencoded":
		scoreFormBody(expected, actual.Body, res)
	case "text/plain":
		if string(expected.Body) != string(actual.Body) {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: "$.body",
				Expected: string(expected.Body), Actual: string(actual.Body)})
		}
	default:
		if string(expected.Body) != string(actual.Body) {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: "$.body",
				Expected: "<binary>", Actual: "<binary>"})
		}
	}
}

func scoreFormBody(expected contract.ExpectedRequest, actualBody []byte, res *Result) {
	wantVals, err := url.ParseQuery(string(expected.Body))
	if err != nil {
		return
	}
	gotVals, err := url.ParseQuery(string(actualBody))
	if err != nil {
		res.Score++
		res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: "$.body",
			Expected: "<form>", Actual: "<unparseable>"})
		return
	}

	keys := make([]string, 0, len(wantVals))
	for k := range wantVals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := "$.body." + key
		want := wantVals[key]
		got := gotVals[key]
		if rule, ok := expected.Rules.Lookup(path); ok {
			if len(got) == 0 || !allMatch(rule, got) {
				res.Score++
				res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: path,
					Expected: strings.Join(want, ", "), Actual: strings.Join(got, ", ")})
			}
			continue
		}
		if !equalValues(want, got) {
			res.Score++
			res.Trace = append(res.Trace, Mismatch{Category: CategoryBody, Path: path,
				Expected: strings.Join(want, ", "), Actual: strings.Join(got, ", ")})
		}
	}
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return mt
}
