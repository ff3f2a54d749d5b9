package loader

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rannes/pact-stub-server/internal/contract"
	"github.com/rannes/pact-stub-server/internal/direrr"
)

// pactFile is the top-level shape of a V4-Pact-shaped contract document.
// Only the fields the matching core needs are decoded; everything else
// (pact metadata, plugin config) is ignored.
type pactFile struct {
	Consumer     pactParty         `json:"consumer"`
	Provider     pactParty         `json:"provider"`
	Interactions []pactInteraction `json:"interactions"`
}

type pactParty struct {
	Name string `json:"name"`
}

type pactInteraction struct {
	Description    string              `json:"description"`
	ProviderStates []pactProviderState `json:"providerStates"`
	Request        pactRequest         `json:"request"`
	Response       pactResponse        `json:"response"`
}

type pactProviderState struct {
	Name string `json:"name"`
}

type pactRequest struct {
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	Query         json.RawMessage   `json:"query"`
	Headers       map[string]string `json:"headers"`
	Body          json.RawMessage   `json:"body"`
	MatchingRules pactMatchingRules `json:"matchingRules"`
}

type pactResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

// pactMatchingRules mirrors the V3/V4 Pact layout: one object per
// category (body/header/query/path), each mapping a Pact-style JSON
// path to a set of candidate matchers.
type pactMatchingRules struct {
	Body   map[string]pactMatcherGroup `json:"body"`
	Header map[string]pactMatcherGroup `json:"header"`
	Query  map[string]pactMatcherGroup `json:"query"`
	Path   *pactMatcherGroup           `json:"path"`
}

type pactMatcherGroup struct {
	Matchers []pactMatcher `json:"matchers"`
}

type pactMatcher struct {
	Match string `json:"match"`
	Regex string `json:"regex"`
	Min   *int   `json:"min"`
}

// parsePactFile decodes raw into a ContractSet, assigning each
// interaction an ID of "<source>#<ordinal>" so IDs stay stable for the
// process lifetime even across reloads from the same source.
func parsePactFile(source string, raw []byte) (contract.ContractSet, error) {
	var file pactFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, direrr.Internal("parsing contract %q: %v", source, err)
	}

	set := make(contract.ContractSet, 0, len(file.Interactions))
	for i, pi := range file.Interactions {
		in, err := toInteraction(source, i, pi)
		if err != nil {
			return nil, err
		}
		set = append(set, in)
	}
	return set, nil
}

func toInteraction(source string, ordinal int, pi pactInteraction) (contract.Interaction, error) {
	id := fmt.Sprintf("%s#%d", source, ordinal)

	states := make([]string, 0, len(pi.ProviderStates))
	for _, s := range pi.ProviderStates {
		states = append(states, s.Name)
	}

	req, err := toExpectedRequest(pi.Request)
	if err != nil {
		return contract.Interaction{}, fmt.Errorf("interaction %s: %w", id, err)
	}

	return contract.Interaction{
		ID:             id,
		ProviderStates: states,
		Request:        req,
		Response: contract.Response{
			Status:  pi.Response.Status,
			Headers: toHTTPHeader(pi.Response.Headers),
			Body:    []byte(pi.Response.Body),
		},
	}, nil
}

func toExpectedRequest(pr pactRequest) (contract.ExpectedRequest, error) {
	query, err := parsePactQuery(pr.Query)
	if err != nil {
		return contract.ExpectedRequest{}, err
	}

	headers := toHTTPHeader(pr.Headers)
	rules := mergeRuleSets(
		rulesFromGroup("$.path", pr.MatchingRules.Path),
		rulesFromMap("$.headers", headerKeyCasing(pr.MatchingRules.Header)),
		rulesFromMap("$.query", pr.MatchingRules.Query),
		rulesFromMap("$.body", pr.MatchingRules.Body),
	)

	return contract.ExpectedRequest{
		Method:      strings.ToUpper(pr.Method),
		Path:        pr.Path,
		Query:       query,
		Headers:     headers,
		Body:        []byte(pr.Body),
		ContentType: headers.Get("Content-Type"),
		Rules:       rules,
	}, nil
}

// headerKeyCasing re-keys the header matcher map through http.Header's
// canonicalization so header-rule lookups agree with net/http's own key
// normalization at match time.
func headerKeyCasing(m map[string]pactMatcherGroup) map[string]pactMatcherGroup {
	if m == nil {
		return nil
	}
	out := make(map[string]pactMatcherGroup, len(m))
	for k, v := range m {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}

func toHTTPHeader(m map[string]string) http.Header {
	if len(m) == 0 {
		return http.Header{}
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

// parsePactQuery accepts either the legacy "a=1&b=2" string form or the
// V3+ object-of-arrays form ({"a":["1"],"b":["2"]}).
func parsePactQuery(raw json.RawMessage) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		vals, err := url.ParseQuery(asString)
		if err != nil {
			return nil, direrr.Internal("parsing query string %q: %v", asString, err)
		}
		return map[string][]string(vals), nil
	}

	var asMap map[string][]string
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, direrr.Internal("parsing query object: %v", err)
	}
	return asMap, nil
}

// rulesFromMap flattens a category's matcher groups into RuleSet
// entries, rooting each Pact-relative path at prefix.
func rulesFromMap(prefix string, groups map[string]pactMatcherGroup) contract.RuleSet {
	if len(groups) == 0 {
		return nil
	}
	out := make(contract.RuleSet, len(groups))
	for pactPath, group := range groups {
		rule, ok := toRule(group)
		if !ok {
			continue
		}
		out[prefix+trimPactPath(pactPath)] = rule
	}
	return out
}

func rulesFromGroup(path string, group *pactMatcherGroup) contract.RuleSet {
	if group == nil {
		return nil
	}
	rule, ok := toRule(*group)
	if !ok {
		return nil
	}
	return contract.RuleSet{path: rule}
}

// trimPactPath converts a Pact-relative path ("$.id", "$.items[0]") into
// a dotted suffix ready to append to a category prefix.
func trimPactPath(p string) string {
	p = strings.TrimPrefix(p, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return ""
	}
	return "." + p
}

// toRule picks the first matcher this implementation understands from
// the candidate list, per Pact's "try matchers in order" semantics.
func toRule(group pactMatcherGroup) (contract.Rule, bool) {
	for _, m := range group.Matchers {
		switch m.Match {
		case "type":
			return contract.Rule{Kind: contract.RuleType}, true
		case "regex":
			if m.Regex == "" {
				continue
			}
			if _, err := regexp.Compile(m.Regex); err != nil {
				continue
			}
			return contract.Rule{Kind: contract.RuleRegex, Pattern: m.Regex}, true
		case "include":
			return contract.Rule{Kind: contract.RuleInclude}, true
		case "null":
			return contract.Rule{Kind: contract.RuleNull}, true
		case "min", "minmax":
			if m.Min != nil {
				return contract.Rule{Kind: contract.RuleMinLength, Min: *m.Min}, true
			}
		case "minArrayLength":
			if m.Min != nil {
				return contract.Rule{Kind: contract.RuleMinArrayLength, Min: *m.Min}, true
			}
		case "equality", "":
			return contract.Rule{Kind: contract.RuleEquality}, true
		}
	}
	return contract.Rule{}, false
}

func mergeRuleSets(sets ...contract.RuleSet) contract.RuleSet {
	out := make(contract.RuleSet)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// matchesProviderStateFilter reports whether any of the interaction's
// provider states satisfies filter. An interaction with no states never
// matches a non-nil filter, per the load-time filter's intent of
// narrowing to specific scenarios.
func matchesProviderStateFilter(in contract.Interaction, filter *regexp.Regexp) bool {
	if filter == nil {
		return true
	}
	for _, s := range in.ProviderStates {
		if filter.MatchString(s) {
			return true
		}
	}
	return false
}
