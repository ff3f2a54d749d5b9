// Package candidate implements C3: progressive narrowing from an
// incoming request down to the set of interactions the full matcher
// (C4) needs to score.
package candidate

import (
	"strings"

	"github.com/rannes/pact-stub-server/internal/index"
	"github.com/rannes/pact-stub-server/internal/pathmatch"
)

// Request is the subset of an incoming HTTP request the filter needs;
// the dispatcher builds one from the parsed *http.Request before
// narrowing.
type Request struct {
	Method        string
	RawPath       string
	ProviderState string // value of the configured provider-state header, if any
}

// Options configures Stage 2's provider-state filtering.
type Options struct {
	// MatchEmptyProviderState mirrors --empty-provider-state: when a
	// provider-state header is supplied, candidates declaring no
	// provider states at all are normally dropped (they made no claim
	// compatible with the requested state); this flag retains them
	// instead. Candidates with a nonempty ProviderStates set that
	// doesn't contain the requested state are always dropped.
	MatchEmptyProviderState bool
}

// Candidate is a surviving interaction ID paired with the binding
// context the full matcher needs for templated paths.
type Candidate struct {
	ID       string
	Bindings pathmatch.Bindings // nil for literal-path candidates
}

// Narrow runs Stage 1 (method+path) and Stage 2 (provider-state) of C3,
// returning the candidates C4 must score, in index order (exact hits
// before templated hits).
func Narrow(idx *index.Index, req Request, opts Options) ([]Candidate, error) {
	normPath, err := pathmatch.Normalize(req.RawPath)
	if err != nil {
		return nil, err
	}
	actualSegments, err := pathmatch.Segments(req.RawPath)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate

	key := index.Key{Method: strings.ToUpper(req.Method), Path: normPath}
	for _, id := range idx.Lookup(key) {
		candidates = append(candidates, Candidate{ID: id})
	}

	for _, id := range idx.Templated() {
		in, ok := idx.Interaction(id)
		if !ok || !strings.EqualFold(in.Request.Method, req.Method) {
			continue
		}
		pc, ok := idx.PathContext(id)
		if !ok {
			continue
		}
		bindings, matched := pathmatch.MatchTemplated(pc.Segments, actualSegments, in.Request.Rules)
		if !matched {
			continue
		}
		candidates = append(candidates, Candidate{ID: id, Bindings: bindings})
	}

	return filterByProviderState(idx, candidates, req.ProviderState, opts), nil
}

// filterByProviderState applies Stage 2. If no provider-state header was
// supplied, every candidate survives untouched. Otherwise: a candidate
// with a nonempty ProviderStates set survives only if it contains state;
// a candidate with no provider states at all survives only when
// MatchEmptyProviderState is set.
func filterByProviderState(idx *index.Index, candidates []Candidate, state string, opts Options) []Candidate {
	if state == "" {
		return candidates
	}

	out := candidates[:0:0]
	for _, c := range candidates {
		in, ok := idx.Interaction(c.ID)
		if !ok {
			continue
		}
		if len(in.ProviderStates) == 0 {
			if opts.MatchEmptyProviderState {
				out = append(out, c)
			}
			continue
		}
		if in.HasState(state) {
			out = append(out, c)
		}
	}
	return out
}
