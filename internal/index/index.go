// Package index builds and serves the InteractionIndex: the immutable,
// dual-level lookup structure C3's candidate filter narrows against.
package index

import (
	"strings"

	"github.com/rannes/pact-stub-server/internal/contract"
	"github.com/rannes/pact-stub-server/internal/pathmatch"
)

// Key is the exact-lookup key: uppercased method plus normalized literal
// path.
type Key struct {
	Method string
	Path   string
}

// PathContext is a templated interaction's pre-split expected path
// segments, kept so the matcher never re-splits the same path on every
// request.
type PathContext struct {
	Segments []string
	Greedy   bool // true if the final segment is "*"
}

// Index is the immutable, dual-level lookup structure derived from a
// ContractSet. It must be built once and never mutated afterward; a
// reload builds a fresh Index and publishes it atomically (see
// internal/dispatch.Handler.Swap).
type Index struct {
	// exact maps (METHOD, normalized literal path) to interaction IDs,
	// in index order (contract load order, then declaration order).
	exact map[Key][]string

	// templated holds, in index order, the IDs of interactions whose
	// expected path contains a template variable or wildcard.
	templated []string

	// byID maps every interaction ID to its record. Invariant: every ID
	// in exact or templated appears here exactly once.
	byID map[string]contract.Interaction

	// pathContexts holds the pre-split expected path for every
	// templated interaction, keyed by ID.
	pathContexts map[string]PathContext

	// rank gives each ID's position in the combined index order: exact
	// entries precede templated entries, and ties within a group are
	// broken by load order. Used by the dispatcher to pick a
	// deterministic winner even when parallel scoring finishes out of
	// order.
	rank map[string]int
}

// Build constructs a fresh Index from set. It classifies each
// interaction's expected path as literal or templated, normalizes
// literal paths, and pre-splits templated ones.
//
// Build never mutates set and the returned Index is safe to share by
// read-only reference across any number of concurrent requests.
func Build(set contract.ContractSet) (*Index, error) {
	idx := &Index{
		exact:        make(map[Key][]string, len(set)),
		byID:         make(map[string]contract.Interaction, len(set)),
		pathContexts: make(map[string]PathContext),
		rank:         make(map[string]int, len(set)),
	}

	for _, in := range set {
		idx.byID[in.ID] = in

		if in.IsTemplated() {
			idx.templated = append(idx.templated, in.ID)
			segs := pathmatch.Split(in.Request.Path)
			greedy := len(segs) > 0 && segs[len(segs)-1] == "*"
			idx.pathContexts[in.ID] = PathContext{Segments: segs, Greedy: greedy}
			continue
		}

		normPath, err := pathmatch.Normalize(in.Request.Path)
		if err != nil {
			return nil, err
		}
		key := Key{Method: strings.ToUpper(in.Request.Method), Path: normPath}
		idx.exact[key] = append(idx.exact[key], in.ID)
	}

	// Assign ranks in index order: exact hits (in load order) precede
	// templated hits (in load order), matching C3's union order.
	rankCounter := 0
	for _, id := range idx.exactInLoadOrder(set) {
		idx.rank[id] = rankCounter
		rankCounter++
	}
	for _, id := range idx.templated {
		idx.rank[id] = rankCounter
		rankCounter++
	}

	return idx, nil
}

// exactInLoadOrder returns the IDs that landed in the exact index,
// filtered from set so they retain load order.
func (idx *Index) exactInLoadOrder(set contract.ContractSet) []string {
	ids := make([]string, 0, len(set))
	for _, in := range set {
		if !in.IsTemplated() {
			ids = append(ids, in.ID)
		}
	}
	return ids
}

// Lookup returns the exact-index IDs for key, in index order. Templated
// interactions are not included; the caller tests those separately via
// Templated. It performs no provider-state filtering; that is Stage 2,
// applied by the caller.
func (idx *Index) Lookup(key Key) []string {
	return idx.exact[key]
}

// Templated returns the full ordered list of templated interaction IDs,
// for the caller to test against the actual path.
func (idx *Index) Templated() []string {
	return idx.templated
}

// PathContext returns the pre-split expected path for a templated
// interaction ID.
func (idx *Index) PathContext(id string) (PathContext, bool) {
	pc, ok := idx.pathContexts[id]
	return pc, ok
}

// Interaction returns the full record for id.
func (idx *Index) Interaction(id string) (contract.Interaction, bool) {
	in, ok := idx.byID[id]
	return in, ok
}

// Rank returns id's position in index order (exact before templated,
// load order within each group), used as the tie-break key.
func (idx *Index) Rank(id string) int {
	return idx.rank[id]
}

// Len reports how many interactions the index holds, for diagnostics.
func (idx *Index) Len() int {
	return len(idx.byID)
}
