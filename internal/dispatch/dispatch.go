// Package dispatch implements C5: the per-request state machine that
// orchestrates path narrowing, parallel scoring, winner selection, and
// response construction.
package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rannes/pact-stub-server/internal/candidate"
	"github.com/rannes/pact-stub-server/internal/contract"
	"github.com/rannes/pact-stub-server/internal/direrr"
	"github.com/rannes/pact-stub-server/internal/index"
	"github.com/rannes/pact-stub-server/internal/matcher"
)

// yieldThreshold is the candidate-set size beyond which scoring yields
// cooperatively between batches so a cancelled request is observed
// promptly, per §5's "explicit yields... default 32".
const yieldThreshold = 32

// State names the dispatcher's state-machine positions, exposed for
// logging/metrics only — the implementation below is a straight-line
// function, not a literal state object, since Go's natural idiom for
// this control flow is sequential code with early returns rather than a
// hand-rolled FSM.
type State string

const (
	StateReceived      State = "received"
	StateCorsPreflight State = "cors_preflight"
	StateNarrowing     State = "narrowing"
	StateScoring       State = "scoring"
	StatePickWinner    State = "pick_winner"
	StateBuildResponse State = "build_response"
	StateNotFound      State = "not_found"
	StateDone          State = "done"
)

// Options configures dispatcher behavior, derived from the CLI Config.
type Options struct {
	CORSEnabled             bool
	ProviderStateHeader     string
	MatchEmptyProviderState bool
	// RequestTimeout bounds narrowing+scoring; zero means unbounded.
	RequestTimeout time.Duration
}

// Handler holds the atomically-published index the dispatcher serves
// against. Swap publishes a freshly built index; in-flight requests keep
// using whichever pointer they already loaded.
type Handler struct {
	idx atomic.Pointer[index.Index]
	opt Options
}

// New constructs a Handler around an initial index.
func New(idx *index.Index, opt Options) *Handler {
	h := &Handler{opt: opt}
	h.idx.Store(idx)
	return h
}

// Swap atomically publishes a freshly built index. Requests already in
// flight continue to use the index they loaded at the start of Dispatch.
func (h *Handler) Swap(idx *index.Index) {
	h.idx.Store(idx)
}

// Outcome is the result of dispatching one request: either a winning
// interaction plus the bindings that matched it, or an error describing
// why none was served.
type Outcome struct {
	State       State
	Interaction contract.Interaction
	Bindings    map[string]string
	// BestMiss is the lowest-scoring discarded candidate, for the 404
	// diagnostic body. Set only when candidates were scored and none
	// matched perfectly; nil otherwise.
	BestMiss *ScoredCandidate
	// CandidateCount is how many candidates survived C3 narrowing,
	// reported to the candidate-set-size histogram.
	CandidateCount int
}

// ScoredCandidate pairs a scored candidate with its trace, used both for
// PickWinner and for the best-miss diagnostic.
type ScoredCandidate struct {
	ID     string
	Rank   int
	Result matcher.Result
}

// CORSPreflight reports whether req is a CORS preflight request under
// the dispatcher's configuration: an OPTIONS request while CORS is
// enabled. This fast path dominates even when a matching interaction
// exists, per §8's boundary behavior.
func (h *Handler) CORSPreflight(req *http.Request) bool {
	return h.opt.CORSEnabled && req.Method == http.MethodOptions
}

// Dispatch runs C3→C4→PickWinner for one request against the
// currently-published index. It does not consume the request body
// unless at least one candidate survives narrowing, per §6's contract
// ("no body is consumed from the wire until method+path narrowing has
// produced at least one candidate").
func (h *Handler) Dispatch(ctx context.Context, req *http.Request) (Outcome, error) {
	if h.opt.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.RequestTimeout)
		defer cancel()
	}

	idx := h.idx.Load()

	stateHeader := h.opt.ProviderStateHeader
	if stateHeader == "" {
		stateHeader = "X-Pact-Provider-State"
	}

	candReq := candidate.Request{
		Method:        req.Method,
		RawPath:       req.URL.EscapedPath(),
		ProviderState: req.Header.Get(stateHeader),
	}

	candidates, err := candidate.Narrow(idx, candReq, candidate.Options{
		MatchEmptyProviderState: h.opt.MatchEmptyProviderState,
	})
	if err != nil {
		return Outcome{State: StateNarrowing}, err
	}
	if len(candidates) == 0 {
		return Outcome{State: StateNotFound}, direrr.NoMatch("no interaction for %s %s", req.Method, req.URL.Path)
	}
	candidateCount := len(candidates)

	if cerr := ctxErr(ctx); cerr != nil {
		return Outcome{State: StateNarrowing, CandidateCount: candidateCount}, cerr
	}

	body, query, err := readBody(req)
	if err != nil {
		if cerr := ctxErr(ctx); cerr != nil {
			return Outcome{State: StateScoring, CandidateCount: candidateCount}, cerr
		}
		return Outcome{State: StateScoring, CandidateCount: candidateCount}, direrr.Internal("reading request body: %v", err)
	}

	actual := matcher.Actual{Headers: req.Header, Query: query, Body: body}

	scored, err := h.scoreAll(ctx, idx, candidates, actual)
	if err != nil {
		return Outcome{State: StateScoring, CandidateCount: candidateCount}, err
	}
	if cerr := ctxErr(ctx); cerr != nil {
		return Outcome{State: StateScoring, CandidateCount: candidateCount}, cerr
	}

	winner, bestMiss := pickWinner(scored)
	if winner == nil {
		return Outcome{State: StateNotFound, BestMiss: bestMiss, CandidateCount: candidateCount},
			direrr.NoMatch("no perfect match for %s %s", req.Method, req.URL.Path)
	}

	in, ok := idx.Interaction(winner.ID)
	if !ok {
		return Outcome{State: StateNotFound, CandidateCount: candidateCount}, direrr.Internal("winning candidate %s vanished from index", winner.ID)
	}

	var bindings map[string]string
	for _, c := range candidates {
		if c.ID == winner.ID {
			bindings = c.Bindings
			break
		}
	}

	return Outcome{
		State:          StateBuildResponse,
		CandidateCount: candidateCount,
		Interaction:    in,
		Bindings:       bindings,
		BestMiss:       bestMiss,
	}, nil
}

// ctxErr classifies a done context into the dispatcher error it should
// surface: KindTimeout for an elapsed deadline, KindCancelled for a
// disconnected client, nil if ctx is not done.
func ctxErr(ctx context.Context) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return direrr.Timeout()
	case context.Canceled:
		return direrr.Cancelled()
	default:
		return nil
	}
}

func readBody(req *http.Request) ([]byte, url.Values, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, nil, err
		}
	}
	return body, req.URL.Query(), nil
}

// scoreAll runs C4 over candidates on a bounded concurrent pool, yielding
// cooperatively every yieldThreshold candidates so a cancelled context
// is observed promptly on large candidate sets. Scoring has no side
// effects, so cancellation at any point simply discards partial work.
func (h *Handler) scoreAll(ctx context.Context, idx *index.Index, candidates []candidate.Candidate, actual matcher.Actual) ([]ScoredCandidate, error) {
	results := make([]ScoredCandidate, len(candidates))

	limit := runtime.GOMAXPROCS(0)
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	eg, egCtx := errgroup.WithContext(ctx)

	for i, c := range candidates {
		i, c := i, c

		if i > 0 && i%yieldThreshold == 0 {
			select {
			case <-egCtx.Done():
				if cerr := ctxErr(ctx); cerr != nil {
					return nil, cerr
				}
				return nil, direrr.Cancelled()
			default:
			}
		}

		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-egCtx.Done():
				return egCtx.Err()
			}
			defer func() { <-sem }()

			in, ok := idx.Interaction(c.ID)
			if !ok {
				return direrr.Internal("candidate %s vanished from index", c.ID)
			}

			res := matcher.Score(in.Request, actual)
			results[i] = ScoredCandidate{ID: c.ID, Rank: idx.Rank(c.ID), Result: res}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		if cerr := ctxErr(ctx); cerr != nil {
			return nil, cerr
		}
		if de, ok := direrr.As(err); ok {
			return nil, de
		}
		return nil, direrr.Internal("scoring candidates: %v", err)
	}

	return results, nil
}

// pickWinner selects the perfect-match candidate earliest in index
// order, pairing each result with its rank so the deterministic
// tie-break holds regardless of the order scoring goroutines completed
// in. When no candidate scored 0, it instead returns the lowest-scoring
// candidate as bestMiss, for the 404 diagnostic body; bestMiss is nil
// whenever a winner is returned.
func pickWinner(scored []ScoredCandidate) (winner *ScoredCandidate, bestMiss *ScoredCandidate) {
	ranked := make([]ScoredCandidate, len(scored))
	copy(ranked, scored)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Result.Score != ranked[j].Result.Score {
			return ranked[i].Result.Score < ranked[j].Result.Score
		}
		return ranked[i].Rank < ranked[j].Rank
	})

	if len(ranked) == 0 {
		return nil, nil
	}
	if ranked[0].Result.Score == 0 {
		w := ranked[0]
		return &w, nil
	}
	m := ranked[0]
	return nil, &m
}
