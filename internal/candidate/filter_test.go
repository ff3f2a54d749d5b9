package candidate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rannes/pact-stub-server/internal/candidate"
	"github.com/rannes/pact-stub-server/internal/contract"
	"github.com/rannes/pact-stub-server/internal/index"
)

func ids(cs []candidate.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestNarrow_literalMatch(t *testing.T) {
	set := contract.ContractSet{{
		ID:       "a#0",
		Request:  contract.ExpectedRequest{Method: "GET", Path: "/ping"},
		Response: contract.Response{Status: 200},
	}}
	idx, err := index.Build(set)
	require.NoError(t, err)

	cs, err := candidate.Narrow(idx, candidate.Request{Method: "GET", RawPath: "/ping"}, candidate.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a#0"}, ids(cs))
}

func TestNarrow_trailingSlashDoesNotMatchLiteral(t *testing.T) {
	set := contract.ContractSet{{
		ID:      "a#0",
		Request: contract.ExpectedRequest{Method: "GET", Path: "/ping"},
	}}
	idx, err := index.Build(set)
	require.NoError(t, err)

	cs, err := candidate.Narrow(idx, candidate.Request{Method: "GET", RawPath: "/ping/"}, candidate.Options{})
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestNarrow_exactPrecedesTemplated(t *testing.T) {
	set := contract.ContractSet{
		{ID: "literal#0", Request: contract.ExpectedRequest{Method: "GET", Path: "/users/42"}},
		{ID: "templated#0", Request: contract.ExpectedRequest{Method: "GET", Path: "/users/{id}"}},
	}
	idx, err := index.Build(set)
	require.NoError(t, err)

	cs, err := candidate.Narrow(idx, candidate.Request{Method: "GET", RawPath: "/users/42"}, candidate.Options{})
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "literal#0", cs[0].ID)
	assert.Equal(t, "templated#0", cs[1].ID)
}

func TestNarrow_providerStateFilter(t *testing.T) {
	set := contract.ContractSet{
		{ID: "logged-in#0", ProviderStates: []string{"logged-in"}, Request: contract.ExpectedRequest{Method: "GET", Path: "/x"}},
		{ID: "guest#0", ProviderStates: []string{"guest"}, Request: contract.ExpectedRequest{Method: "GET", Path: "/x"}},
	}
	idx, err := index.Build(set)
	require.NoError(t, err)

	cs, err := candidate.Narrow(idx, candidate.Request{Method: "GET", RawPath: "/x", ProviderState: "guest"}, candidate.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"guest#0"}, ids(cs))

	cs, err = candidate.Narrow(idx, candidate.Request{Method: "GET", RawPath: "/x"}, candidate.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"logged-in#0", "guest#0"}, ids(cs))
}

func TestNarrow_emptyProviderStateDroppedByDefaultWhenHeaderPresent(t *testing.T) {
	set := contract.ContractSet{
		{ID: "stateless#0", Request: contract.ExpectedRequest{Method: "GET", Path: "/x"}},
	}
	idx, err := index.Build(set)
	require.NoError(t, err)

	cs, err := candidate.Narrow(idx, candidate.Request{Method: "GET", RawPath: "/x", ProviderState: "guest"}, candidate.Options{})
	require.NoError(t, err)
	assert.Empty(t, cs)

	cs, err = candidate.Narrow(idx, candidate.Request{Method: "GET", RawPath: "/x", ProviderState: "guest"}, candidate.Options{MatchEmptyProviderState: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"stateless#0"}, ids(cs))
}
