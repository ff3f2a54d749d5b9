package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rannes/pact-stub-server/internal/contract"
	"github.com/rannes/pact-stub-server/internal/index"
)

func mkInteraction(id, method, path string) contract.Interaction {
	return contract.Interaction{
		ID: id,
		Request: contract.ExpectedRequest{
			Method: method,
			Path:   path,
		},
		Response: contract.Response{Status: 200},
	}
}

func TestBuild_literalGoesToExact(t *testing.T) {
	set := contract.ContractSet{mkInteraction("a#0", "GET", "/ping")}
	idx, err := index.Build(set)
	require.NoError(t, err)

	ids := idx.Lookup(index.Key{Method: "GET", Path: "/ping"})
	assert.Equal(t, []string{"a#0"}, ids)
	assert.Empty(t, idx.Templated())
}

func TestBuild_templatedGoesToTemplatedList(t *testing.T) {
	set := contract.ContractSet{mkInteraction("a#0", "GET", "/users/{id}")}
	idx, err := index.Build(set)
	require.NoError(t, err)

	assert.Empty(t, idx.Lookup(index.Key{Method: "GET", Path: "/users/{id}"}))
	assert.Equal(t, []string{"a#0"}, idx.Templated())

	pc, ok := idx.PathContext("a#0")
	require.True(t, ok)
	assert.Equal(t, []string{"users", "{id}"}, pc.Segments)
}

func TestBuild_exactPrecedesTemplatedInRank(t *testing.T) {
	set := contract.ContractSet{
		mkInteraction("templated#0", "GET", "/users/{id}"),
		mkInteraction("literal#0", "GET", "/users/42"),
	}
	idx, err := index.Build(set)
	require.NoError(t, err)

	assert.Less(t, idx.Rank("literal#0"), idx.Rank("templated#0"))
}

func TestBuild_loadOrderPreservedWithinGroup(t *testing.T) {
	set := contract.ContractSet{
		mkInteraction("first#0", "GET", "/x"),
		mkInteraction("first#1", "GET", "/x"),
	}
	idx, err := index.Build(set)
	require.NoError(t, err)

	ids := idx.Lookup(index.Key{Method: "GET", Path: "/x"})
	require.Equal(t, []string{"first#0", "first#1"}, ids)
	assert.Less(t, idx.Rank("first#0"), idx.Rank("first#1"))
}

func TestBuild_everyIDCoveredExactlyOnce(t *testing.T) {
	set := contract.ContractSet{
		mkInteraction("a#0", "GET", "/a"),
		mkInteraction("b#0", "GET", "/{id}"),
	}
	idx, err := index.Build(set)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	_, ok := idx.Interaction("a#0")
	assert.True(t, ok)
	_, ok = idx.Interaction("b#0")
	assert.True(t, ok)
}
