package dispatch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rannes/pact-stub-server/internal/contract"
	"github.com/rannes/pact-stub-server/internal/direrr"
	"github.com/rannes/pact-stub-server/internal/dispatch"
	"github.com/rannes/pact-stub-server/internal/index"
)

func buildHandler(t *testing.T, set contract.ContractSet, opt dispatch.Options) *dispatch.Handler {
	t.Helper()
	idx, err := index.Build(set)
	require.NoError(t, err)
	return dispatch.New(idx, opt)
}

func TestDispatch_literalMatch(t *testing.T) {
	set := contract.ContractSet{{
		ID:       "a#0",
		Request:  contract.ExpectedRequest{Method: "GET", Path: "/ping"},
		Response: contract.Response{Status: 200, Body: []byte("pong")},
	}}
	h := buildHandler(t, set, dispatch.Options{})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	out, err := h.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a#0", out.Interaction.ID)
}

func TestDispatch_trailingSlashIsNotFound(t *testing.T) {
	set := contract.ContractSet{{
		ID:      "a#0",
		Request: contract.ExpectedRequest{Method: "GET", Path: "/ping"},
	}}
	h := buildHandler(t, set, dispatch.Options{})

	req := httptest.NewRequest(http.MethodGet, "/ping/", nil)
	_, err := h.Dispatch(context.Background(), req)
	require.Error(t, err)
	de, ok := direrr.As(err)
	require.True(t, ok)
	assert.Equal(t, direrr.KindNoMatch, de.Kind)
}

func TestDispatch_emptyContractSetAlways404(t *testing.T) {
	h := buildHandler(t, nil, dispatch.Options{})
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	_, err := h.Dispatch(context.Background(), req)
	require.Error(t, err)
	de, _ := direrr.As(err)
	assert.Equal(t, direrr.KindNoMatch, de.Kind)
}

func TestDispatch_exactBeatsTemplated(t *testing.T) {
	set := contract.ContractSet{
		{ID: "literal#0", Request: contract.ExpectedRequest{Method: "GET", Path: "/users/42"},
			Response: contract.Response{Status: 200, Body: []byte("A")}},
		{ID: "templated#0", Request: contract.ExpectedRequest{Method: "GET", Path: "/users/{id}"},
			Response: contract.Response{Status: 200, Body: []byte("B")}},
	}
	h := buildHandler(t, set, dispatch.Options{})

	req := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	out, err := h.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "literal#0", out.Interaction.ID)

	req2 := httptest.NewRequest(http.MethodGet, "/users/7", nil)
	out2, err := h.Dispatch(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, "templated#0", out2.Interaction.ID)
	assert.Equal(t, "7", out2.Bindings["id"])
}

func TestDispatch_providerStateFilter(t *testing.T) {
	set := contract.ContractSet{
		{ID: "logged-in#0", ProviderStates: []string{"logged-in"}, Request: contract.ExpectedRequest{Method: "GET", Path: "/x"},
			Response: contract.Response{Status: 200}},
		{ID: "guest#0", ProviderStates: []string{"guest"}, Request: contract.ExpectedRequest{Method: "GET", Path: "/x"},
			Response: contract.Response{Status: 200}},
	}
	h := buildHandler(t, set, dispatch.Options{})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Pact-Provider-State", "guest")
	out, err := h.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "guest#0", out.Interaction.ID)

	req2 := httptest.NewRequest(http.MethodGet, "/x", nil)
	out2, err := h.Dispatch(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, "logged-in#0", out2.Interaction.ID)
}

func TestDispatch_bodyMismatchIs404NotPartial(t *testing.T) {
	set := contract.ContractSet{{
		ID: "a#0",
		Request: contract.ExpectedRequest{
			Method: "POST", Path: "/submit",
			ContentType: "application/json", Body: []byte(`{"a":1}`),
		},
		Response: contract.Response{Status: 200},
	}}
	h := buildHandler(t, set, dispatch.Options{})

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"a":2}`))
	req.Header.Set("Content-Type", "application/json")
	_, err := h.Dispatch(context.Background(), req)
	require.Error(t, err)
	de, _ := direrr.As(err)
	assert.Equal(t, direrr.KindNoMatch, de.Kind)
}

func TestDispatch_candidateCountReportedOnMatch(t *testing.T) {
	set := contract.ContractSet{
		{ID: "a#0", Request: contract.ExpectedRequest{Method: "GET", Path: "/x"}, Response: contract.Response{Status: 200}},
		{ID: "a#1", Request: contract.ExpectedRequest{Method: "GET", Path: "/x"}, Response: contract.Response{Status: 200}},
	}
	h := buildHandler(t, set, dispatch.Options{})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	out, err := h.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, out.CandidateCount)
}

func TestDispatch_requestTimeoutSurfacesAsTimeoutKind(t *testing.T) {
	set := contract.ContractSet{{
		ID:       "a#0",
		Request:  contract.ExpectedRequest{Method: "GET", Path: "/slow"},
		Response: contract.Response{Status: 200},
	}}
	h := buildHandler(t, set, dispatch.Options{RequestTimeout: time.Nanosecond})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	_, err := h.Dispatch(ctx, req)
	require.Error(t, err)
	de, ok := direrr.As(err)
	require.True(t, ok)
	assert.Equal(t, direrr.KindTimeout, de.Kind)
}

func TestDispatch_manyCandidatesDeterministicWinner(t *testing.T) {
	set := make(contract.ContractSet, 0, 100)
	for i := 0; i < 100; i++ {
		set = append(set, contract.Interaction{
			ID:      "c#" + strconv.Itoa(i),
			Request: contract.ExpectedRequest{Method: "GET", Path: "/many"},
			Response: contract.Response{
				Status: 200,
				Body:   []byte(strconv.Itoa(i)),
			},
		})
	}
	h := buildHandler(t, set, dispatch.Options{})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/many", nil)
		out, err := h.Dispatch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "c#0", out.Interaction.ID)
	}
}
