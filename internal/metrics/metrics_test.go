package metrics_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rannes/pact-stub-server/internal/metrics"
)

func TestRecorder_handlerServesExposition(t *testing.T) {
	r := metrics.New()
	r.ObserveOutcome(metrics.OutcomeMatched)
	r.ObserveCandidateSetSize(3)
	r.ObserveScore(0)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "pact_stub_requests_total")
}
