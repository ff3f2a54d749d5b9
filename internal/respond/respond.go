// Package respond implements C6: turning a dispatcher Outcome into the
// bytes written back to the client, including the CORS preflight fast
// path and the 404 diagnostic body.
package respond

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rannes/pact-stub-server/internal/contract"
	"github.com/rannes/pact-stub-server/internal/dispatch"
)

// CORSOptions configures the header merge applied to served responses
// and the preflight response, derived from the CLI Config.
type CORSOptions struct {
	Enabled bool
}

// Write clones in.Response onto w: status, headers, and body verbatim,
// with Content-Length recomputed from the body and, if CORS is enabled,
// Access-Control-Allow-* headers merged in giving precedence to headers
// already present on the interaction's own response.
func Write(w http.ResponseWriter, in contract.Interaction, cors CORSOptions) {
	resp := in.Response

	header := w.Header()
	for key, vals := range resp.Headers {
		for _, v := range vals {
			header.Add(key, v)
		}
	}

	if cors.Enabled {
		mergeCORSHeaders(header)
	}

	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// mergeCORSHeaders adds the default Access-Control-Allow-* headers,
// skipping any the interaction's own response already set.
func mergeCORSHeaders(header http.Header) {
	setIfAbsent(header, "Access-Control-Allow-Origin", "*")
	setIfAbsent(header, "Access-Control-Allow-Methods", "*")
}

func setIfAbsent(header http.Header, key, value string) {
	if header.Get(key) == "" {
		header.Set(key, value)
	}
}

// WritePreflight answers a CORS preflight request with 204 and the
// fixed Allow-Origin/Allow-Methods wildcards, echoing back whatever
// headers the browser asked to send.
func WritePreflight(w http.ResponseWriter, req *http.Request) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "*")
	if reqHeaders := req.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
		header.Set("Access-Control-Allow-Headers", reqHeaders)
	}
	w.WriteHeader(http.StatusNoContent)
}

// notFoundBody is the diagnostic document served for an unmatched
// request: the closest (lowest-score) discarded candidate's mismatch
// trace, if any candidate survived narrowing at all.
type notFoundBody struct {
	Error   string        `json:"error"`
	Closest []closestMiss `json:"closest,omitempty"`
}

type closestMiss struct {
	InteractionID string          `json:"interactionId"`
	Score         int             `json:"score"`
	Mismatches    []mismatchEntry `json:"mismatches"`
}

type mismatchEntry struct {
	Category string `json:"category"`
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// WriteNotFound serves the 404 for an unmatched or mismatched request,
// with a diagnostic body built from the best discarded candidate when
// one exists. This is never served as a 2xx response; a diagnostic
// trace is not "serving a mismatch".
func WriteNotFound(w http.ResponseWriter, outcome dispatch.Outcome) {
	body := notFoundBody{Error: "no matching interaction"}

	if outcome.BestMiss != nil {
		entries := make([]mismatchEntry, 0, len(outcome.BestMiss.Result.Trace))
		for _, m := range outcome.BestMiss.Result.Trace {
			entries = append(entries, mismatchEntry{
				Category: string(m.Category),
				Path:     m.Path,
				Expected: m.Expected,
				Actual:   m.Actual,
			})
		}
		body.Closest = []closestMiss{{
			InteractionID: outcome.BestMiss.ID,
			Score:         outcome.BestMiss.Result.Score,
			Mismatches:    entries,
		}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		payload = []byte(`{"error":"no matching interaction"}`)
	}

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(payload)
}
