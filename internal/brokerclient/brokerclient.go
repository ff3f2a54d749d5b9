// Package brokerclient fetches contract documents from a Pact-broker-
// shaped HTTP API, wrapping the call in a circuit breaker and a short
// bounded retry with jittered backoff so a broken broker degrades the
// loader's startup instead of hanging the process.
package brokerclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Config configures one Client.
type Config struct {
	BaseURL  string
	User     string
	Password string
	Token    string
	HTTP     *http.Client

	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTP == nil {
		c.HTTP = http.DefaultClient
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	return c
}

// Client talks to a broker endpoint through a gobreaker circuit
// breaker, so repeated failures stop hammering an unreachable broker.
type Client struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
}

// New constructs a Client. The circuit breaker trips after a majority
// of a short window of requests fail, matching this codebase's other
// outbound-call breakers.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:        "pact-broker",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("broker circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &Client{cfg: cfg, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// PactDocument is one raw contract document fetched from the broker,
// identified by the URL it was read from.
type PactDocument struct {
	Source string
	Body   []byte
}

// brokerIndex is the subset of a Pact broker's "pacts for verification"
// response this client needs: a flat list of per-pact self links.
type brokerIndex struct {
	Links struct {
		Pacts []struct {
			Href string `json:"href"`
		} `json:"pacts"`
	} `json:"_links"`
}

// FetchPacts lists the broker's available pacts and fetches each one,
// retrying transient failures through the circuit breaker.
func (c *Client) FetchPacts(ctx context.Context) ([]PactDocument, error) {
	indexBody, err := c.getWithRetry(ctx, c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("listing broker pacts: %w", err)
	}

	var idx brokerIndex
	if err := json.Unmarshal(indexBody, &idx); err != nil {
		return nil, fmt.Errorf("parsing broker index: %w", err)
	}

	docs := make([]PactDocument, 0, len(idx.Links.Pacts))
	for _, link := range idx.Links.Pacts {
		body, err := c.getWithRetry(ctx, link.Href)
		if err != nil {
			return nil, fmt.Errorf("fetching pact %q: %w", link.Href, err)
		}
		docs = append(docs, PactDocument{Source: link.Href, Body: body})
	}
	return docs, nil
}

// getWithRetry performs one authenticated GET through the breaker,
// retrying a bounded number of times with jittered exponential backoff
// on 5xx/429/408 responses and transient network errors.
func (c *Client) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	delay := c.cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		body, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(jitter(delay)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > c.cfg.MaxDelay {
			delay = c.cfg.MaxDelay
		}
	}

	return nil, fmt.Errorf("max retry attempts (%d) exceeded: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		c.authenticate(req)

		resp, err := c.cfg.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &statusError{code: resp.StatusCode, body: string(body)}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) authenticate(req *http.Request) {
	switch {
	case c.cfg.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	case c.cfg.User != "":
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}
	req.Header.Set("Accept", "application/hal+json, application/json")
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("broker returned status %d", e.code)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests || se.code == http.StatusRequestTimeout
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return true
}

func jitter(d time.Duration) time.Duration {
	extra := time.Duration(rand.Float64() * float64(d) * 0.2)
	return d + extra
}
