// Command pact-stub-server serves canned HTTP responses for a set of
// Pact contracts, matching each inbound request against the loaded
// interactions and replaying the winning interaction's response.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rannes/pact-stub-server/internal/config"
	"github.com/rannes/pact-stub-server/internal/direrr"
	"github.com/rannes/pact-stub-server/internal/dispatch"
	"github.com/rannes/pact-stub-server/internal/index"
	"github.com/rannes/pact-stub-server/internal/loader"
	"github.com/rannes/pact-stub-server/internal/logging"
	"github.com/rannes/pact-stub-server/internal/metrics"
	"github.com/rannes/pact-stub-server/internal/reqid"
	"github.com/rannes/pact-stub-server/internal/respond"
	"github.com/rannes/pact-stub-server/internal/server"
)

// Exit codes per the CLI's documented contract.
const (
	exitOK           = 0
	exitLoadFailure  = 1
	exitParseFailure = 2
	exitBindFailure  = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args, os.Stderr)
	if err != nil {
		return exitParseFailure
	}

	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateFilter, err := cfg.ProviderStateFilter()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitParseFailure
	}

	var brokerOpt *loader.BrokerOptions
	if cfg.BrokerURL != "" {
		brokerOpt = &loader.BrokerOptions{
			URL:      cfg.BrokerURL,
			User:     cfg.User,
			Password: cfg.Password,
			Token:    cfg.Token,
		}
	}

	set, err := loader.Load(ctx, loader.Options{
		Files:               cfg.Files,
		Dirs:                cfg.Dirs,
		URLs:                cfg.URLs,
		Broker:              brokerOpt,
		ProviderStateFilter: stateFilter,
		InsecureTLS:         cfg.InsecureTLS,
	})
	if err != nil {
		logger.Error("failed to load contracts", "error", err)
		return exitLoadFailure
	}
	logger.Info("loaded contracts", "interactions", len(set))

	idx, err := index.Build(set)
	if err != nil {
		logger.Error("failed to build index", "error", err)
		return exitLoadFailure
	}

	rec := metrics.New()
	handler := dispatch.New(idx, dispatch.Options{
		CORSEnabled:             cfg.CORS,
		ProviderStateHeader:     cfg.ProviderStateHeaderName,
		MatchEmptyProviderState: cfg.MatchEmptyProviderState,
		RequestTimeout:          cfg.RequestTimeout,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	mux.HandleFunc("/", newHTTPHandler(handler, rec, cfg))

	addr := fmt.Sprintf(":%d", cfg.Port)
	if err := server.Run(ctx, server.Options{
		Addr:    addr,
		Handler: reqid.Middleware(mux),
		Logger:  logger,
	}); err != nil {
		var bindErr *server.BindError
		if errors.As(err, &bindErr) {
			logger.Error("failed to bind listener", "error", err)
			return exitBindFailure
		}
		logger.Error("server exited with error", "error", err)
		return exitLoadFailure
	}

	return exitOK
}

func newHTTPHandler(h *dispatch.Handler, rec *metrics.Recorder, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		defer func() {
			rec.ObserveDispatchSeconds(time.Since(start).Seconds())
		}()

		if cfg.CORSReferer && req.Header.Get("Origin") == "" {
			if ref := req.Header.Get("Referer"); ref != "" {
				req.Header.Set("Origin", ref)
			}
		}

		if h.CORSPreflight(req) {
			rec.ObserveOutcome(metrics.OutcomeCORS)
			respond.WritePreflight(w, req)
			return
		}

		outcome, err := h.Dispatch(req.Context(), req)
		if outcome.CandidateCount > 0 {
			rec.ObserveCandidateSetSize(outcome.CandidateCount)
		}
		if err != nil {
			if de, ok := direrr.As(err); ok && de.Kind == direrr.KindInternal {
				slog.Error("internal matcher error", "request_id", reqid.FromContext(req.Context()), "error", err)
			}
			writeError(w, rec, outcome, err)
			return
		}

		rec.ObserveOutcome(metrics.OutcomeMatched)
		respond.Write(w, outcome.Interaction, respond.CORSOptions{Enabled: cfg.CORS})
	}
}

func writeError(w http.ResponseWriter, rec *metrics.Recorder, outcome dispatch.Outcome, err error) {
	de, ok := direrr.As(err)
	if !ok {
		rec.ObserveOutcome(metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch de.Kind {
	case direrr.KindMalformedPath:
		rec.ObserveOutcome(metrics.OutcomeError)
		http.Error(w, de.Msg, http.StatusBadRequest)
	case direrr.KindCancelled:
		rec.ObserveOutcome(metrics.OutcomeCancelled)
		// swallowed: the peer is gone, nothing to write
	case direrr.KindTimeout:
		rec.ObserveOutcome(metrics.OutcomeTimeout)
		http.Error(w, de.Msg, http.StatusServiceUnavailable)
	case direrr.KindNoMatch:
		rec.ObserveOutcome(metrics.OutcomeNotFound)
		if outcome.BestMiss != nil {
			rec.ObserveScore(outcome.BestMiss.Result.Score)
		}
		respond.WriteNotFound(w, outcome)
	default:
		rec.ObserveOutcome(metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
