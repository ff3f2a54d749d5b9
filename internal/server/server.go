// Package server implements C10: the HTTP/1.1 and h2c transport the
// dispatcher is served behind, with graceful shutdown on context
// cancellation, mirroring this codebase's runServer lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Options configures the transport. MaxConcurrentConns bounds the
// listener's accepted connections; beyond it, new sockets queue at the
// OS level per the concurrency model's backpressure note.
type Options struct {
	Addr               string
	Handler            http.Handler
	MaxConcurrentConns int
	ShutdownTimeout    time.Duration
	Logger             *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// BindError wraps a listener bind failure so the caller can map it onto
// exit code 3, distinct from a load failure (1) or CLI parse failure (2).
type BindError struct{ Err error }

func (e *BindError) Error() string { return fmt.Sprintf("binding listener: %v", e.Err) }
func (e *BindError) Unwrap() error { return e.Err }

// Run serves opt.Handler over HTTP/1.1 and HTTP/2 cleartext (h2c) on
// opt.Addr until ctx is cancelled, then drains in-flight requests up to
// ShutdownTimeout before returning. A listener bind failure is reported
// as a *BindError before Run ever blocks.
func Run(ctx context.Context, opt Options) error {
	opt = opt.withDefaults()

	listener, err := net.Listen("tcp", opt.Addr)
	if err != nil {
		return &BindError{Err: err}
	}
	if opt.MaxConcurrentConns > 0 {
		listener = newLimitListener(listener, opt.MaxConcurrentConns)
	}

	h2cHandler := h2c.NewHandler(opt.Handler, &http2.Server{})

	srv := &http.Server{
		Addr:              opt.Addr,
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		opt.Logger.Info("listening", "addr", opt.Addr)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server failed: %w", err)
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		opt.Logger.Info("shutting down", "reason", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opt.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	opt.Logger.Info("server exited")
	return nil
}

// limitListener wraps net.Listener, refusing to accept past n
// simultaneously open connections; beyond that, new sockets queue at
// the OS accept backlog rather than being handed to the server.
type limitListener struct {
	net.Listener
	sem chan struct{}
}

func newLimitListener(l net.Listener, n int) net.Listener {
	return &limitListener{Listener: l, sem: make(chan struct{}, n)}
}

func (l *limitListener) Accept() (net.Conn, error) {
	l.sem <- struct{}{}
	conn, err := l.Listener.Accept()
	if err != nil {
		<-l.sem
		return nil, err
	}
	return &limitConn{Conn: conn, release: func() { <-l.sem }}, nil
}

type limitConn struct {
	net.Conn
	release func()
	closed  bool
}

func (c *limitConn) Close() error {
	err := c.Conn.Close()
	if !c.closed {
		c.closed = true
		c.release()
	}
	return err
}
