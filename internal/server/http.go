// Package server adapts the relay core to a long-running net/http server.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"visitor-relay/internal/relay"
	"visitor-relay/internal/relay/domain"
)

// Source is recorded in visit payloads sent by the server.
const Source = "server"

// UserAgent is sent with collector POSTs from the server.
const UserAgent = "Visitor-Relay-Server/1.0"

// maxRequestBody caps how much of an inbound body is read (ingest payloads are small).
const maxRequestBody = 1 << 20

// Core is the host-neutral request handler. Implemented by *relay.Handler.
type Core interface {
	Handle(ctx context.Context, req domain.Request) domain.Response
}

type contextKey struct{ name string }

var socketAddrKey = contextKey{"socket_addr"}

// ConnContext records the raw socket peer on the connection context. Use as http.Server.ConnContext.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	if c == nil || c.RemoteAddr() == nil {
		return ctx
	}
	return context.WithValue(ctx, socketAddrKey, c.RemoteAddr().String())
}

// SocketAddr returns the socket peer recorded by ConnContext and true if set; otherwise "", false.
func SocketAddr(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(socketAddrKey).(string)
	return v, ok
}

// Options returns the relay options for the server variant. Health reports uptime since started.
func Options(started time.Time) relay.Options {
	return relay.Options{
		Source:    Source,
		RootPaths: relay.DefaultRootPaths,
		HealthDetails: func(domain.Request) map[string]any {
			return map[string]any{"uptime": fmt.Sprintf("%d seconds", int64(time.Since(started).Seconds()))}
		},
	}
}

// Handler serves every method and path through core.
func Handler(core Core, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to read request body", "path", r.URL.Path, "error", err)
			resp, _ := relay.Emit(domain.InternalError(err.Error()))
			write(w, resp)
			return
		}
		socket, _ := SocketAddr(r.Context())
		resp := core.Handle(r.Context(), domain.Request{
			Method:     r.Method,
			Path:       r.URL.Path,
			Header:     r.Header,
			Body:       body,
			PeerAddr:   r.RemoteAddr,
			SocketAddr: socket,
		})
		write(w, resp)
	})
}

func write(w http.ResponseWriter, resp domain.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// New returns an http.Server on addr serving core, instrumented with otelhttp.
func New(addr string, core Core, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(Handler(core, logger), "visitor-relay"),
		ConnContext:       ConnContext,
		ReadHeaderTimeout: 10 * time.Second,
		// Visit requests wait on up to two lookups and the collector POST.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down within timeout.
func Serve(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
