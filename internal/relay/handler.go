// Package relay is the host-neutral request core: it classifies each request, runs the
// visitor-detection, ingest or health flow, and renders the outcome.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	geodomain "visitor-relay/internal/geo/domain"
	"visitor-relay/internal/identity"
	iddomain "visitor-relay/internal/identity/domain"
	"visitor-relay/internal/relay/domain"
	teldomain "visitor-relay/internal/telemetry/domain"
)

const instrumentationName = "visitor-relay/internal/relay"

// RequestIDHeader carries the per-request ID on every response.
const RequestIDHeader = "X-Request-ID"

// Resolver returns a total GeoInfo for an IP. Implemented by geo.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, ip string) geodomain.GeoInfo
}

// Forwarder delivers a visit payload to the collector. Implemented by telemetry.Forwarder.
type Forwarder interface {
	Forward(ctx context.Context, payload *teldomain.Payload) error
}

// Options describe the hosting variant.
type Options struct {
	// Source is recorded in each visit payload (e.g. "server", "netlify-function").
	Source string
	// RootPaths trigger the visitor-detection flow on GET. Defaults to DefaultRootPaths.
	RootPaths []string
	// HealthDetails adds host metadata to the health body. Optional.
	HealthDetails func(req domain.Request) map[string]any
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Handler runs one request through the core. Safe for concurrent use.
type Handler struct {
	resolver  Resolver
	forwarder Forwarder
	logger    *slog.Logger
	opts      Options
	tracer    trace.Tracer
	requests  metric.Int64Counter
}

// NewHandler returns a Handler. logger may be nil; forwarder may be nil to skip telemetry.
func NewHandler(resolver Resolver, forwarder Forwarder, logger *slog.Logger, opts Options) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.RootPaths) == 0 {
		opts.RootPaths = DefaultRootPaths
	}
	requests, err := otel.Meter(instrumentationName).Int64Counter("relay_requests_total",
		metric.WithDescription("Requests handled by route and status code"))
	if err != nil {
		requests, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("relay_requests_total")
	}
	return &Handler{
		resolver:  resolver,
		forwarder: forwarder,
		logger:    logger,
		opts:      opts,
		tracer:    otel.Tracer(instrumentationName),
		requests:  requests,
	}
}

// Handle classifies req and returns its response. It never panics: failures and panics
// in any flow become a 500 JSON response.
func (h *Handler) Handle(ctx context.Context, req domain.Request) (resp domain.Response) {
	requestID := uuid.NewString()
	route := Classify(req.Method, req.Path, h.opts.RootPaths)
	ctx, span := h.tracer.Start(ctx, "relay.handle", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.Path),
		attribute.String("relay.route", string(route)),
	))
	defer span.End()
	logger := h.logger.With("request_id", requestID)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("relay: panic in %s handler: %v", route, r)
			span.RecordError(err)
			logger.ErrorContext(ctx, "request handler panicked", "route", route, "error", err)
			resp = h.render(ctx, logger, domain.InternalError(fmt.Sprint(r)))
		}
		if resp.Header == nil {
			resp.Header = make(http.Header)
		}
		resp.Header.Set(RequestIDHeader, requestID)
		if resp.StatusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		h.requests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("route", string(route)),
			attribute.String("status", strconv.Itoa(resp.StatusCode)),
		))
	}()

	if route == RoutePreflight {
		return h.render(ctx, logger, domain.Preflight())
	}

	id := identity.Extract(identity.Source{Header: req.Header, PeerAddr: req.PeerAddr, SocketAddr: req.SocketAddr})
	logger.InfoContext(ctx, "request received",
		"method", req.Method,
		"path", req.Path,
		"ip", id.IP,
		"route", route)

	var outcome domain.Outcome
	switch route {
	case RouteVisit:
		outcome = h.visit(ctx, logger, id)
	case RouteIngest:
		outcome = h.ingest(ctx, logger, id, req.Body)
	case RouteHealth:
		outcome = h.health(req)
	default:
		outcome = domain.NotFound(req.Path, req.Method)
	}
	return h.render(ctx, logger, outcome)
}

// visit runs identity -> geolocation -> telemetry and always redirects.
func (h *Handler) visit(ctx context.Context, logger *slog.Logger, id iddomain.ClientIdentity) domain.Outcome {
	logger.InfoContext(ctx, "visitor detected", identity.LogAttrs(id)...)

	var info geodomain.GeoInfo
	if h.resolver != nil {
		info = h.resolver.Resolve(ctx, id.IP)
	} else {
		info = geodomain.Placeholder(id.IP, false)
	}
	if h.forwarder != nil {
		// Failures are logged and counted by the forwarder.
		_ = h.forwarder.Forward(ctx, teldomain.NewVisit(info, h.opts.Source, h.opts.Now()))
	}
	return domain.Redirect(RedirectURL)
}

func (h *Handler) health(req domain.Request) domain.Outcome {
	body := map[string]any{
		"status":    "OK",
		"timestamp": h.timestamp(),
	}
	if h.opts.HealthDetails != nil {
		for k, v := range h.opts.HealthDetails(req) {
			if _, reserved := body[k]; !reserved {
				body[k] = v
			}
		}
	}
	return domain.JSONAck(body)
}

func (h *Handler) render(ctx context.Context, logger *slog.Logger, o domain.Outcome) domain.Response {
	resp, err := Emit(o)
	if err == nil {
		return resp
	}
	logger.ErrorContext(ctx, "failed to render response", "error", err)
	resp, _ = Emit(domain.InternalError(err.Error()))
	return resp
}

func (h *Handler) timestamp() string {
	return h.opts.Now().UTC().Format(teldomain.TimestampLayout)
}
