// Package function adapts the relay core to the serverless function contract:
// an API Gateway proxy event in, a proxy response out.
package function

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"visitor-relay/internal/relay"
	"visitor-relay/internal/relay/domain"
	"visitor-relay/internal/telemetry"
)

// Source is recorded in visit payloads sent by the function.
const Source = "netlify-function"

// UserAgent is sent with collector POSTs from the function.
const UserAgent = "Netlify-Function/1.0"

// RootPath is the function's own invocation path; it triggers the visit flow like "/".
const RootPath = "/.netlify/functions/main"

// ClientIPHeader is injected by the function platform with the caller's address.
const ClientIPHeader = "Client-IP"

// Core is the host-neutral request handler. Implemented by *relay.Handler.
type Core interface {
	Handle(ctx context.Context, req domain.Request) domain.Response
}

// Drainer waits for background mirror emits. Implemented by *telemetry.Forwarder.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Options returns the relay options for the function variant.
func Options() relay.Options {
	return relay.Options{
		Source:    Source,
		RootPaths: []string{"/", RootPath},
		HealthDetails: func(req domain.Request) map[string]any {
			return map[string]any{
				"function": "netlify-serverless",
				"path":     req.Path,
				"method":   req.Method,
			}
		},
	}
}

// Handler serves one event per invocation.
type Handler struct {
	core    Core
	drainer Drainer
	logger  *slog.Logger
}

// New returns a Handler. drainer may be nil; logger may be nil.
func New(core Core, drainer Drainer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{core: core, drainer: drainer, logger: logger}
}

// Handle converts the event, runs the core and converts the response. The returned error
// is always nil: failures are already 500 responses. Mirror emits are drained before
// returning since the platform may freeze the process between invocations.
func (h *Handler) Handle(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := toRequest(ev)
	var resp domain.Response
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to decode function event", "path", ev.Path, "error", err)
		resp, _ = relay.Emit(domain.InternalError(err.Error()))
	} else {
		resp = h.core.Handle(ctx, req)
	}

	if h.drainer != nil {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetry.ShutdownDrainDuration)
		if err := h.drainer.Drain(drainCtx); err != nil {
			h.logger.WarnContext(ctx, "telemetry mirrors not drained before return", "error", err)
		}
		cancel()
	}
	return toProxyResponse(resp), nil
}

func toRequest(ev events.APIGatewayProxyRequest) (domain.Request, error) {
	header := make(http.Header, len(ev.Headers)+len(ev.MultiValueHeaders))
	for k, vs := range ev.MultiValueHeaders {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	for k, v := range ev.Headers {
		if header.Get(k) == "" {
			header.Set(k, v)
		}
	}

	body := []byte(ev.Body)
	if ev.IsBase64Encoded && ev.Body != "" {
		decoded, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return domain.Request{}, err
		}
		body = decoded
	}

	path := ev.Path
	if path == "" {
		path = "/"
	}
	return domain.Request{
		Method:     ev.HTTPMethod,
		Path:       path,
		Header:     header,
		Body:       body,
		PeerAddr:   header.Get(ClientIPHeader),
		SocketAddr: ev.RequestContext.Identity.SourceIP,
	}, nil
}

func toProxyResponse(resp domain.Response) events.APIGatewayProxyResponse {
	out := events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    make(map[string]string, len(resp.Header)),
		Body:       string(resp.Body),
	}
	for k, vs := range resp.Header {
		if len(vs) > 0 {
			out.Headers[k] = vs[0]
		}
		if len(vs) > 1 {
			if out.MultiValueHeaders == nil {
				out.MultiValueHeaders = make(map[string][]string)
			}
			out.MultiValueHeaders[k] = vs
		}
	}
	return out
}
