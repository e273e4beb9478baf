package geo

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"visitor-relay/internal/geo/domain"
)

const instrumentationName = "visitor-relay/internal/geo"

// Resolver tries each provider in order and returns the first success.
// Resolve never fails: when every provider fails it returns a placeholder record.
type Resolver struct {
	providers []Provider
	logger    *slog.Logger
	tracer    trace.Tracer
	lookups   metric.Int64Counter
}

// NewResolver returns a Resolver over providers in the given order. logger may be nil.
func NewResolver(logger *slog.Logger, providers ...Provider) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	lookups, err := otel.Meter(instrumentationName).Int64Counter("geo_lookups_total",
		metric.WithDescription("Geolocation provider lookups by provider and outcome"))
	if err != nil {
		lookups, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("geo_lookups_total")
	}
	return &Resolver{
		providers: providers,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		lookups:   lookups,
	}
}

// DefaultProviders is the production cascade: ipapi.co, then ip-api.com.
// extra providers (e.g. an offline GeoIP2 database) are tried after both.
func DefaultProviders(client *http.Client, extra ...Provider) []Provider {
	return append([]Provider{NewIPAPI(client), NewIPAPICom(client)}, extra...)
}

// Resolve returns a total GeoInfo for ip. Lookups run on a context that ignores
// ctx's cancellation, each bounded by lookupTimeout.
func (r *Resolver) Resolve(ctx context.Context, ip string) domain.GeoInfo {
	ctx, span := r.tracer.Start(ctx, "geo.resolve", trace.WithAttributes(attribute.String("client.ip", ip)))
	defer span.End()

	errored := false
	for _, p := range r.providers {
		info, err := r.lookup(ctx, p, ip)
		if err == nil {
			info.Error = false
			if info.Source == "" {
				info.Source = p.Name()
			}
			info = info.Complete(ip)
			span.SetAttributes(attribute.String("geo.provider", p.Name()))
			r.logger.InfoContext(ctx, "location resolved",
				"provider", p.Name(),
				"ip", info.IP,
				"location", info.Location())
			return info
		}
		outcome := "declined"
		if !errors.Is(err, ErrDeclined) {
			outcome = "error"
			errored = true
		}
		r.logger.WarnContext(ctx, "geolocation provider failed, trying next",
			"provider", p.Name(),
			"outcome", outcome,
			"error", err)
	}

	span.SetStatus(codes.Error, "all geolocation providers failed")
	span.SetAttributes(attribute.String("geo.provider", domain.PlaceholderSource))
	r.logger.WarnContext(ctx, "all geolocation providers failed, using basic info",
		"ip", ip,
		"errored", errored)
	return domain.Placeholder(ip, errored)
}

func (r *Resolver) lookup(ctx context.Context, p Provider, ip string) (domain.GeoInfo, error) {
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
	defer cancel()

	info, err := p.Lookup(lookupCtx, ip)
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrDeclined):
		outcome = "declined"
	default:
		outcome = "error"
	}
	r.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", p.Name()),
		attribute.String("outcome", outcome),
	))
	return info, err
}
