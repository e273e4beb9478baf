// Package app wires config, telemetry providers, the geolocation cascade and the
// visit forwarder into a relay core shared by every entry point.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"visitor-relay/internal/config"
	"visitor-relay/internal/geo"
	"visitor-relay/internal/relay"
	"visitor-relay/internal/telemetry"
	"visitor-relay/internal/telemetry/collector"
	otelsetup "visitor-relay/internal/telemetry/otel"
	"visitor-relay/internal/telemetry/producer"
)

// App holds the wired components. Close releases them in reverse order of creation.
type App struct {
	Config    *config.Config
	Providers *otelsetup.Providers
	Logger    *slog.Logger
	Resolver  *geo.Resolver
	Forwarder *telemetry.Forwarder

	closers []func(context.Context) error
}

// Settings select what a given entry point enables.
type Settings struct {
	// UserAgent names the host on collector POSTs.
	UserAgent string
	// KafkaMirror enables the Kafka visit mirror when brokers are configured.
	KafkaMirror bool
	// LogOutput receives JSON log lines. Defaults to io.Discard when nil.
	LogOutput io.Writer
}

// New builds the App from cfg. On error, anything already created is released.
func New(ctx context.Context, cfg *config.Config, s Settings) (*App, error) {
	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Env, cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("app: telemetry providers: %w", err)
	}
	providers.SetGlobal()

	out := s.LogOutput
	if out == nil {
		out = io.Discard
	}
	logger := providers.NewLogger(cfg.ServiceName, out, cfg.Level())
	if cfg.Env != "" {
		logger = logger.With("env", cfg.Env)
	}

	a := &App{Config: cfg, Providers: providers, Logger: logger}
	a.closers = append(a.closers, providers.Shutdown)

	providerList := geo.DefaultProviders(outboundClient(5 * time.Second))
	if cfg.GeoIPCityDB != "" {
		mmdb, err := geo.NewGeoIP2(cfg.GeoIPCityDB)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return mmdb.Close() })
		providerList = append(providerList, mmdb)
		logger.Info("offline geolocation enabled", "db", cfg.GeoIPCityDB)
	}
	a.Resolver = geo.NewResolver(logger, providerList...)

	var mirrors []telemetry.Sink
	if providers.Exporting {
		mirrors = append(mirrors, otelsetup.NewEventEmitter(providers.LoggerProvider))
	}
	if s.KafkaMirror {
		if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.VisitKafkaTopic); kp != nil {
			mirrors = append(mirrors, a.ownProducer(kp))
			logger.Info("kafka visit mirror enabled", "topic", kp.Topic())
		}
	}
	a.Forwarder = telemetry.NewForwarder(collector.New(s.UserAgent, outboundClient(10*time.Second)), logger, mirrors...)
	return a, nil
}

// Core returns the relay handler for a hosting variant.
func (a *App) Core(opts relay.Options) *relay.Handler {
	return relay.NewHandler(a.Resolver, a.Forwarder, a.Logger, opts)
}

// Close drains in-flight mirror emits, then releases components in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Forwarder != nil {
		drainCtx, cancel := context.WithTimeout(ctx, telemetry.ShutdownDrainDuration)
		if err := a.Forwarder.Drain(drainCtx); err != nil {
			errs = append(errs, fmt.Errorf("app: drain mirrors: %w", err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ownProducer registers p for Close and returns it as a mirror sink.
func (a *App) ownProducer(p producer.Producer) telemetry.Sink {
	a.closers = append(a.closers, func(context.Context) error { return p.Close() })
	return p
}

// outboundClient is the instrumented client for provider and collector calls.
func outboundClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}
