// Package geo resolves a client IP to a normalized GeoInfo through an ordered cascade of providers.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"visitor-relay/internal/geo/domain"
)

// lookupTimeout bounds a single provider lookup.
const lookupTimeout = 5 * time.Second

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 64 << 10

// ErrDeclined reports that a provider answered but would not or could not locate the IP
// (rate limit, reserved range, non-success status). Transport and decode failures are not declines.
var ErrDeclined = errors.New("geo: provider declined")

// Provider is one geolocation strategy in the cascade.
type Provider interface {
	// Name identifies the provider in logs, metrics and GeoInfo.Source.
	Name() string
	// Lookup returns a possibly partial GeoInfo. Errors wrapping ErrDeclined are clean declines.
	Lookup(ctx context.Context, ip string) (domain.GeoInfo, error)
}

// fields is a decoded JSON object from a provider. Mapping functions read it through the
// typed getters so a field of the wrong type degrades to absent instead of failing the lookup.
type fields map[string]any

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (f fields) coord(key string) domain.Coordinate {
	if v, ok := f[key].(float64); ok {
		return domain.Coord(v)
	}
	return domain.Coordinate{}
}

// truthy follows loose JSON truthiness: absent, false, "", 0 and null are false.
func (f fields) truthy(key string) bool {
	switch v := f[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	default:
		return true
	}
}

// HTTPProvider is a JSON-over-HTTP provider. It owns the request and decode steps;
// the schema specific part is the mapping function.
type HTTPProvider struct {
	name    string
	baseURL string
	path    func(ip string) string
	mapFn   func(fields) (domain.GeoInfo, error)
	client  *http.Client
}

// Name implements Provider.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Lookup implements Provider.
func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (domain.GeoInfo, error) {
	f, err := p.fetch(ctx, ip)
	if err != nil {
		return domain.GeoInfo{}, err
	}
	return p.mapFn(f)
}

func (p *HTTPProvider) fetch(ctx context.Context, ip string) (fields, error) {
	url := strings.TrimSuffix(p.baseURL, "/") + p.path(ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("geo: %s: build request: %w", p.name, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo: %s: %w", p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%w: %s returned %s", ErrDeclined, p.name, resp.Status)
	}
	var f fields
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&f); err != nil {
		return nil, fmt.Errorf("geo: %s: decode: %w", p.name, err)
	}
	if f == nil {
		return nil, fmt.Errorf("geo: %s: decode: response is not a JSON object", p.name)
	}
	return f, nil
}

func newHTTPClient(client *http.Client) *http.Client {
	if client == nil {
		return &http.Client{Timeout: lookupTimeout}
	}
	return client
}
