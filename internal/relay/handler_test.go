package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"visitor-relay/internal/geo"
	geodomain "visitor-relay/internal/geo/domain"
	"visitor-relay/internal/relay/domain"
	"visitor-relay/internal/telemetry"
	"visitor-relay/internal/telemetry/collector"
	teldomain "visitor-relay/internal/telemetry/domain"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// mockResolver returns a fixed record and records the IPs it was asked about.
type mockResolver struct {
	mu    sync.Mutex
	ips   []string
	info  geodomain.GeoInfo
	panic bool
}

func (m *mockResolver) Resolve(ctx context.Context, ip string) geodomain.GeoInfo {
	m.mu.Lock()
	m.ips = append(m.ips, ip)
	m.mu.Unlock()
	if m.panic {
		panic("resolver exploded")
	}
	return m.info.Complete(ip)
}

// mockForwarder records forwarded payloads.
type mockForwarder struct {
	mu       sync.Mutex
	payloads []*teldomain.Payload
	err      error
}

func (m *mockForwarder) Forward(ctx context.Context, payload *teldomain.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	return m.err
}

func (m *mockForwarder) getPayloads() []*teldomain.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*teldomain.Payload(nil), m.payloads...)
}

func newTestHandler(r Resolver, f Forwarder, opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewHandler(r, f, nil, opts)
}

func request(method, path string, header map[string]string, body string) domain.Request {
	h := make(http.Header)
	for k, v := range header {
		h.Set(k, v)
	}
	return domain.Request{Method: method, Path: path, Header: h, Body: []byte(body), PeerAddr: "192.0.2.10:5555"}
}

func decode(t *testing.T, resp domain.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(resp.Body, &m); err != nil {
		t.Fatalf("body %q is not JSON: %v", resp.Body, err)
	}
	return m
}

func TestHandle_VisitRedirectsAndForwardsOnce(t *testing.T) {
	resolver := &mockResolver{info: geodomain.GeoInfo{City: "Paris", CountryName: "France", Source: "ipapi.co"}}
	forwarder := &mockForwarder{}
	h := newTestHandler(resolver, forwarder, Options{Source: "server"})

	resp := h.Handle(context.Background(), request(http.MethodGet, "/", map[string]string{
		"X-Forwarded-For": "81.2.69.160, 10.0.0.1",
		"User-Agent":      "Mozilla/5.0",
	}, ""))

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("StatusCode = %d, want 302", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != RedirectURL {
		t.Errorf("Location = %q, want %q", got, RedirectURL)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("X-Request-ID should be set")
	}
	if len(resolver.ips) != 1 || resolver.ips[0] != "81.2.69.160" {
		t.Errorf("resolver IPs = %v, want [81.2.69.160]", resolver.ips)
	}
	got := forwarder.getPayloads()
	if len(got) != 1 {
		t.Fatalf("expected 1 forward, got %d", len(got))
	}
	p := got[0]
	if p.UserID != teldomain.DirectVisitorID || p.Source != "server" {
		t.Errorf("payload = %+v, want direct visitor from server", p)
	}
	if p.Timestamp != "2024-05-01T12:00:00.000Z" {
		t.Errorf("Timestamp = %q, want 2024-05-01T12:00:00.000Z", p.Timestamp)
	}
	if p.IPInfo.City != "Paris" || p.IPInfo.Region != geodomain.Unknown {
		t.Errorf("IPInfo = %+v, want total record", p.IPInfo)
	}
}

func TestHandle_VisitForwardFailureStillRedirects(t *testing.T) {
	forwarder := &mockForwarder{err: context.DeadlineExceeded}
	h := newTestHandler(&mockResolver{}, forwarder, Options{})

	resp := h.Handle(context.Background(), request(http.MethodGet, "/", nil, ""))
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want 302", resp.StatusCode)
	}
	if n := len(forwarder.getPayloads()); n != 1 {
		t.Errorf("expected 1 forward attempt, got %d", n)
	}
}

func TestHandle_FunctionRootPath(t *testing.T) {
	forwarder := &mockForwarder{}
	h := newTestHandler(&mockResolver{}, forwarder, Options{
		Source:    "netlify-function",
		RootPaths: []string{"/", "/.netlify/functions/main"},
	})

	resp := h.Handle(context.Background(), request(http.MethodGet, "/.netlify/functions/main", nil, ""))
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want 302", resp.StatusCode)
	}
	if got := forwarder.getPayloads(); len(got) != 1 || got[0].Source != "netlify-function" {
		t.Errorf("payloads = %v, want one from netlify-function", got)
	}
}

func TestHandle_Ingest(t *testing.T) {
	h := newTestHandler(&mockResolver{}, &mockForwarder{}, Options{})
	body := `{"UserId":"alice","ipInfo":{"ip":"1.2.3.4","city":"Paris","country_name":"France"}}`

	resp := h.Handle(context.Background(), request(http.MethodPost, "/info", map[string]string{
		"X-Real-IP":    "198.51.100.9",
		"Content-Type": "application/json",
	}, body))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), `"success":true`) {
		t.Errorf("body = %s, want success:true", resp.Body)
	}
	m := decode(t, resp)
	if m["message"] != "Data received successfully" {
		t.Errorf("message = %v", m["message"])
	}
	if m["timestamp"] != "2024-05-01T12:00:00.000Z" {
		t.Errorf("timestamp = %v", m["timestamp"])
	}
	if m["clientIP"] != "198.51.100.9" {
		t.Errorf("clientIP = %v, want 198.51.100.9", m["clientIP"])
	}
}

func TestHandle_IngestMalformedBodyStillAcks(t *testing.T) {
	h := newTestHandler(&mockResolver{}, &mockForwarder{}, Options{})
	for _, body := range []string{"", "not json", `["array"]`, `{"UserId":42,"ipInfo":"Paris"}`} {
		resp := h.Handle(context.Background(), request(http.MethodPost, "/info", nil, body))
		if resp.StatusCode != http.StatusOK {
			t.Errorf("body %q: StatusCode = %d, want 200", body, resp.StatusCode)
		}
		if m := decode(t, resp); m["success"] != true {
			t.Errorf("body %q: success = %v, want true", body, m["success"])
		}
	}
}

func TestParseIngest(t *testing.T) {
	b := parseIngest([]byte(`{"UserId":"alice","ipInfo":{"city":"Paris"}}`))
	if b.UserID != "alice" || b.IPInfo["city"] != "Paris" {
		t.Errorf("parseIngest = %+v", b)
	}
	if b := parseIngest([]byte(`{"UserId":["x"]}`)); b.UserID != "" || b.IPInfo != nil {
		t.Errorf("wrong types should read as absent, got %+v", b)
	}
}

func TestHandle_Health(t *testing.T) {
	h := newTestHandler(&mockResolver{}, &mockForwarder{}, Options{
		HealthDetails: func(req domain.Request) map[string]any {
			return map[string]any{"path": req.Path, "method": req.Method, "status": "overridden"}
		},
	})

	resp := h.Handle(context.Background(), request(http.MethodGet, "/health", nil, ""))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	m := decode(t, resp)
	if m["status"] != "OK" {
		t.Errorf("status = %v, want OK", m["status"])
	}
	if m["timestamp"] != "2024-05-01T12:00:00.000Z" {
		t.Errorf("timestamp = %v", m["timestamp"])
	}
	if m["path"] != "/health" || m["method"] != "GET" {
		t.Errorf("details = %v, want path and method", m)
	}
}

func TestHandle_NotFound(t *testing.T) {
	forwarder := &mockForwarder{}
	h := newTestHandler(&mockResolver{}, forwarder, Options{})

	resp := h.Handle(context.Background(), request(http.MethodGet, "/nope", nil, ""))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", resp.StatusCode)
	}
	if m := decode(t, resp); m["path"] != "/nope" || m["method"] != "GET" {
		t.Errorf("body = %v, want path /nope", m)
	}
	if n := len(forwarder.getPayloads()); n != 0 {
		t.Errorf("not found should not forward, got %d", n)
	}
}

func TestHandle_Preflight(t *testing.T) {
	resolver := &mockResolver{}
	h := newTestHandler(resolver, &mockForwarder{}, Options{})

	resp := h.Handle(context.Background(), request(http.MethodOptions, "/", nil, ""))
	if resp.StatusCode != http.StatusOK || len(resp.Body) != 0 {
		t.Errorf("preflight = %d %q, want 200 empty", resp.StatusCode, resp.Body)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
	if len(resolver.ips) != 0 {
		t.Error("preflight should not resolve")
	}
}

func TestHandle_PanicBecomes500(t *testing.T) {
	h := newTestHandler(&mockResolver{panic: true}, &mockForwarder{}, Options{})

	resp := h.Handle(context.Background(), request(http.MethodGet, "/", nil, ""))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d, want 500", resp.StatusCode)
	}
	m := decode(t, resp)
	if m["error"] != "Internal server error" || m["message"] != "resolver exploded" {
		t.Errorf("body = %v", m)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("X-Request-ID should be set on 500")
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestHandle_NilCollaborators(t *testing.T) {
	h := NewHandler(nil, nil, nil, Options{})
	resp := h.Handle(context.Background(), request(http.MethodGet, "/", nil, ""))
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want 302", resp.StatusCode)
	}
}

// rewriteTransport sends every outbound request to target, keeping the path.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func TestHandle_BothProvidersFailStillRedirects(t *testing.T) {
	providers := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/json/"):
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"fail","message":"quota"}`))
		}
	}))
	defer providers.Close()

	var mu sync.Mutex
	var posts []map[string]any
	collectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		mu.Lock()
		posts = append(posts, m)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer collectorSrv.Close()

	target, _ := url.Parse(providers.URL)
	client := &http.Client{Transport: rewriteTransport{target: target}, Timeout: 5 * time.Second}
	resolver := geo.NewResolver(nil, geo.DefaultProviders(client)...)
	sink := collector.New("Visitor-Relay-Server/1.0", collectorSrv.Client())
	sink.URL = collectorSrv.URL
	forwarder := telemetry.NewForwarder(sink, nil)

	h := newTestHandler(resolver, forwarder, Options{Source: "server"})
	resp := h.Handle(context.Background(), request(http.MethodGet, "/", map[string]string{"X-Forwarded-For": "10.1.2.3"}, ""))

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("StatusCode = %d, want 302", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != RedirectURL {
		t.Errorf("Location = %q, want %q", got, RedirectURL)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(posts) != 1 {
		t.Fatalf("expected exactly 1 collector post, got %d", len(posts))
	}
	info, _ := posts[0]["ipInfo"].(map[string]any)
	if info["ip"] != "10.1.2.3" || info["city"] != geodomain.Unknown || info["source"] != geodomain.PlaceholderSource {
		t.Errorf("ipInfo = %v, want placeholder for 10.1.2.3", info)
	}
	if info["error"] != false {
		t.Errorf("error = %v, want false for clean declines", info["error"])
	}
}
