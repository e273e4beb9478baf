package relay

import (
	"encoding/json"
	"net/http"
	"testing"

	"visitor-relay/internal/relay/domain"
)

func assertCORS(t *testing.T, h http.Header) {
	t.Helper()
	for k, v := range CORSHeaders {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestEmit_Redirect(t *testing.T) {
	resp, err := Emit(domain.Redirect(RedirectURL))
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want 302", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != RedirectURL {
		t.Errorf("Location = %q, want %q", got, RedirectURL)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
	if got, want := string(resp.Body), "Redirecting to "+RedirectURL+"..."; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	assertCORS(t, resp.Header)
}

func TestEmit_Preflight(t *testing.T) {
	resp, err := Emit(domain.Preflight())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if resp.StatusCode != http.StatusOK || len(resp.Body) != 0 {
		t.Errorf("preflight = %d %q, want 200 with empty body", resp.StatusCode, resp.Body)
	}
	assertCORS(t, resp.Header)
}

func TestEmit_NotFound(t *testing.T) {
	resp, err := Emit(domain.NotFound("/nope", http.MethodGet))
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["error"] != "Route not found" || body["path"] != "/nope" || body["method"] != "GET" {
		t.Errorf("body = %v", body)
	}
	assertCORS(t, resp.Header)
}

func TestEmit_InternalError(t *testing.T) {
	resp, err := Emit(domain.InternalError("boom"))
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	if got, want := string(resp.Body), `{"error":"Internal server error","message":"boom"}`; got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestEmit_UnencodableBody(t *testing.T) {
	if _, err := Emit(domain.JSONAck(map[string]any{"bad": make(chan int)})); err == nil {
		t.Fatal("Emit should fail for a body that cannot be encoded")
	}
}
