package relay

import (
	"encoding/json"
	"fmt"
	"net/http"

	"visitor-relay/internal/relay/domain"
)

// RedirectURL is where visitors are sent. Not configurable.
const RedirectURL = "https://officialpuzzlegame.com/netlify"

// CORSHeaders are set on every response.
var CORSHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type",
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
}

// Emit renders an outcome as a wire response.
func Emit(o domain.Outcome) (domain.Response, error) {
	h := make(http.Header, len(CORSHeaders)+3)
	for k, v := range CORSHeaders {
		h.Set(k, v)
	}
	resp := domain.Response{StatusCode: o.Status, Header: h}

	switch o.Kind {
	case domain.KindPreflight:
		return resp, nil
	case domain.KindRedirect:
		h.Set("Location", o.Location)
		h.Set("Cache-Control", "no-cache")
		h.Set("Content-Type", "text/plain; charset=utf-8")
		resp.Body = []byte(fmt.Sprintf("Redirecting to %s...", o.Location))
		return resp, nil
	default:
		body, err := json.Marshal(o.Body)
		if err != nil {
			return domain.Response{}, fmt.Errorf("relay: encode response: %w", err)
		}
		h.Set("Content-Type", "application/json")
		resp.Body = body
		return resp, nil
	}
}
