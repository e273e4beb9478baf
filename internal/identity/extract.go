// Package identity derives the visitor's client identity from request headers and connection addresses.
package identity

import (
	"net"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"

	"visitor-relay/internal/identity/domain"
)

// Source is what a hosting adapter knows about the inbound request.
// Header keys are matched case-insensitively.
type Source struct {
	Header http.Header
	// PeerAddr is the connection peer as reported by the host (e.g. RemoteAddr, or the platform's client-ip header).
	PeerAddr string
	// SocketAddr is the raw socket remote address, when the host exposes it.
	SocketAddr string
}

// Extract returns the client identity. IP precedence, first non-empty wins:
// first X-Forwarded-For entry, X-Real-IP, PeerAddr, SocketAddr, then 127.0.0.1.
func Extract(src Source) domain.ClientIdentity {
	return domain.ClientIdentity{
		IP:        clientIP(src),
		UserAgent: userAgent(src.Header),
	}
}

func clientIP(src Source) string {
	if xff := src.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(src.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := hostOnly(src.PeerAddr); ip != "" {
		return ip
	}
	if ip := hostOnly(src.SocketAddr); ip != "" {
		return ip
	}
	return domain.LoopbackIP
}

func userAgent(h http.Header) string {
	if ua := strings.TrimSpace(h.Get("User-Agent")); ua != "" {
		return ua
	}
	return domain.UnknownUserAgent
}

// hostOnly strips a port from host:port or [v6]:port; bare addresses are returned trimmed.
func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// LogAttrs returns slog key/value pairs describing the visitor's browser, OS and device class.
func LogAttrs(id domain.ClientIdentity) []any {
	if id.UserAgent == domain.UnknownUserAgent {
		return []any{"ip", id.IP, "user_agent", id.UserAgent}
	}
	ua := useragent.Parse(id.UserAgent)
	device := "desktop"
	switch {
	case ua.Bot:
		device = "bot"
	case ua.Tablet:
		device = "tablet"
	case ua.Mobile:
		device = "mobile"
	}
	return []any{
		"ip", id.IP,
		"user_agent", id.UserAgent,
		"browser", ua.Name,
		"browser_version", ua.Version,
		"os", ua.OS,
		"device", device,
	}
}
