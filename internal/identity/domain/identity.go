package domain

// Fallbacks used when a request carries no usable value.
const (
	LoopbackIP       = "127.0.0.1"
	UnknownUserAgent = "Unknown"
)

// ClientIdentity is the best-effort visitor identity derived once per request.
// IP is never empty.
type ClientIdentity struct {
	IP        string
	UserAgent string
}
