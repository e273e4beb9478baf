package domain

import "net/http"

// Request is the host-neutral view of one inbound request.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
	// PeerAddr and SocketAddr feed client identity; see identity.Source.
	PeerAddr   string
	SocketAddr string
}

// Response is the host-neutral wire response. Hosts copy it onto their own response type.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
