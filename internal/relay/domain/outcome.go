package domain

import "net/http"

// Kind is the terminal action for a request.
type Kind int

const (
	KindPreflight Kind = iota
	KindRedirect
	KindJSON
	KindNotFound
	KindError
)

// Outcome is the result of handling one request. It maps 1:1 to a Response.
type Outcome struct {
	Kind   Kind
	Status int
	// Location is set for KindRedirect.
	Location string
	// Body is JSON-encoded for every kind except KindPreflight and KindRedirect.
	Body any
}

// Preflight answers a CORS preflight with an empty 200.
func Preflight() Outcome {
	return Outcome{Kind: KindPreflight, Status: http.StatusOK}
}

// Redirect sends the visitor to url with a 302.
func Redirect(url string) Outcome {
	return Outcome{Kind: KindRedirect, Status: http.StatusFound, Location: url}
}

// JSONAck is a 200 JSON acknowledgment.
func JSONAck(body any) Outcome {
	return Outcome{Kind: KindJSON, Status: http.StatusOK, Body: body}
}

// NotFoundBody describes an unmatched route.
type NotFoundBody struct {
	Error  string `json:"error"`
	Path   string `json:"path"`
	Method string `json:"method"`
}

// NotFound is the 404 for an unmatched method and path.
func NotFound(path, method string) Outcome {
	return Outcome{
		Kind:   KindNotFound,
		Status: http.StatusNotFound,
		Body:   NotFoundBody{Error: "Route not found", Path: path, Method: method},
	}
}

// ErrorBody is the JSON body of a handler failure.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// InternalError is the 500 returned when handling fails or panics.
func InternalError(message string) Outcome {
	return Outcome{
		Kind:   KindError,
		Status: http.StatusInternalServerError,
		Body:   ErrorBody{Error: "Internal server error", Message: message},
	}
}
