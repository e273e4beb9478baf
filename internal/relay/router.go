package relay

import (
	"net/http"
	"slices"
	"strings"
)

// Route is the class a request falls into.
type Route string

const (
	RoutePreflight Route = "preflight"
	RouteVisit     Route = "visit"
	RouteIngest    Route = "ingest"
	RouteHealth    Route = "health"
	RouteNotFound  Route = "not_found"
)

// DefaultRootPaths are the paths that trigger the visitor-detection flow.
var DefaultRootPaths = []string{"/"}

// Classify maps method and path to a Route. Rules are checked in order:
// OPTIONS on any path, GET on a root path, POST on a path containing "info",
// GET on a path containing "health", then not found.
func Classify(method, path string, rootPaths []string) Route {
	if len(rootPaths) == 0 {
		rootPaths = DefaultRootPaths
	}
	switch {
	case method == http.MethodOptions:
		return RoutePreflight
	case method == http.MethodGet && slices.Contains(rootPaths, path):
		return RouteVisit
	case method == http.MethodPost && strings.Contains(path, "info"):
		return RouteIngest
	case method == http.MethodGet && strings.Contains(path, "health"):
		return RouteHealth
	default:
		return RouteNotFound
	}
}
