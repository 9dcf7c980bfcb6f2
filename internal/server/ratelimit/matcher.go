package ratelimit

import (
	"net/http"
	"strings"
)

// unlimited endpoints bypass rate limiting entirely. Streaming endpoints hold
// one connection per run and are bounded by the orchestrator instead.
func unlimited(path, method string) bool {
	if method != http.MethodGet {
		return false
	}
	return path == "/api/health" ||
		strings.HasPrefix(path, "/api/monitor/ws/") ||
		strings.HasPrefix(path, "/api/monitor/stream/")
}

// MatchEndpoint returns the endpoint configuration for a request, or nil
// when the default limit applies. Exact paths win over prefixes.
func MatchEndpoint(path, method string, endpoints []EndpointConfig) *EndpointConfig {
	for i := range endpoints {
		ep := &endpoints[i]
		if ep.Method == method && ep.Path == path {
			return ep
		}
	}
	for i := range endpoints {
		ep := &endpoints[i]
		if ep.Method == method && strings.HasSuffix(ep.Path, "/") && strings.HasPrefix(path, ep.Path) {
			return ep
		}
	}
	return nil
}
