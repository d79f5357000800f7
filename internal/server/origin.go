package server

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// originChecker validates websocket origins.
type originChecker struct {
	allowed      []string
	loopbackOnly bool
}

// newOriginChecker creates a checker for a server listening on host. With
// no allowed origins a loopback server accepts only loopback origins and
// any other server accepts everything.
func newOriginChecker(allowed []string, host string) *originChecker {
	return &originChecker{
		allowed:      allowed,
		loopbackOnly: isLoopback(host),
	}
}

// check reports whether the request's origin is allowed. Requests without
// an Origin header do not come from a browser and are accepted.
func (oc *originChecker) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	for _, allowed := range oc.allowed {
		if matchOrigin(u, origin, allowed) {
			return true
		}
	}
	if len(oc.allowed) > 0 {
		return false
	}
	if oc.loopbackOnly {
		return isLoopback(u.Hostname())
	}
	return true
}

func isLoopback(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// matchOrigin supports exact matches and wildcard subdomains (*.example.com).
// The wildcard matches subdomains only, not the bare domain.
func matchOrigin(u *url.URL, origin, allowed string) bool {
	if origin == allowed {
		return true
	}
	if domain, ok := strings.CutPrefix(allowed, "*."); ok {
		return strings.HasSuffix(u.Hostname(), "."+domain)
	}
	return false
}
