// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy answers whether a request's Origin header is acceptable for a
// WebSocket upgrade. Built once from the configured origin list.
type originPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
}

func newOriginPolicy(origins []string) *originPolicy {
	policy := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			policy.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Printf("Ignoring invalid origin in configuration: %q", origin)
			continue
		}

		policy.allowed[normalized] = struct{}{}
	}

	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

func (p *originPolicy) isAllowed(r *http.Request) bool {
	if p.allowAll {
		return true
	}

	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	_, exists := p.allowed[normalized]
	return exists
}

func (p *originPolicy) checkOrigin(r *http.Request) bool {
	if p.isAllowed(r) {
		return true
	}

	log.Printf("Blocked WebSocket connection from disallowed origin: %q", r.Header.Get("Origin"))
	return false
}
