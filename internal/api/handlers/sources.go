package handlers

import (
	"errors"
	"strings"
)

var (
	errSourceRequired   = errors.New("source is required")
	errSourceNotAllowed = errors.New("source not allowed")
)

// SourcePolicy decides which record sources a request may name. Requests
// that name no source get the default.
type SourcePolicy struct {
	def     string
	allowed map[string]bool
}

// NewSourcePolicy allows def plus every entry of allowed.
func NewSourcePolicy(def string, allowed []string) *SourcePolicy {
	p := &SourcePolicy{
		def:     strings.TrimSpace(def),
		allowed: make(map[string]bool, len(allowed)+1),
	}
	if p.def != "" {
		p.allowed[p.def] = true
	}
	for _, s := range allowed {
		if s = strings.TrimSpace(s); s != "" {
			p.allowed[s] = true
		}
	}
	return p
}

// Pick returns the source to load for a request naming requested.
func (p *SourcePolicy) Pick(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		if p.def == "" {
			return "", errSourceRequired
		}
		return p.def, nil
	}
	if !p.allowed[requested] {
		return "", errSourceNotAllowed
	}
	return requested, nil
}
