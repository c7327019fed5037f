// Package gate classifies every inbound request path and decides whether it
// is forwarded, redirected to the admin login, or rejected.
package gate

import (
	"path"
	"strings"

	"alertdesk/internal/config"
)

// Class is the access category of a request path.
type Class string

const (
	// ClassPublic needs no credential.
	ClassPublic Class = "public"
	// ClassAdminLogin is the login page itself; always forwarded.
	ClassAdminLogin Class = "admin-login"
	// ClassAdminUI is an operator page; unauthenticated requests are redirected.
	ClassAdminUI Class = "admin-ui"
	// ClassProtectedAPI is a JSON endpoint; unauthenticated requests get 401.
	ClassProtectedAPI Class = "protected-api"
)

// Verdict is the gate outcome for one request.
type Verdict string

const (
	// VerdictForward passes the request to the router.
	VerdictForward Verdict = "forward"
	// VerdictRedirect sends the client to the login path.
	VerdictRedirect Verdict = "redirect"
	// VerdictReject answers 401 with a JSON error body.
	VerdictReject Verdict = "reject"
)

// Decision is the result of classifying one path.
type Decision struct {
	Class    Class
	Verdict  Verdict
	Location string
}

// Policy holds the path prefixes that define request classes.
type Policy struct {
	AdminPrefix       string
	LoginPath         string
	ProtectedPrefixes []string
}

// NewPolicy builds a policy from gate settings with cleaned prefixes.
func NewPolicy(cfg config.GateConfig) Policy {
	protected := make([]string, 0, len(cfg.ProtectedPrefixes))
	for _, prefix := range cfg.ProtectedPrefixes {
		protected = append(protected, cleanPath(prefix))
	}
	return Policy{
		AdminPrefix:       cleanPath(cfg.AdminPrefix),
		LoginPath:         cleanPath(cfg.LoginPath),
		ProtectedPrefixes: protected,
	}
}

// Classify maps a raw request path to its class.
// Params: URL path as received; dot segments and duplicate slashes are resolved first.
// Returns: access class.
func (p Policy) Classify(rawPath string) Class {
	cleaned := cleanPath(rawPath)
	switch {
	case cleaned == p.LoginPath:
		return ClassAdminLogin
	case hasSegmentPrefix(cleaned, p.AdminPrefix):
		return ClassAdminUI
	}
	for _, prefix := range p.ProtectedPrefixes {
		if hasSegmentPrefix(cleaned, prefix) {
			return ClassProtectedAPI
		}
	}
	return ClassPublic
}

// Decide is the pure, total gate function.
// Params: raw request path and whether the request carries a valid credential.
// Returns: decision; Location is set only for redirects.
func (p Policy) Decide(rawPath string, authenticated bool) Decision {
	return p.decide(p.Classify(rawPath), authenticated)
}

func (p Policy) decide(class Class, authenticated bool) Decision {
	decision := Decision{Class: class, Verdict: VerdictForward}
	if authenticated {
		return decision
	}
	switch class {
	case ClassAdminUI:
		decision.Verdict = VerdictRedirect
		decision.Location = p.LoginPath
	case ClassProtectedAPI:
		decision.Verdict = VerdictReject
	}
	return decision
}

// RequiresCredential reports whether a class can be denied.
func RequiresCredential(class Class) bool {
	return class == ClassAdminUI || class == ClassProtectedAPI
}

func cleanPath(raw string) string {
	if raw == "" {
		return "/"
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return path.Clean(raw)
}

// hasSegmentPrefix matches prefix itself or prefix followed by "/".
func hasSegmentPrefix(cleaned, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return cleaned == prefix || strings.HasPrefix(cleaned, prefix+"/")
}
