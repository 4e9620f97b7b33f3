package security

import (
	"context"
	"net"
	"net/http"
)

// Principal holds the authenticated caller of a request. UPN is the user
// principal name claim from the verified token; IP is the peer address.
// Both feed the forced-filter directives.
type Principal struct {
	UPN    string
	IP     string
	Claims map[string]interface{}
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying the principal
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the request principal, or an anonymous one
// when no authentication middleware ran.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey).(*Principal); ok && p != nil {
		return p
	}
	return &Principal{}
}

// PeerIP extracts the remote IP of a request, without the port
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
