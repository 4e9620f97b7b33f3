package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bitechdev/ServeSpec/pkg/apierror"
	"github.com/bitechdev/ServeSpec/pkg/logger"
	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier is the identity collaborator: it validates a bearer token and
// returns the verified principal, or rejects the request.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

// OIDCVerifier validates OAuth2 JWTs against a remote JWKS endpoint
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	upnClaim string
}

// OIDCConfig configures token verification
type OIDCConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	UPNClaim string
}

// NewOIDCVerifier creates a verifier backed by the remote key set at JWKSURL
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.Issuer == "" || cfg.JWKSURL == "" {
		return nil, fmt.Errorf("oauth issuer and jwks_url are required")
	}

	keySet := oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
	oidcConfig := &oidc.Config{ClientID: cfg.Audience}
	if cfg.Audience == "" {
		oidcConfig.SkipClientIDCheck = true
	}

	upnClaim := cfg.UPNClaim
	if upnClaim == "" {
		upnClaim = "upn"
	}

	return &OIDCVerifier{
		verifier: oidc.NewVerifier(cfg.Issuer, keySet, oidcConfig),
		upnClaim: upnClaim,
	}, nil
}

// Verify validates the raw token and extracts the principal
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims := map[string]interface{}{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode token claims: %w", err)
	}

	upn, _ := claims[v.upnClaim].(string)
	return &Principal{UPN: upn, Claims: claims}, nil
}

// Middleware authenticates requests with the given verifier and stores the
// principal in the request context. With a nil verifier only the peer IP is
// recorded; with a configured verifier a missing or invalid token is a 401.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := &Principal{IP: PeerIP(r)}

			if verifier != nil {
				rawToken := bearerToken(r)
				if rawToken == "" {
					writeUnauthorized(w, "Authorization token is missing")
					return
				}

				verified, err := verifier.Verify(r.Context(), rawToken)
				if err != nil {
					logger.Info("Rejecting request: %v", err)
					writeUnauthorized(w, "Unauthorized request")
					return
				}
				verified.IP = principal.IP
				principal = verified
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(apierror.NewProblem(http.StatusUnauthorized, "Unauthorized", detail)); err != nil {
		logger.Warn("Failed to write response. %v", err)
	}
}
