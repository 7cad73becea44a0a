package middleware

import (
	"context"
	"net/http"
	"strings"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const organizationKey contextKey = "organization_id"

// OrganizationFrom returns the authenticated tenant for the request.
func OrganizationFrom(ctx context.Context) (string, bool) {
	org, ok := ctx.Value(organizationKey).(string)
	return org, ok
}

// TenantAuth authenticates a request as one organization. Two schemes are
// accepted: an API key "keyID.secret" checked against a bcrypt hash (machine
// callers), or a bearer JWT carrying an org_id claim (dashboard sessions).
func TenantAuth(tenants *repository.TenantRepository, jwtSecret, apiKeyHeader string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
				orgID, ok := verifyAPIKey(r.Context(), tenants, apiKey, log)
				if !ok {
					unauthorized(w)
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), organizationKey, orgID)))
				return
			}

			if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
				orgID, ok := verifyJWT(strings.TrimPrefix(authz, "Bearer "), jwtSecret)
				if !ok {
					unauthorized(w)
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), organizationKey, orgID)))
				return
			}

			unauthorized(w)
		})
	}
}

// UplinkAuth guards the network-server webhook with a shared secret. An empty
// configured secret disables the check for local development.
func UplinkAuth(sharedSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sharedSecret != "" && r.Header.Get("X-Uplink-Secret") != sharedSecret {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyAPIKey(ctx context.Context, tenants *repository.TenantRepository, apiKey string, log *logger.Logger) (string, bool) {
	keyID, secret, found := strings.Cut(apiKey, ".")
	if !found || keyID == "" || secret == "" {
		return "", false
	}

	cred, err := tenants.GetCredential(ctx, keyID)
	if err != nil {
		log.Debug("API key lookup failed for %s: %v", keyID, err)
		return "", false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(secret)); err != nil {
		return "", false
	}

	return cred.OrganizationID, true
}

func verifyJWT(tokenString, secret string) (string, bool) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}

	orgID, _ := claims["org_id"].(string)
	return orgID, orgID != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error": {"code": "unauthorized", "message": "authentication required"}}`))
}
