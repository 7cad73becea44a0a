package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/repository"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "unit-test-secret"

func newAuthStack(t *testing.T) (func(http.Handler) http.Handler, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log, err := logger.New(logger.Config{Level: logger.FATAL})
	require.NoError(t, err)

	return TenantAuth(repository.NewTenantRepository(db), testJWTSecret, "X-API-Key", log), mock
}

// orgEcho records the organization the middleware resolved for the request.
func orgEcho(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org, _ := OrganizationFrom(r.Context())
		*captured = org
		w.WriteHeader(http.StatusOK)
	})
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestTenantAuthBearerToken(t *testing.T) {
	auth, _ := newAuthStack(t)

	var gotOrg string
	handler := auth(orgEcho(&gotOrg))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/active", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTSecret, jwt.MapClaims{
		"org_id": "org-1",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "org-1", gotOrg)
}

func TestTenantAuthRejectsWrongSecret(t *testing.T) {
	auth, _ := newAuthStack(t)
	handler := auth(orgEcho(new(string)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/active", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "some-other-secret", jwt.MapClaims{
		"org_id": "org-1",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestTenantAuthRejectsTokenWithoutOrgClaim(t *testing.T) {
	auth, _ := newAuthStack(t)
	handler := auth(orgEcho(new(string)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/active", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTSecret, jwt.MapClaims{
		"sub": "someone",
		"exp": time.Now().Add(time.Hour).Unix(),
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantAuthAPIKey(t *testing.T) {
	auth, mock := newAuthStack(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("FROM tenant_credentials").WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows([]string{"key_id", "organization_id", "secret_hash", "active"}).
			AddRow("key-1", "org-1", string(hash), true))

	var gotOrg string
	handler := auth(orgEcho(&gotOrg))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings/bulk", nil)
	req.Header.Set("X-API-Key", "key-1.s3cret")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "org-1", gotOrg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantAuthAPIKeyWrongSecret(t *testing.T) {
	auth, mock := newAuthStack(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("FROM tenant_credentials").WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows([]string{"key_id", "organization_id", "secret_hash", "active"}).
			AddRow("key-1", "org-1", string(hash), true))

	handler := auth(orgEcho(new(string)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings/bulk", nil)
	req.Header.Set("X-API-Key", "key-1.wrong")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantAuthAPIKeyRevoked(t *testing.T) {
	auth, mock := newAuthStack(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("FROM tenant_credentials").WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows([]string{"key_id", "organization_id", "secret_hash", "active"}).
			AddRow("key-1", "org-1", string(hash), false))

	handler := auth(orgEcho(new(string)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings/bulk", nil)
	req.Header.Set("X-API-Key", "key-1.s3cret")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantAuthAPIKeyMustContainSeparator(t *testing.T) {
	auth, _ := newAuthStack(t)
	handler := auth(orgEcho(new(string)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings/bulk", nil)
	req.Header.Set("X-API-Key", "not-a-compound-key")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantAuthRequiresCredentials(t *testing.T) {
	auth, _ := newAuthStack(t)
	handler := auth(orgEcho(new(string)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/active", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUplinkAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("matching secret passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uplinks/lorawan", nil)
		req.Header.Set("X-Uplink-Secret", "hook-secret")

		rec := httptest.NewRecorder()
		UplinkAuth("hook-secret")(ok).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uplinks/lorawan", nil)
		req.Header.Set("X-Uplink-Secret", "nope")

		rec := httptest.NewRecorder()
		UplinkAuth("hook-secret")(ok).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("empty configured secret disables the check", func(t *testing.T) {
		rec := httptest.NewRecorder()
		UplinkAuth("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/uplinks/lorawan", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
