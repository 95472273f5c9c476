package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/taskflow-api/internal/service"
	"github.com/noah-isme/taskflow-api/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestCodec() *token.Codec {
	return token.NewCodec(token.CodecConfig{
		Secret:      "test-secret",
		AccessTTL:   time.Hour,
		MaxTokenAge: 7 * 24 * time.Hour,
	})
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func protectedRouter(codec *token.Codec, blacklist token.RevocationStore) *gin.Engine {
	r := gin.New()
	r.GET("/protected", Authenticate(codec, blacklist, nil, nil), func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID, "raw": RawTokenFromContext(c)})
	})
	return r
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	codec := newTestCodec()
	r := protectedRouter(codec, token.NewMemoryRevocationStore(10, time.Hour, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NO_TOKEN", decodeError(t, w).Error.Code)
}

func TestAuthenticateAcceptsCookieToken(t *testing.T) {
	codec := newTestCodec()
	r := protectedRouter(codec, token.NewMemoryRevocationStore(10, time.Hour, nil))

	raw, err := codec.Issue("user-1", "alice@example.com", "user")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: raw})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestAuthenticateAcceptsBearerToken(t *testing.T) {
	codec := newTestCodec()
	r := protectedRouter(codec, token.NewMemoryRevocationStore(10, time.Hour, nil))

	raw, err := codec.Issue("user-2", "bob@example.com", "user")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-2")
}

func TestAuthenticatePrefersCookieOverHeader(t *testing.T) {
	codec := newTestCodec()
	r := protectedRouter(codec, token.NewMemoryRevocationStore(10, time.Hour, nil))

	raw, err := codec.Issue("cookie-user", "alice@example.com", "user")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: raw})
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cookie-user")
}

func TestAuthenticateRejectsMalformedAuthorizationHeader(t *testing.T) {
	codec := newTestCodec()
	r := protectedRouter(codec, token.NewMemoryRevocationStore(10, time.Hour, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc123")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NO_TOKEN", decodeError(t, w).Error.Code)
}

func TestAuthenticateRejectsRevokedToken(t *testing.T) {
	codec := newTestCodec()
	blacklist := token.NewMemoryRevocationStore(10, time.Hour, nil)
	r := protectedRouter(codec, blacklist)

	raw, err := codec.Issue("user-1", "alice@example.com", "user")
	require.NoError(t, err)
	require.NoError(t, blacklist.Revoke(context.Background(), raw))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "TOKEN_REVOKED", body.Error.Code)
	assert.Equal(t, "token has been revoked", body.Error.Message)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	claims := &token.AccessClaims{
		UserID: "user-1",
		Email:  "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    token.Issuer,
			Audience:  jwt.ClaimStrings{token.Audience},
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	r := protectedRouter(newTestCodec(), token.NewMemoryRevocationStore(10, time.Hour, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_EXPIRED", decodeError(t, w).Error.Code)
}

func TestAuthenticateRecordsFailureMetrics(t *testing.T) {
	codec := newTestCodec()
	blacklist := token.NewMemoryRevocationStore(10, time.Hour, nil)
	metrics := service.NewMetricsService(blacklist.Len)

	r := gin.New()
	r.GET("/protected", Authenticate(codec, blacklist, metrics, nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	raw, err := codec.Issue("user-1", "alice@example.com", "user")
	require.NoError(t, err)
	require.NoError(t, blacklist.Revoke(context.Background(), raw))
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	assert.Contains(t, body, `auth_attempts_total{status="no_token",type="token"} 1`)
	assert.Contains(t, body, `auth_attempts_total{status="token_revoked",type="token"} 1`)
}

func TestOptionalAuth(t *testing.T) {
	codec := newTestCodec()
	blacklist := token.NewMemoryRevocationStore(10, time.Hour, nil)

	r := gin.New()
	r.GET("/open", OptionalAuth(codec, blacklist), func(c *gin.Context) {
		if claims := ClaimsFromContext(c); claims != nil {
			c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": nil})
	})

	// Anonymous request passes through.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "null")

	// Garbage token is ignored rather than rejected.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "null")

	// Valid token attaches claims.
	raw, err := codec.Issue("user-1", "alice@example.com", "user")
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: raw})
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestRequireRole(t *testing.T) {
	codec := newTestCodec()
	blacklist := token.NewMemoryRevocationStore(10, time.Hour, nil)

	r := gin.New()
	r.GET("/admin",
		Authenticate(codec, blacklist, nil, nil),
		RequireRole(nil, "admin"),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) },
	)

	// Without a token RequireRole is never reached; Authenticate answers 401.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userToken, err := codec.Issue("user-1", "alice@example.com", "user")
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, w).Error.Code)

	adminToken, err := codec.Issue("admin-1", "root@example.com", "admin")
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
