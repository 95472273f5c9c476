package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/taskflow-api/internal/middleware"
	"github.com/noah-isme/taskflow-api/internal/models"
	"github.com/noah-isme/taskflow-api/internal/repository"
	"github.com/noah-isme/taskflow-api/internal/service"
	"github.com/noah-isme/taskflow-api/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryUserRepo struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
	nextID  int
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{byEmail: map[string]*models.User{}, byID: map[string]*models.User{}}
}

func (r *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	if _, exists := r.byEmail[user.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	if user.ID == "" {
		r.nextID++
		user.ID = fmt.Sprintf("user-%d", r.nextID)
	}
	copied := *user
	r.byEmail[user.Email] = &copied
	r.byID[user.ID] = &copied
	return nil
}

func (r *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

type authEnv struct {
	router    *gin.Engine
	codec     *token.Codec
	blacklist *token.MemoryRevocationStore
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()

	codec := token.NewCodec(token.CodecConfig{
		Secret:      "test-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
		MaxTokenAge: 7 * 24 * time.Hour,
	})
	blacklist := token.NewMemoryRevocationStore(100, time.Hour, nil)
	svc := service.NewAuthService(newMemoryUserRepo(), codec, blacklist, nil, nil, nil)
	h := NewAuthHandler(svc, false)

	r := gin.New()
	auth := r.Group("/api/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/logout", middleware.Authenticate(codec, blacklist, nil, nil), h.Logout)
	auth.GET("/me", middleware.Authenticate(codec, blacklist, nil, nil), h.Me)

	return &authEnv{router: r, codec: codec, blacklist: blacklist}
}

func (e *authEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func authCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.AuthCookieName {
			return cookie
		}
	}
	return nil
}

const registerBody = `{"name":"Alice","email":"alice@example.com","password":"Password1!"}`

func TestRegisterSetsHTTPOnlyCookie(t *testing.T) {
	env := newAuthEnv(t)

	w := env.do(http.MethodPost, "/api/auth/register", registerBody)
	assert.Equal(t, http.StatusCreated, w.Code)

	cookie := authCookie(w)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.NotEmpty(t, cookie.Value)

	// Body carries the token for header clients and never the password hash.
	var body struct {
		Data models.AuthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "User created successfully", body.Data.Message)
	assert.NotEmpty(t, body.Data.Token)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	env := newAuthEnv(t)

	w := env.do(http.MethodPost, "/api/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodPost, "/api/auth/register", registerBody)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "user already exists")
}

func TestRegisterRejectsMalformedJSON(t *testing.T) {
	env := newAuthEnv(t)

	w := env.do(http.MethodPost, "/api/auth/register", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginFlow(t *testing.T) {
	env := newAuthEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/auth/register", registerBody).Code)

	w := env.do(http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"Password1!"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, authCookie(w))

	// The cookie authenticates /me without any Authorization header.
	me := env.do(http.MethodGet, "/api/auth/me", "", authCookie(w))
	assert.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), "alice@example.com")
}

func TestLoginFailuresShareOneResponse(t *testing.T) {
	env := newAuthEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/auth/register", registerBody).Code)

	unknown := env.do(http.MethodPost, "/api/auth/login", `{"email":"nobody@example.com","password":"Password1!"}`)
	wrong := env.do(http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"WrongPass1!"}`)

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	assert.Contains(t, unknown.Body.String(), "invalid credentials")
}

func TestLogoutRevokesTokenAndClearsCookie(t *testing.T) {
	env := newAuthEnv(t)
	registered := env.do(http.MethodPost, "/api/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, registered.Code)
	session := authCookie(registered)
	require.NotNil(t, session)

	logout := env.do(http.MethodPost, "/api/auth/logout", "", session)
	assert.Equal(t, http.StatusOK, logout.Code)
	assert.Contains(t, logout.Body.String(), "Logout successful")

	cleared := authCookie(logout)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	// The old token is dead even if the client kept a copy.
	replay := env.do(http.MethodGet, "/api/auth/me", "", session)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	assert.Contains(t, replay.Body.String(), "token has been revoked")
}

func TestRefreshEndpoint(t *testing.T) {
	env := newAuthEnv(t)
	registered := env.do(http.MethodPost, "/api/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, registered.Code)

	var body struct {
		Data models.AuthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(registered.Body.Bytes(), &body))

	refreshToken, err := env.codec.IssueRefresh(body.Data.User.ID, body.Data.User.Email)
	require.NoError(t, err)

	w := env.do(http.MethodPost, "/api/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, refreshToken))
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, authCookie(w))

	// An access token is not accepted in place of a refresh token.
	w = env.do(http.MethodPost, "/api/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, body.Data.Token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid refresh token")
}

func TestMeRequiresAuthentication(t *testing.T) {
	env := newAuthEnv(t)

	w := env.do(http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "no token provided")
}
