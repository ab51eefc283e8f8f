package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgusMolinaCode/bitlab/internal/config"
)

func TestSignupLoginLogout(t *testing.T) {
	api := newTestAPI(t, nil)
	token, userID := api.signup(t, "ana@example.com")

	w := api.do(t, http.MethodPost, "/signup", "", gin.H{"email": "ana@example.com", "password": "secret123", "name": "Ana"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/login", "", gin.H{"email": "ana@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/login", "", gin.H{"email": "ANA@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID)

	w = api.do(t, http.MethodPost, "/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "revoked token")
}

func TestSignup_Validation(t *testing.T) {
	api := newTestAPI(t, nil)
	w := api.do(t, http.MethodPost, "/signup", "", gin.H{"email": "not-an-email", "password": "123", "name": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodGet, "/users/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	reset, err := api.h.GenerateResetToken("ana@example.com")
	require.NoError(t, err)
	w = api.do(t, http.MethodGet, "/users/me", reset, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "reset tokens are not access tokens")

	other := newTestAPI(t, func(c *config.Config) { c.JWTSecret = "other-secret" })
	foreign, err := other.h.GenerateToken("someone")
	require.NoError(t, err)
	w = api.do(t, http.MethodGet, "/users/me", foreign, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_QueryTokenOnlyOnSocketHandshake(t *testing.T) {
	api := newTestAPI(t, nil)
	token, _ := api.signup(t, "ana@example.com")

	w := api.do(t, http.MethodGet, "/users/me?token="+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "query tokens are ignored on regular routes")

	w = api.do(t, http.MethodGet, "/realtime?mode=events&token="+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "plain GET is not a handshake")

	w = api.do(t, http.MethodGet, "/realtime?mode=firehose", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "the header still works on the socket route")
}

func TestPasswordReset(t *testing.T) {
	api := newTestAPI(t, nil)
	api.signup(t, "ana@example.com")

	w := api.do(t, http.MethodPost, "/request-reset-password", "", gin.H{"email": "nobody@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, api.mailer.tokens)

	w = api.do(t, http.MethodPost, "/request-reset-password", "", gin.H{"email": "ana@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	token := api.mailer.tokens["ana@example.com"]
	require.NotEmpty(t, token)

	w = api.do(t, http.MethodPost, "/reset-password", "", gin.H{"token": token, "new_password": "new-secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, http.MethodPost, "/reset-password", "", gin.H{"token": token, "new_password": "again-secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "reset tokens work once")

	w = api.do(t, http.MethodPost, "/login", "", gin.H{"email": "ana@example.com", "password": "new-secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth(t *testing.T) {
	api := newTestAPI(t, nil)
	api.signup(t, "ana@example.com")

	w := api.do(t, http.MethodGet, "/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := func(key string) int {
		r := newRequest(http.MethodGet, "/admin/users/email/ana@example.com")
		r.Header.Set("Admin-Key", key)
		rec := serve(api, r)
		return rec.Code
	}
	assert.Equal(t, http.StatusUnauthorized, req("wrong"))
	assert.Equal(t, http.StatusOK, req("admin-key"))

	closed := newTestAPI(t, func(c *config.Config) { c.AdminSecretKey = "" })
	r := newRequest(http.MethodGet, "/admin/users")
	r.Header.Set("Admin-Key", "")
	assert.Equal(t, http.StatusUnauthorized, serve(closed, r).Code, "no key configured closes admin routes")
}

func TestClerkSessionProvisionsUser(t *testing.T) {
	api := newTestAPI(t, func(c *config.Config) { c.ClerkSecretKey = "sk_test_123" })

	origVerify, origFetch := clerkVerify, clerkFetchUser
	t.Cleanup(func() { clerkVerify, clerkFetchUser = origVerify, origFetch })
	clerkVerify = func(_ context.Context, token string) (string, error) {
		if token == "clerk-session" {
			return "user_2clerk", nil
		}
		return "", errors.New("bad session")
	}
	fetches := 0
	clerkFetchUser = func(_ context.Context, id string) (string, string, error) {
		fetches++
		return "eve@example.com", "Eve", nil
	}

	w := api.do(t, http.MethodGet, "/users/me", "clerk-session", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "eve@example.com")

	w = api.do(t, http.MethodGet, "/users/me", "clerk-session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fetches, "second request finds the linked user")

	w = api.do(t, http.MethodGet, "/users/me", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenExpiry(t *testing.T) {
	api := newTestAPI(t, func(c *config.Config) { c.TokenExpiry = time.Millisecond })
	token, _ := api.signup(t, "ana@example.com")
	time.Sleep(1100 * time.Millisecond)

	w := api.do(t, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
